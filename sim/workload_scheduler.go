package sim

import (
	"fmt"
	"math"
)

// WorkloadScheduler runs the workloads of one guest. UpdateProcessing is
// called with the MIPS share the host granted the guest for the elapsed
// interval; it advances every running workload and returns the earliest
// time a workload will finish, or NoEvent when nothing is left to run.
type WorkloadScheduler interface {
	Submit(w *Workload, now float64) float64
	UpdateProcessing(now float64, mipsShare []float64) float64
	Cancel(id int) *Workload
	Finished() []*Workload
	Running() []*Workload
	Waiting() []*Workload
	HasUnfinished() bool
	TotalUtilizationOfCpu(now float64) float64
	TotalUtilizationOfRam(now float64) float64
	TotalUtilizationOfBw(now float64) float64
	CurrentMipsShare() []float64
	PreviousTime() float64
}

// workloadQueues holds the state shared by the scheduler variants.
type workloadQueues struct {
	exec         []*Workload
	waiting      []*Workload
	finished     []*Workload
	mipsShare    []float64
	previousTime float64
}

func (q *workloadQueues) Finished() []*Workload {
	out := q.finished
	q.finished = nil
	return out
}

func (q *workloadQueues) Running() []*Workload { return append([]*Workload(nil), q.exec...) }

func (q *workloadQueues) Waiting() []*Workload { return append([]*Workload(nil), q.waiting...) }

func (q *workloadQueues) HasUnfinished() bool { return len(q.exec)+len(q.waiting) > 0 }

func (q *workloadQueues) CurrentMipsShare() []float64 { return append([]float64(nil), q.mipsShare...) }

func (q *workloadQueues) PreviousTime() float64 { return q.previousTime }

func (q *workloadQueues) TotalUtilizationOfCpu(now float64) float64 {
	total := 0.0
	for _, w := range q.exec {
		total += w.CpuUtilization(now)
	}
	return total
}

func (q *workloadQueues) TotalUtilizationOfRam(now float64) float64 {
	total := 0.0
	for _, w := range q.exec {
		total += w.RamUtilization(now)
	}
	return total
}

func (q *workloadQueues) TotalUtilizationOfBw(now float64) float64 {
	total := 0.0
	for _, w := range q.exec {
		total += w.BwUtilization(now)
	}
	return total
}

func (q *workloadQueues) Cancel(id int) *Workload {
	for i, w := range q.exec {
		if w.ID == id {
			q.exec = append(q.exec[:i], q.exec[i+1:]...)
			w.Status = WorkloadCanceled
			return w
		}
	}
	for i, w := range q.waiting {
		if w.ID == id {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			w.Status = WorkloadCanceled
			return w
		}
	}
	return nil
}

// advance moves every running workload forward from the later of from and
// its start time to now at perPe MIPS per PE, and retires the ones that
// complete.
func (q *workloadQueues) advance(now, from, perPe float64) {
	if perPe > 0 {
		for _, w := range q.exec {
			if span := now - math.Max(from, w.StartTime); span > 0 {
				w.advance(perPe * float64(w.NumPes) * span)
			}
		}
	}
	kept := q.exec[:0]
	for _, w := range q.exec {
		if w.IsFinished() {
			w.Status = WorkloadFinished
			w.FinishTime = now
			q.finished = append(q.finished, w)
			continue
		}
		kept = append(kept, w)
	}
	q.exec = kept
}

// nextCompletion returns the earliest estimated finish time among running
// workloads, clamped so no estimate is closer than MinTimeBetweenEvents.
func (q *workloadQueues) nextCompletion(now, perPe float64) float64 {
	if perPe <= 0 {
		return NoEvent
	}
	next := math.MaxFloat64
	for _, w := range q.exec {
		est := now + w.Remaining()/(perPe*float64(w.NumPes))
		if est-now < MinTimeBetweenEvents {
			est = now + MinTimeBetweenEvents
		}
		next = math.Min(next, est)
	}
	if next == math.MaxFloat64 {
		return NoEvent
	}
	return next
}

// TimeSharedWorkloadScheduler runs every submitted workload at once, sharing
// the guest's MIPS among them.
type TimeSharedWorkloadScheduler struct {
	workloadQueues
}

// NewTimeSharedWorkloadScheduler creates an empty time-shared scheduler.
func NewTimeSharedWorkloadScheduler() *TimeSharedWorkloadScheduler {
	return &TimeSharedWorkloadScheduler{}
}

// capacity returns the MIPS each running PE gets from the current share.
func (s *TimeSharedWorkloadScheduler) capacity(mipsShare []float64) float64 {
	total, cpus := 0.0, 0
	for _, m := range mipsShare {
		total += m
		if m > 0 {
			cpus++
		}
	}
	pesInUse := 0
	for _, w := range s.exec {
		pesInUse += w.NumPes
	}
	if cpus == 0 {
		return 0
	}
	if pesInUse > cpus {
		return total / float64(pesInUse)
	}
	return total / float64(cpus)
}

// Submit starts w immediately and returns its estimated finish time.
func (s *TimeSharedWorkloadScheduler) Submit(w *Workload, now float64) float64 {
	w.Status = WorkloadRunning
	w.SubmitTime = now
	w.StartTime = now
	s.exec = append(s.exec, w)
	perPe := s.capacity(s.mipsShare)
	if perPe <= 0 {
		return NoEvent
	}
	return now + w.Remaining()/(perPe*float64(w.NumPes))
}

// UpdateProcessing implements WorkloadScheduler.
func (s *TimeSharedWorkloadScheduler) UpdateProcessing(now float64, mipsShare []float64) float64 {
	// Progress over the elapsed interval uses the share that was in force.
	s.advance(now, s.previousTime, s.capacity(s.mipsShare))
	s.mipsShare = append([]float64(nil), mipsShare...)
	s.previousTime = now
	if len(s.exec) == 0 {
		return NoEvent
	}
	return s.nextCompletion(now, s.capacity(s.mipsShare))
}

// SpaceSharedWorkloadScheduler gives each running workload exclusive PEs of
// the guest. Workloads that do not fit wait in FIFO order.
type SpaceSharedWorkloadScheduler struct {
	workloadQueues
	numPes int
}

// Valid workload scheduler names.
var validWorkloadSchedulers = map[string]bool{"": true, "time-shared": true, "space-shared": true}

// IsValidWorkloadScheduler returns true if name is a recognized workload
// scheduler.
func IsValidWorkloadScheduler(name string) bool { return validWorkloadSchedulers[name] }

// NewWorkloadScheduler creates a workload scheduler by name for a guest with
// numPes PEs. Empty string defaults to time-shared. Panics on unrecognized
// names.
func NewWorkloadScheduler(name string, numPes int) WorkloadScheduler {
	switch name {
	case "", "time-shared":
		return NewTimeSharedWorkloadScheduler()
	case "space-shared":
		return NewSpaceSharedWorkloadScheduler(numPes)
	default:
		panic(fmt.Sprintf("unknown workload scheduler %q", name))
	}
}

// NewSpaceSharedWorkloadScheduler creates a scheduler for a guest with numPes PEs.
func NewSpaceSharedWorkloadScheduler(numPes int) *SpaceSharedWorkloadScheduler {
	if numPes < 1 {
		panic(fmt.Sprintf("SpaceSharedWorkloadScheduler: numPes must be >= 1, got %d", numPes))
	}
	return &SpaceSharedWorkloadScheduler{numPes: numPes}
}

func (s *SpaceSharedWorkloadScheduler) usedPes() int {
	used := 0
	for _, w := range s.exec {
		used += w.NumPes
	}
	return used
}

func (s *SpaceSharedWorkloadScheduler) perPeCapacity() float64 {
	total, cpus := 0.0, 0
	for _, m := range s.mipsShare {
		if m > 0 {
			total += m
			cpus++
		}
	}
	if cpus == 0 {
		return 0
	}
	return total / float64(cpus)
}

// Submit runs w if enough PEs are free, otherwise queues it.
func (s *SpaceSharedWorkloadScheduler) Submit(w *Workload, now float64) float64 {
	w.SubmitTime = now
	if s.numPes-s.usedPes() < w.NumPes {
		w.Status = WorkloadQueued
		s.waiting = append(s.waiting, w)
		return NoEvent
	}
	w.Status = WorkloadRunning
	w.StartTime = now
	s.exec = append(s.exec, w)
	perPe := s.perPeCapacity()
	if perPe <= 0 {
		return NoEvent
	}
	return now + w.Remaining()/(perPe*float64(w.NumPes))
}

// UpdateProcessing implements WorkloadScheduler.
func (s *SpaceSharedWorkloadScheduler) UpdateProcessing(now float64, mipsShare []float64) float64 {
	s.advance(now, s.previousTime, s.perPeCapacity())
	s.mipsShare = append([]float64(nil), mipsShare...)
	s.previousTime = now

	// Promote waiting workloads in FIFO order while PEs are free.
	for len(s.waiting) > 0 && s.numPes-s.usedPes() >= s.waiting[0].NumPes {
		w := s.waiting[0]
		s.waiting = s.waiting[1:]
		w.Status = WorkloadRunning
		w.StartTime = now
		s.exec = append(s.exec, w)
	}
	if len(s.exec) == 0 {
		return NoEvent
	}
	return s.nextCompletion(now, s.perPeCapacity())
}
