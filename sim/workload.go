package sim

import "fmt"

// UtilizationModel returns the fraction [0,1] of a resource a workload
// demands at simulation time t.
type UtilizationModel interface {
	Utilization(t float64) float64
}

// FullUtilization always demands the whole resource.
type FullUtilization struct{}

func (FullUtilization) Utilization(float64) float64 { return 1 }

// ConstantUtilization demands a fixed fraction.
type ConstantUtilization struct {
	Fraction float64
}

func (c ConstantUtilization) Utilization(float64) float64 { return clamp01(c.Fraction) }

// WorkloadStatus is the lifecycle state of a workload.
type WorkloadStatus string

const (
	WorkloadCreated  WorkloadStatus = "created"
	WorkloadQueued   WorkloadStatus = "queued"
	WorkloadRunning  WorkloadStatus = "running"
	WorkloadFinished WorkloadStatus = "finished"
	WorkloadCanceled WorkloadStatus = "canceled"
)

// Workload is a unit of work (length in million instructions) executed by a
// guest. Its CPU, RAM and bandwidth demand over time come from utilization
// models; trace-driven models let external series drive the demand.
type Workload struct {
	ID      int
	OwnerID int
	Length  float64 // million instructions
	NumPes  int

	CpuModel UtilizationModel
	RamModel UtilizationModel
	BwModel  UtilizationModel

	Status     WorkloadStatus
	GuestUID   string
	SubmitTime float64
	StartTime  float64
	FinishTime float64

	finishedSoFar float64 // MI executed
}

// NewWorkload creates a workload whose models default to full utilization.
func NewWorkload(id, ownerID int, length float64, numPes int) *Workload {
	if numPes < 1 {
		numPes = 1
	}
	return &Workload{
		ID:       id,
		OwnerID:  ownerID,
		Length:   length,
		NumPes:   numPes,
		CpuModel: FullUtilization{},
		RamModel: FullUtilization{},
		BwModel:  FullUtilization{},
		Status:   WorkloadCreated,
	}
}

// TotalLength is the work across all PEs.
func (w *Workload) TotalLength() float64 { return w.Length * float64(w.NumPes) }

// Remaining returns the MI still to execute, never negative.
func (w *Workload) Remaining() float64 {
	r := w.TotalLength() - w.finishedSoFar
	if r < 0 {
		return 0
	}
	return r
}

// FinishedSoFar returns the MI executed so far.
func (w *Workload) FinishedSoFar() float64 { return w.finishedSoFar }

// IsFinished reports whether all MI have executed.
func (w *Workload) IsFinished() bool { return w.Remaining() == 0 }

func (w *Workload) advance(mi float64) {
	if mi <= 0 {
		return
	}
	w.finishedSoFar += mi
	if w.finishedSoFar > w.TotalLength() {
		w.finishedSoFar = w.TotalLength()
	}
}

// CpuUtilization evaluates the CPU model at t.
func (w *Workload) CpuUtilization(t float64) float64 { return clamp01(w.CpuModel.Utilization(t)) }

// RamUtilization evaluates the RAM model at t.
func (w *Workload) RamUtilization(t float64) float64 { return clamp01(w.RamModel.Utilization(t)) }

// BwUtilization evaluates the bandwidth model at t.
func (w *Workload) BwUtilization(t float64) float64 { return clamp01(w.BwModel.Utilization(t)) }

func (w Workload) String() string {
	return fmt.Sprintf("Workload: (ID: %d, Status: %s, Done: %.1f/%.1f MI)", w.ID, w.Status, w.finishedSoFar, w.TotalLength())
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
