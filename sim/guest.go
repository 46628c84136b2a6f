package sim

import (
	"fmt"
	"math"
)

// Guest is a virtual machine or a container. A container runs on a Vm that
// acts as its host (see Guest.EnableContainerHosting); a Vm runs on a
// physical Host.
//
// Lifecycle: created by a successful allocation decision, updated every
// scheduling tick, destroyed on explicit destroy or after a completed
// migration away from its host. A destroyed guest is never charged again.
type Guest struct {
	ID      int
	Kind    GuestKind
	OwnerID int // broker that requested the guest
	Mips    float64
	NumPes  int
	Ram     int64
	Bw      int64
	Size    int64

	InMigration       bool
	BeingInstantiated bool
	Failed            bool
	// HostsContainers asks the datacenter to turn the Vm into a container
	// host once it is placed.
	HostsContainers bool

	// Host is the entity currently running the guest; nil when unplaced.
	Host *Host
	// Scheduler runs the guest's workloads. Nil for Vms that only host
	// containers.
	Scheduler WorkloadScheduler

	uid       string
	history   []float64
	destroyed bool
	nested    *Host
}

// NewVm creates a Vm that has not been placed yet.
func NewVm(id, ownerID int, mips float64, numPes int, ram, bw, size int64, scheduler WorkloadScheduler) *Guest {
	return newGuest(KindVm, id, ownerID, mips, numPes, ram, bw, size, scheduler)
}

// NewContainer creates a container that has not been placed on a Vm yet.
func NewContainer(id, ownerID int, mips float64, numPes int, ram, bw, size int64, scheduler WorkloadScheduler) *Guest {
	return newGuest(KindContainer, id, ownerID, mips, numPes, ram, bw, size, scheduler)
}

func newGuest(kind GuestKind, id, ownerID int, mips float64, numPes int, ram, bw, size int64, scheduler WorkloadScheduler) *Guest {
	if numPes < 1 {
		panic(fmt.Sprintf("guest %d: numPes must be >= 1, got %d", id, numPes))
	}
	return &Guest{
		ID:                id,
		Kind:              kind,
		OwnerID:           ownerID,
		Mips:              mips,
		NumPes:            numPes,
		Ram:               ram,
		Bw:                bw,
		Size:              size,
		BeingInstantiated: true,
		Scheduler:         scheduler,
		uid:               GuestUID(kind, ownerID, id),
	}
}

// UID returns the guest identity used as table key by provisioners and
// schedulers.
func (g *Guest) UID() string { return g.uid }

// Clone returns an unplaced copy of the guest's template with a new ID.
// Workloads, history and placement are not copied.
func (g *Guest) Clone(id int, scheduler WorkloadScheduler) *Guest {
	c := newGuest(g.Kind, id, g.OwnerID, g.Mips, g.NumPes, g.Ram, g.Bw, g.Size, scheduler)
	c.HostsContainers = g.HostsContainers
	return c
}

// Ceiling returns the guest's declared maximum for a resource.
func (g *Guest) Ceiling(kind ResourceKind) int64 {
	switch kind {
	case ResourceRam:
		return g.Ram
	case ResourceBw:
		return g.Bw
	case ResourceStorage:
		return g.Size
	default:
		return math.MaxInt64
	}
}

// TotalMips is the guest's declared processing capacity across its PEs.
func (g *Guest) TotalMips() float64 { return g.Mips * float64(g.NumPes) }

// IsAlive reports whether the guest has not been destroyed. Handlers check
// it before committing any resource charge for a stale event.
func (g *Guest) IsAlive() bool { return !g.destroyed }

// MarkDestroyed flags the guest as gone. Idempotent.
func (g *Guest) MarkDestroyed() { g.destroyed = true }

// EnableContainerHosting turns the Vm into a host for containers. The nested
// host mirrors the Vm's declared capacity. Returns the nested host.
func (g *Guest) EnableContainerHosting(scheduler GuestScheduler) *Host {
	if g.Kind != KindVm {
		panic(fmt.Sprintf("guest %s: only Vms can host containers", g.uid))
	}
	if g.nested == nil {
		h := NewHost(g.ID, NewPeList(g.NumPes, g.Mips), g.Ram, g.Bw, g.Size, scheduler, DefaultHistoryLength)
		h.owner = g
		g.nested = h
	}
	return g.nested
}

// ContainerHost returns the nested host of a container-hosting Vm, or nil.
func (g *Guest) ContainerHost() *Host { return g.nested }

// CurrentRequestedMips returns the per-PE MIPS the guest asks its host for.
// A guest being instantiated asks for its full capacity.
func (g *Guest) CurrentRequestedMips(now float64) []float64 {
	share := make([]float64, g.NumPes)
	if g.BeingInstantiated {
		for i := range share {
			share[i] = g.Mips
		}
		return share
	}
	perPe := 0.0
	switch {
	case g.nested != nil:
		perPe = g.nested.AllocatedMips() / float64(g.NumPes)
	case g.Scheduler != nil:
		perPe = g.Mips * clamp01(g.Scheduler.TotalUtilizationOfCpu(now))
	}
	perPe = math.Min(perPe, g.Mips)
	for i := range share {
		share[i] = perPe
	}
	return share
}

// CurrentRequestedTotalMips sums CurrentRequestedMips.
func (g *Guest) CurrentRequestedTotalMips(now float64) float64 {
	total := 0.0
	for _, m := range g.CurrentRequestedMips(now) {
		total += m
	}
	return total
}

// CurrentRequestedRam returns the RAM the guest's workloads demand.
func (g *Guest) CurrentRequestedRam(now float64) int64 {
	if g.BeingInstantiated || g.Scheduler == nil {
		return g.Ram
	}
	return int64(math.Ceil(float64(g.Ram) * clamp01(g.Scheduler.TotalUtilizationOfRam(now))))
}

// CurrentRequestedBw returns the bandwidth the guest's workloads demand.
func (g *Guest) CurrentRequestedBw(now float64) int64 {
	if g.BeingInstantiated || g.Scheduler == nil {
		return g.Bw
	}
	return int64(math.Ceil(float64(g.Bw) * clamp01(g.Scheduler.TotalUtilizationOfBw(now))))
}

// UtilizationOfCpu returns the requested fraction of the guest's capacity.
func (g *Guest) UtilizationOfCpu(now float64) float64 {
	if g.TotalMips() == 0 {
		return 0
	}
	return g.CurrentRequestedTotalMips(now) / g.TotalMips()
}

// UpdateProcessing advances the guest's workloads (and, for a
// container-hosting Vm, its containers) and returns the next completion
// time or NoEvent.
func (g *Guest) UpdateProcessing(now float64, mipsShare []float64) float64 {
	next := NoEvent
	if g.Scheduler != nil {
		next = g.Scheduler.UpdateProcessing(now, mipsShare)
	}
	if g.nested != nil {
		next = earliestEvent(next, g.nested.UpdateGuestsProcessing(now))
	}
	return next
}

// AddUtilization appends one sample (fraction of requested MIPS, in MIPS)
// to the guest's history.
func (g *Guest) AddUtilization(v float64) { g.history = append(g.history, v) }

// UtilizationHistory returns the guest's samples, oldest first.
func (g *Guest) UtilizationHistory() []float64 {
	return append([]float64(nil), g.history...)
}

func (g *Guest) String() string {
	return fmt.Sprintf("%s(mips=%.0fx%d ram=%d bw=%d)", g.uid, g.Mips, g.NumPes, g.Ram, g.Bw)
}

// earliestEvent returns the smaller of two event times, ignoring NoEvent.
func earliestEvent(a, b float64) float64 {
	if a == NoEvent {
		return b
	}
	if b == NoEvent {
		return a
	}
	return math.Min(a, b)
}
