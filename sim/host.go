package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Host is a physical machine, or a Vm acting as host for containers.
//
// A host exclusively owns its provisioners; only its own create, destroy and
// scheduling paths mutate them. Selection policies read other hosts'
// histories but never mutate them.
//
// Invariant: for every resource, available = total - Σ allocated to resident
// and migrating-in guests, and available >= 0.
type Host struct {
	ID           int
	DatacenterID int

	pes       []*Pe
	ram       *ResourceProvisioner
	bw        *ResourceProvisioner
	storage   *ResourceProvisioner
	scheduler GuestScheduler

	guests      []*Guest
	migratingIn []*Guest
	failed      bool
	history     *History
	owner       *Guest // set when this host is a Vm hosting containers
}

// NewHost binds the scheduler to pes and creates the host's provisioners.
func NewHost(id int, pes []*Pe, ram, bw, storage int64, scheduler GuestScheduler, historyLength int) *Host {
	if len(pes) == 0 {
		panic(fmt.Sprintf("host %d: at least one PE required", id))
	}
	if scheduler == nil {
		scheduler = NewTimeSharedGuestScheduler()
	}
	scheduler.bind(pes)
	return &Host{
		ID:        id,
		pes:       pes,
		ram:       NewResourceProvisioner(ResourceRam, ram),
		bw:        NewResourceProvisioner(ResourceBw, bw),
		storage:   NewResourceProvisioner(ResourceStorage, storage),
		scheduler: scheduler,
		history:   NewHistory(historyLength),
	}
}

func (h *Host) String() string { return fmt.Sprintf("host-%d", h.ID) }

// Owner returns the Vm this host belongs to, or nil for a physical host.
func (h *Host) Owner() *Guest { return h.owner }

// Pes returns the host's processing elements.
func (h *Host) Pes() []*Pe { return h.pes }

// NumPes returns the number of processing elements.
func (h *Host) NumPes() int { return len(h.pes) }

// Scheduler returns the host's guest scheduler.
func (h *Host) Scheduler() GuestScheduler { return h.scheduler }

// RamProvisioner returns the RAM provisioner.
func (h *Host) RamProvisioner() *ResourceProvisioner { return h.ram }

// BwProvisioner returns the bandwidth provisioner.
func (h *Host) BwProvisioner() *ResourceProvisioner { return h.bw }

// StorageProvisioner returns the storage provisioner.
func (h *Host) StorageProvisioner() *ResourceProvisioner { return h.storage }

// TotalMips is the capacity of all usable PEs.
func (h *Host) TotalMips() float64 { return totalMips(h.pes) }

// AvailableMips is the MIPS not allocated to any guest.
func (h *Host) AvailableMips() float64 {
	if h.failed {
		return 0
	}
	return h.scheduler.AvailableMips()
}

// AllocatedMips is TotalMips minus AvailableMips.
func (h *Host) AllocatedMips() float64 {
	used := h.TotalMips() - h.scheduler.AvailableMips()
	if used < 0 {
		return 0
	}
	return used
}

// Guests returns the resident guests in placement order.
func (h *Host) Guests() []*Guest { return append([]*Guest(nil), h.guests...) }

// GuestsMigratingIn returns guests with reserved capacity that are still in
// flight.
func (h *Host) GuestsMigratingIn() []*Guest { return append([]*Guest(nil), h.migratingIn...) }

// NumGuests counts resident guests.
func (h *Host) NumGuests() int { return len(h.guests) }

// HasGuest reports whether g is resident on h.
func (h *Host) HasGuest(g *Guest) bool { return indexOf(h.guests, g) >= 0 }

// IsMigratingIn reports whether g holds a migration reservation on h.
func (h *Host) IsMigratingIn(g *Guest) bool { return indexOf(h.migratingIn, g) >= 0 }

// IsFailed reports the failed flag.
func (h *Host) IsFailed() bool { return h.failed }

// SetFailed marks every PE failed (or free again) and flags the host.
func (h *Host) SetFailed(failed bool) {
	h.failed = failed
	for _, pe := range h.pes {
		if failed {
			pe.Status = PeFailed
		} else if pe.Status == PeFailed {
			pe.Status = PeFree
		}
	}
	if failed {
		for _, g := range h.guests {
			g.Failed = true
		}
	}
}

// IsSuitableForGuest reports whether g fits on the host right now. Probes
// leave every provisioner unchanged.
func (h *Host) IsSuitableForGuest(g *Guest) bool {
	if h.failed {
		return false
	}
	return h.storage.IsSuitable(g, g.Size) &&
		h.ram.IsSuitable(g, g.Ram) &&
		h.bw.IsSuitable(g, g.Bw) &&
		h.scheduler.IsSuitableForGuest(g, fullShare(g))
}

// fullShare is the share a guest asks for at placement time.
func fullShare(g *Guest) []float64 {
	share := make([]float64, g.NumPes)
	for i := range share {
		share[i] = g.Mips
	}
	return share
}

// GuestCreate charges every provisioner for g and makes it resident. On any
// failure the partial charges are rolled back and false is returned.
func (h *Host) GuestCreate(g *Guest) bool {
	if h.failed || !g.IsAlive() {
		return false
	}
	if !h.charge(g) {
		logrus.Debugf("%s: not enough capacity for %s", h, g)
		return false
	}
	h.guests = append(h.guests, g)
	g.Host = h
	return true
}

// charge allocates storage, RAM, bandwidth and PEs for g.
func (h *Host) charge(g *Guest) bool {
	if !h.storage.Allocate(g, g.Size) {
		return false
	}
	if !h.ram.Allocate(g, g.Ram) {
		h.storage.Deallocate(g)
		return false
	}
	if !h.bw.Allocate(g, g.Bw) {
		h.storage.Deallocate(g)
		h.ram.Deallocate(g)
		return false
	}
	if !h.scheduler.IsSuitableForGuest(g, fullShare(g)) || !h.scheduler.AllocatePesForGuest(g, fullShare(g)) {
		h.scheduler.DeallocatePesForGuest(g)
		h.storage.Deallocate(g)
		h.ram.Deallocate(g)
		h.bw.Deallocate(g)
		return false
	}
	return true
}

// release returns every resource g holds on h.
func (h *Host) release(g *Guest) {
	h.scheduler.DeallocatePesForGuest(g)
	h.ram.Deallocate(g)
	h.bw.Deallocate(g)
	h.storage.Deallocate(g)
}

// GuestDestroy releases g's resources and removes it from the host. A guest
// that is not resident is ignored.
func (h *Host) GuestDestroy(g *Guest) {
	i := indexOf(h.guests, g)
	if i < 0 {
		return
	}
	h.release(g)
	h.guests = append(h.guests[:i], h.guests[i+1:]...)
	if g.Host == h {
		g.Host = nil
	}
}

// GuestDestroyAll releases every resident and migrating-in guest and resets
// the provisioners.
func (h *Host) GuestDestroyAll() {
	for _, g := range h.guests {
		if g.Host == h {
			g.Host = nil
		}
	}
	for _, g := range h.migratingIn {
		h.scheduler.SetMigratingIn(g.UID(), false)
	}
	h.guests = nil
	h.migratingIn = nil
	h.scheduler.DeallocatePesForAllGuests()
	h.ram.DeallocateAll()
	h.bw.DeallocateAll()
	h.storage.DeallocateAll()
}

// Detach drops g from the resident list but keeps its resources charged,
// so the host reports its demand as if g had left. It returns g's position
// for Attach, or -1 when g is not resident.
func (h *Host) Detach(g *Guest) int {
	i := indexOf(h.guests, g)
	if i < 0 {
		return -1
	}
	h.guests = append(h.guests[:i], h.guests[i+1:]...)
	return i
}

// Attach puts a detached guest back at position pos.
func (h *Host) Attach(g *Guest, pos int) {
	if indexOf(h.guests, g) >= 0 {
		return
	}
	if pos < 0 || pos > len(h.guests) {
		pos = len(h.guests)
	}
	h.guests = append(h.guests, nil)
	copy(h.guests[pos+1:], h.guests[pos:])
	h.guests[pos] = g
	g.Host = h
}

// AddMigratingInGuest reserves capacity for g ahead of its arrival. The
// reservation is charged to the provisioners but g does not run here yet.
func (h *Host) AddMigratingInGuest(g *Guest) bool {
	if h.failed || !g.IsAlive() {
		return false
	}
	if h.IsMigratingIn(g) {
		return true
	}
	h.scheduler.SetMigratingIn(g.UID(), true)
	if !h.charge(g) {
		h.scheduler.SetMigratingIn(g.UID(), false)
		return false
	}
	h.migratingIn = append(h.migratingIn, g)
	return true
}

// RemoveMigratingInGuest drops g's reservation and returns its capacity.
func (h *Host) RemoveMigratingInGuest(g *Guest) {
	i := indexOf(h.migratingIn, g)
	if i < 0 {
		return
	}
	h.release(g)
	h.scheduler.SetMigratingIn(g.UID(), false)
	h.migratingIn = append(h.migratingIn[:i], h.migratingIn[i+1:]...)
}

// UpdateGuestsProcessing advances every resident guest with the MIPS it was
// granted, then reallocates PEs to match current demand. Returns the earliest
// next completion among guests, or NoEvent.
func (h *Host) UpdateGuestsProcessing(now float64) float64 {
	next := NoEvent
	for _, g := range h.guests {
		next = earliestEvent(next, g.UpdateProcessing(now, h.scheduler.AllocatedMipsForGuest(g)))
	}
	h.Reallocate(now)
	return next
}

// Reallocate re-charges PEs with each guest's current request. Migrating-in
// reservations are re-applied first so they keep their slice.
func (h *Host) Reallocate(now float64) {
	h.scheduler.DeallocatePesForAllGuests()
	for _, g := range h.migratingIn {
		h.scheduler.AllocatePesForGuest(g, g.CurrentRequestedMips(now))
	}
	for _, g := range h.guests {
		if !h.scheduler.AllocatePesForGuest(g, g.CurrentRequestedMips(now)) {
			logrus.Debugf("%s: %s waits for PEs", h, g)
		}
	}
}

// UtilizationOfCpu returns allocated MIPS over total MIPS.
func (h *Host) UtilizationOfCpu() float64 {
	total := h.TotalMips()
	if total == 0 {
		return 0
	}
	u := h.AllocatedMips() / total
	if u > 1 {
		return 1
	}
	return u
}

// RequestedMips sums the current MIPS request of resident guests, which may
// exceed capacity when the host is oversubscribed.
func (h *Host) RequestedMips(now float64) float64 {
	total := 0.0
	for _, g := range h.guests {
		total += g.CurrentRequestedTotalMips(now)
	}
	return total
}

// UtilizationOfRam returns the used fraction of RAM.
func (h *Host) UtilizationOfRam() float64 { return fraction(h.ram.Used(), h.ram.Capacity()) }

// UtilizationOfBw returns the used fraction of bandwidth.
func (h *Host) UtilizationOfBw() float64 { return fraction(h.bw.Used(), h.bw.Capacity()) }

// RecordUtilization appends the current CPU utilization to the host history
// and the current utilization of each resident guest to its own history.
func (h *Host) RecordUtilization(now float64) {
	h.history.Add(h.UtilizationOfCpu())
	for _, g := range h.guests {
		g.AddUtilization(g.UtilizationOfCpu(now))
	}
}

// UtilizationHistory returns the host's CPU samples, oldest first.
func (h *Host) UtilizationHistory() []float64 { return h.history.Values() }

// History exposes the host's ring buffer.
func (h *Host) History() *History { return h.history }

func fraction(used, capacity int64) float64 {
	if capacity == 0 {
		return 0
	}
	return float64(used) / float64(capacity)
}

func indexOf(guests []*Guest, g *Guest) int {
	for i, x := range guests {
		if x == g {
			return i
		}
	}
	return -1
}
