package sim

import (
	"fmt"
	"math"
	"sort"
)

// Migration overhead factors applied by the time-shared scheduler: a guest
// migrating out keeps 90% of its request, a guest migrating in is charged
// 10% on the destination until the migration completes.
const (
	migratingOutFactor = 0.9
	migratingInFactor  = 0.1
)

// shareEpsilon absorbs floating-point residue when splitting shares over PEs.
const shareEpsilon = 1e-9

// GuestScheduler divides a host's processing elements among its guests.
// Implementations are bound to the host's PEs by NewHost.
type GuestScheduler interface {
	// AllocatePesForGuest records mipsShare (one entry per virtual PE) as the
	// guest's request and updates the PE provisioners.
	AllocatePesForGuest(g *Guest, mipsShare []float64) bool
	DeallocatePesForGuest(g *Guest)
	DeallocatePesForAllGuests()
	AllocatedMipsForGuest(g *Guest) []float64
	TotalAllocatedMipsForGuest(g *Guest) float64
	IsSuitableForGuest(g *Guest, mipsShare []float64) bool
	// AvailableMips is host capacity minus everything allocated.
	AvailableMips() float64
	// MaxAvailableMips is the largest free MIPS on any single PE.
	MaxAvailableMips() float64
	// PeCapacity is the rating of the fastest usable PE.
	PeCapacity() float64
	SetMigratingIn(uid string, migrating bool)

	bind(pes []*Pe)
}

// Valid guest scheduler names.
var validGuestSchedulers = map[string]bool{"": true, "time-shared": true, "space-shared": true}

// IsValidGuestScheduler returns true if name is a recognized guest scheduler.
func IsValidGuestScheduler(name string) bool { return validGuestSchedulers[name] }

// NewGuestScheduler creates a guest scheduler by name. Empty string defaults
// to time-shared. Panics on unrecognized names.
func NewGuestScheduler(name string) GuestScheduler {
	switch name {
	case "", "time-shared":
		return NewTimeSharedGuestScheduler()
	case "space-shared":
		return NewSpaceSharedGuestScheduler()
	default:
		panic(fmt.Sprintf("unknown guest scheduler %q", name))
	}
}

// TimeSharedGuestScheduler lets guests share PEs. When requests exceed
// capacity, MIPS are divided by max-min fairness: each guest receives
// min(request, fair share of what is left), so no guest is starved below an
// even division and the total never exceeds host capacity.
type TimeSharedGuestScheduler struct {
	pes          []*Pe
	order        []string
	requested    map[string][]float64
	allocated    map[string][]float64
	migratingIn  map[string]bool
	migratingOut map[string]bool
	available    float64
}

// NewTimeSharedGuestScheduler creates an unbound time-shared scheduler.
func NewTimeSharedGuestScheduler() *TimeSharedGuestScheduler {
	return &TimeSharedGuestScheduler{
		requested:    make(map[string][]float64),
		allocated:    make(map[string][]float64),
		migratingIn:  make(map[string]bool),
		migratingOut: make(map[string]bool),
	}
}

func (s *TimeSharedGuestScheduler) bind(pes []*Pe) {
	s.pes = pes
	s.available = totalMips(pes)
}

// PeCapacity implements GuestScheduler.
func (s *TimeSharedGuestScheduler) PeCapacity() float64 { return maxPeMips(s.pes) }

// AvailableMips implements GuestScheduler.
func (s *TimeSharedGuestScheduler) AvailableMips() float64 { return s.available }

// MaxAvailableMips implements GuestScheduler.
func (s *TimeSharedGuestScheduler) MaxAvailableMips() float64 {
	best := 0.0
	for _, pe := range s.pes {
		if pe.Status == PeFailed {
			continue
		}
		best = math.Max(best, pe.Provisioner.Available())
	}
	return best
}

// SetMigratingIn implements GuestScheduler.
func (s *TimeSharedGuestScheduler) SetMigratingIn(uid string, migrating bool) {
	if migrating {
		s.migratingIn[uid] = true
	} else {
		delete(s.migratingIn, uid)
	}
}

func (s *TimeSharedGuestScheduler) usablePes() int {
	n := 0
	for _, pe := range s.pes {
		if pe.Status != PeFailed {
			n++
		}
	}
	return n
}

// IsSuitableForGuest implements GuestScheduler.
func (s *TimeSharedGuestScheduler) IsSuitableForGuest(g *Guest, mipsShare []float64) bool {
	if len(mipsShare) > s.usablePes() {
		return false
	}
	peCap := s.PeCapacity()
	total := 0.0
	for _, m := range mipsShare {
		if m > peCap {
			return false
		}
		total += m
	}
	return total <= s.available+shareEpsilon
}

// AllocatePesForGuest implements GuestScheduler. It fails only when the
// request cannot be expressed on this host (more virtual PEs than usable
// PEs, or a share larger than a PE); oversubscription is resolved fairly.
func (s *TimeSharedGuestScheduler) AllocatePesForGuest(g *Guest, mipsShare []float64) bool {
	if len(mipsShare) > s.usablePes() {
		return false
	}
	peCap := s.PeCapacity()
	for _, m := range mipsShare {
		if m > peCap+shareEpsilon {
			return false
		}
	}
	uid := g.UID()
	if g.InMigration && !s.migratingIn[uid] {
		s.migratingOut[uid] = true
	} else if !g.InMigration {
		delete(s.migratingOut, uid)
	}
	if _, ok := s.requested[uid]; !ok {
		s.order = append(s.order, uid)
	}
	s.requested[uid] = append([]float64(nil), mipsShare...)
	s.redistribute()
	return true
}

// DeallocatePesForGuest implements GuestScheduler.
func (s *TimeSharedGuestScheduler) DeallocatePesForGuest(g *Guest) {
	uid := g.UID()
	if _, ok := s.requested[uid]; !ok {
		return
	}
	delete(s.requested, uid)
	delete(s.allocated, uid)
	delete(s.migratingOut, uid)
	for i, id := range s.order {
		if id == uid {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.redistribute()
}

// DeallocatePesForAllGuests implements GuestScheduler. Migration flags
// survive so that reallocation keeps charging migration overhead.
func (s *TimeSharedGuestScheduler) DeallocatePesForAllGuests() {
	s.order = nil
	s.requested = make(map[string][]float64)
	s.allocated = make(map[string][]float64)
	for _, pe := range s.pes {
		pe.Provisioner.DeallocateAll()
	}
	s.available = totalMips(s.pes)
}

// AllocatedMipsForGuest implements GuestScheduler.
func (s *TimeSharedGuestScheduler) AllocatedMipsForGuest(g *Guest) []float64 {
	return append([]float64(nil), s.allocated[g.UID()]...)
}

// TotalAllocatedMipsForGuest implements GuestScheduler.
func (s *TimeSharedGuestScheduler) TotalAllocatedMipsForGuest(g *Guest) float64 {
	total := 0.0
	for _, m := range s.allocated[g.UID()] {
		total += m
	}
	return total
}

func (s *TimeSharedGuestScheduler) factor(uid string) float64 {
	switch {
	case s.migratingIn[uid]:
		return migratingInFactor
	case s.migratingOut[uid]:
		return migratingOutFactor
	default:
		return 1
	}
}

// redistribute recomputes every guest's allocation by max-min fairness and
// rewrites the PE provisioners.
func (s *TimeSharedGuestScheduler) redistribute() {
	capacity := totalMips(s.pes)
	demand := make(map[string]float64, len(s.order))
	for _, uid := range s.order {
		d := 0.0
		for _, m := range s.requested[uid] {
			d += m
		}
		demand[uid] = d * s.factor(uid)
	}

	// Serve the smallest demands first; ties keep arrival order.
	byDemand := append([]string(nil), s.order...)
	sort.SliceStable(byDemand, func(i, j int) bool { return demand[byDemand[i]] < demand[byDemand[j]] })

	remaining := capacity
	granted := make(map[string]float64, len(byDemand))
	for i, uid := range byDemand {
		fair := remaining / float64(len(byDemand)-i)
		give := math.Min(demand[uid], fair)
		granted[uid] = give
		remaining -= give
	}

	used := 0.0
	s.allocated = make(map[string][]float64, len(s.order))
	for _, uid := range s.order {
		req := s.requested[uid]
		scale := 0.0
		if demand[uid] > 0 {
			scale = granted[uid] / demand[uid] * s.factor(uid)
		}
		shares := make([]float64, len(req))
		for i, m := range req {
			shares[i] = m * scale
			used += shares[i]
		}
		s.allocated[uid] = shares
	}
	s.available = math.Max(0, capacity-used)
	s.updatePeProvisioning()
}

// updatePeProvisioning lays every allocated share onto physical PEs in
// order, splitting a share across PEs when one PE cannot hold it.
func (s *TimeSharedGuestScheduler) updatePeProvisioning() {
	var usable []*Pe
	for _, pe := range s.pes {
		pe.Provisioner.DeallocateAll()
		if pe.Status != PeFailed {
			usable = append(usable, pe)
		}
	}
	idx := 0
	for _, uid := range s.order {
		for _, share := range s.allocated[uid] {
			for share > shareEpsilon && idx < len(usable) {
				pe := usable[idx]
				free := pe.Provisioner.Available()
				if share <= free {
					pe.Provisioner.Allocate(uid, share)
					share = 0
					break
				}
				if free > shareEpsilon {
					pe.Provisioner.Allocate(uid, free)
					share -= free
				}
				idx++
			}
		}
	}
	for _, pe := range usable {
		if pe.Provisioner.Available() < pe.Provisioner.Capacity() {
			pe.Status = PeBusy
		} else {
			pe.Status = PeFree
		}
	}
}

type queuedGuest struct {
	guest *Guest
	share []float64
}

// SpaceSharedGuestScheduler assigns whole PEs exclusively to guests. A guest
// needing more PEs than are free waits in FIFO order and receives nothing
// until enough PEs are released.
type SpaceSharedGuestScheduler struct {
	pes         []*Pe
	peMap       map[string][]*Pe
	mipsMap     map[string][]float64
	queue       []queuedGuest
	migratingIn map[string]bool
}

// NewSpaceSharedGuestScheduler creates an unbound space-shared scheduler.
func NewSpaceSharedGuestScheduler() *SpaceSharedGuestScheduler {
	return &SpaceSharedGuestScheduler{
		peMap:       make(map[string][]*Pe),
		mipsMap:     make(map[string][]float64),
		migratingIn: make(map[string]bool),
	}
}

func (s *SpaceSharedGuestScheduler) bind(pes []*Pe) { s.pes = pes }

// PeCapacity implements GuestScheduler.
func (s *SpaceSharedGuestScheduler) PeCapacity() float64 { return maxPeMips(s.pes) }

// AvailableMips implements GuestScheduler.
func (s *SpaceSharedGuestScheduler) AvailableMips() float64 { return totalMips(freePes(s.pes)) }

// MaxAvailableMips implements GuestScheduler.
func (s *SpaceSharedGuestScheduler) MaxAvailableMips() float64 { return maxPeMips(freePes(s.pes)) }

// SetMigratingIn implements GuestScheduler.
func (s *SpaceSharedGuestScheduler) SetMigratingIn(uid string, migrating bool) {
	if migrating {
		s.migratingIn[uid] = true
	} else {
		delete(s.migratingIn, uid)
	}
}

// Waiting returns the UIDs of queued guests in FIFO order.
func (s *SpaceSharedGuestScheduler) Waiting() []string {
	out := make([]string, len(s.queue))
	for i, q := range s.queue {
		out[i] = q.guest.UID()
	}
	return out
}

// IsSuitableForGuest implements GuestScheduler.
func (s *SpaceSharedGuestScheduler) IsSuitableForGuest(_ *Guest, mipsShare []float64) bool {
	return s.fits(mipsShare)
}

func (s *SpaceSharedGuestScheduler) fits(mipsShare []float64) bool {
	free := freePes(s.pes)
	if len(mipsShare) > len(free) {
		return false
	}
	peCap := maxPeMips(free)
	for _, m := range mipsShare {
		if m > peCap+shareEpsilon {
			return false
		}
	}
	return true
}

// AllocatePesForGuest implements GuestScheduler. When not enough PEs are
// free the guest is queued and false is returned.
func (s *SpaceSharedGuestScheduler) AllocatePesForGuest(g *Guest, mipsShare []float64) bool {
	uid := g.UID()
	s.release(uid)
	if !s.fits(mipsShare) {
		s.enqueue(g, mipsShare)
		return false
	}
	s.dequeue(uid)
	s.assign(uid, mipsShare)
	return true
}

func (s *SpaceSharedGuestScheduler) assign(uid string, mipsShare []float64) {
	free := freePes(s.pes)
	// Fastest PEs first so large shares land on PEs that can hold them.
	sort.SliceStable(free, func(i, j int) bool { return free[i].Mips() > free[j].Mips() })
	assigned := make([]*Pe, 0, len(mipsShare))
	mips := make([]float64, 0, len(mipsShare))
	for i, share := range mipsShare {
		pe := free[i]
		m := math.Min(share, pe.Mips())
		pe.Provisioner.Allocate(uid, m)
		pe.Status = PeBusy
		assigned = append(assigned, pe)
		mips = append(mips, m)
	}
	s.peMap[uid] = assigned
	s.mipsMap[uid] = mips
}

func (s *SpaceSharedGuestScheduler) enqueue(g *Guest, mipsShare []float64) {
	for i, q := range s.queue {
		if q.guest.UID() == g.UID() {
			s.queue[i].share = append([]float64(nil), mipsShare...)
			return
		}
	}
	s.queue = append(s.queue, queuedGuest{guest: g, share: append([]float64(nil), mipsShare...)})
}

func (s *SpaceSharedGuestScheduler) dequeue(uid string) {
	for i, q := range s.queue {
		if q.guest.UID() == uid {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *SpaceSharedGuestScheduler) release(uid string) bool {
	pes, ok := s.peMap[uid]
	if !ok {
		return false
	}
	for _, pe := range pes {
		pe.Provisioner.Deallocate(uid)
		if pe.Status != PeFailed {
			pe.Status = PeFree
		}
	}
	delete(s.peMap, uid)
	delete(s.mipsMap, uid)
	return true
}

// serveQueue starts queued guests in FIFO order while the head fits.
func (s *SpaceSharedGuestScheduler) serveQueue() {
	for len(s.queue) > 0 && s.fits(s.queue[0].share) {
		head := s.queue[0]
		s.queue = s.queue[1:]
		s.assign(head.guest.UID(), head.share)
	}
}

// DeallocatePesForGuest implements GuestScheduler.
func (s *SpaceSharedGuestScheduler) DeallocatePesForGuest(g *Guest) {
	uid := g.UID()
	s.dequeue(uid)
	if s.release(uid) {
		s.serveQueue()
	}
}

// DeallocatePesForAllGuests implements GuestScheduler.
func (s *SpaceSharedGuestScheduler) DeallocatePesForAllGuests() {
	for uid := range s.peMap {
		s.release(uid)
	}
	s.queue = nil
}

// AllocatedMipsForGuest implements GuestScheduler.
func (s *SpaceSharedGuestScheduler) AllocatedMipsForGuest(g *Guest) []float64 {
	return append([]float64(nil), s.mipsMap[g.UID()]...)
}

// TotalAllocatedMipsForGuest implements GuestScheduler.
func (s *SpaceSharedGuestScheduler) TotalAllocatedMipsForGuest(g *Guest) float64 {
	total := 0.0
	for _, m := range s.mipsMap[g.UID()] {
		total += m
	}
	return total
}
