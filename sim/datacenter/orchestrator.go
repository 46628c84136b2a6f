// Package datacenter wires hosts, placement, consolidation and migrations
// into simulation entities driven by the event kernel.
package datacenter

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dcsim/dcsim/sim"
	"github.com/dcsim/dcsim/sim/auction"
	"github.com/dcsim/dcsim/sim/detection"
	"github.com/dcsim/dcsim/sim/migration"
	"github.com/dcsim/dcsim/sim/policy"
	"github.com/dcsim/dcsim/sim/selection"
	"github.com/dcsim/dcsim/sim/trace"
)

// Clock supplies the current simulation time.
type Clock interface {
	Now() float64
}

// Orchestrator is the allocation policy of one datacenter: it places new
// guests, keeps the guest-to-host table and plans consolidation.
//
// Guests that find no host are queued and retried by RetryUnplaceable;
// a request is never dropped silently.
type Orchestrator struct {
	Hosts []*sim.Host

	placement   *policy.Chain[*sim.Host, *sim.Guest]
	guests      *policy.Chain[*sim.Guest, selection.Victim]
	destination *policy.Chain[*sim.Host, *sim.Guest]
	detector    detection.OverloadDetector
	threshold   float64 // static bound used while planning
	underload   float64

	clock       Clock
	ids         *auction.IDSource
	trace       *trace.SimulationTrace
	table       map[string]*sim.Host
	unplaceable []*sim.Guest
}

// NewOrchestrator builds the policy chains of bundle. rng provides the
// placement, selection and auction subsystems. tr may be nil.
func NewOrchestrator(hosts []*sim.Host, bundle *sim.PolicyBundle, rng *sim.PartitionedRNG, clock Clock, tr *trace.SimulationTrace) (*Orchestrator, error) {
	if bundle == nil {
		bundle = &sim.PolicyBundle{}
	}
	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	placementChain, err := placementChain(bundle.Placement, rng)
	if err != nil {
		return nil, fmt.Errorf("placement: %w", err)
	}
	guestChain, err := selection.BuildGuestChain(bundle.Selection.Guest, rng.ForSubsystem(sim.SubsystemSelection))
	if err != nil {
		return nil, fmt.Errorf("guest selection: %w", err)
	}
	destChain, err := selection.BuildDestinationChain(bundle.Selection.Destination)
	if err != nil {
		return nil, fmt.Errorf("destination selection: %w", err)
	}
	threshold := detection.DefaultThreshold
	if bundle.Detection.Threshold != nil {
		threshold = *bundle.Detection.Threshold
	}
	return &Orchestrator{
		Hosts:       hosts,
		placement:   placementChain,
		guests:      guestChain,
		destination: destChain,
		detector:    detection.NewOverloadDetector(bundle.Detection),
		threshold:   threshold,
		underload:   detection.UnderloadThreshold(bundle.Detection),
		clock:       clock,
		ids:         auction.NewIDSource(rng.ForSubsystem(sim.SubsystemAuction)),
		trace:       tr,
		table:       make(map[string]*sim.Host),
	}, nil
}

// Detector returns the overload detector in use.
func (o *Orchestrator) Detector() detection.OverloadDetector { return o.detector }

// Threshold is the static utilization bound destinations must stay under.
func (o *Orchestrator) Threshold() float64 { return o.threshold }

// PlacementChain returns the placement chain.
func (o *Orchestrator) PlacementChain() *policy.Chain[*sim.Host, *sim.Guest] { return o.placement }

func (o *Orchestrator) now() float64 {
	if o.clock == nil {
		return 0
	}
	return o.clock.Now()
}

// HostOf returns the host g is allocated to, or nil.
func (o *Orchestrator) HostOf(g *sim.Guest) *sim.Host { return o.table[g.UID()] }

// AllocateHostForGuest places g on a host chosen by the placement chain.
// When no host is suitable g joins the unplaceable queue and false is
// returned.
func (o *Orchestrator) AllocateHostForGuest(g *sim.Guest) bool {
	if !o.place(g) {
		o.enqueue(g)
		return false
	}
	return true
}

func (o *Orchestrator) place(g *sim.Guest) bool {
	now := o.now()
	if !g.IsAlive() {
		logrus.Warnf("[%.2f] stale reference: %s was destroyed before placement", now, g.UID())
		return false
	}
	if h := o.table[g.UID()]; h != nil {
		return true
	}
	candidates := o.suitableHosts(g, nil)
	tried := make(policy.Set[*sim.Host])
	for len(tried) < len(candidates) {
		h, by, err := o.placement.Decide(candidates, g, tried)
		if err != nil {
			logrus.Debugf("[%.2f] placement of %s: %v", now, g.UID(), err)
			break
		}
		if o.AllocateHostForGuestOn(g, h) {
			o.trace.RecordPlacement(trace.PlacementRecord{
				GuestUID: g.UID(), Clock: now, Host: h.ID, Policy: by,
				Reason: fmt.Sprintf("%s chose %s", by, h),
			})
			return true
		}
		tried.Add(h)
	}
	o.trace.RecordPlacement(trace.PlacementRecord{
		GuestUID: g.UID(), Clock: now, Host: -1,
		Reason: fmt.Sprintf("no host among %d suitable", len(candidates)),
	})
	return false
}

// AllocateHostForGuestOn places g on h, bypassing the placement chain.
func (o *Orchestrator) AllocateHostForGuestOn(g *sim.Guest, h *sim.Host) bool {
	if !g.IsAlive() || h.IsFailed() {
		return false
	}
	if !h.GuestCreate(g) {
		return false
	}
	o.table[g.UID()] = h
	logrus.Debugf("[%.2f] %s placed on %s", o.now(), g.UID(), h)
	return true
}

// DeallocateHostForGuest releases g from its host. Deallocating a guest
// that holds no host is a no-op.
func (o *Orchestrator) DeallocateHostForGuest(g *sim.Guest) {
	o.dequeue(g)
	h, ok := o.table[g.UID()]
	if !ok {
		return
	}
	delete(o.table, g.UID())
	h.GuestDestroy(g)
}

// Moved records that a completed migration put g on h.
func (o *Orchestrator) Moved(g *sim.Guest, h *sim.Host) {
	if h == nil {
		delete(o.table, g.UID())
		return
	}
	o.table[g.UID()] = h
}

// AddHost makes h available for placement.
func (o *Orchestrator) AddHost(h *sim.Host) {
	for _, x := range o.Hosts {
		if x == h {
			return
		}
	}
	o.Hosts = append(o.Hosts, h)
}

// RemoveHost withdraws h. Guests still recorded on it lose their table
// entry.
func (o *Orchestrator) RemoveHost(h *sim.Host) {
	for i, x := range o.Hosts {
		if x == h {
			o.Hosts = append(o.Hosts[:i], o.Hosts[i+1:]...)
			break
		}
	}
	for uid, x := range o.table {
		if x == h {
			delete(o.table, uid)
		}
	}
}

// Unplaceable returns the queued guests in arrival order.
func (o *Orchestrator) Unplaceable() []*sim.Guest {
	return append([]*sim.Guest(nil), o.unplaceable...)
}

func (o *Orchestrator) enqueue(g *sim.Guest) {
	if !g.IsAlive() {
		return
	}
	for _, q := range o.unplaceable {
		if q == g {
			return
		}
	}
	logrus.Warnf("[%.2f] %s is unplaceable; queued for retry", o.now(), g.UID())
	o.unplaceable = append(o.unplaceable, g)
}

func (o *Orchestrator) dequeue(g *sim.Guest) {
	for i, q := range o.unplaceable {
		if q == g {
			o.unplaceable = append(o.unplaceable[:i], o.unplaceable[i+1:]...)
			return
		}
	}
}

// RetryUnplaceable tries every queued guest again in arrival order and
// returns the ones placed. Destroyed guests leave the queue.
func (o *Orchestrator) RetryUnplaceable() []*sim.Guest {
	if len(o.unplaceable) == 0 {
		return nil
	}
	var placed []*sim.Guest
	waiting := o.unplaceable[:0]
	for _, g := range o.unplaceable {
		if !g.IsAlive() {
			continue
		}
		if o.place(g) {
			placed = append(placed, g)
			continue
		}
		waiting = append(waiting, g)
	}
	o.unplaceable = waiting
	return placed
}

// suitableHosts lists the hosts that can take g right now, in host order.
func (o *Orchestrator) suitableHosts(g *sim.Guest, excluded policy.Set[*sim.Host]) []*sim.Host {
	var out []*sim.Host
	for _, h := range o.Hosts {
		if excluded.Has(h) || h.IsFailed() || h == g.Host {
			continue
		}
		if h.IsSuitableForGuest(g) {
			out = append(out, h)
		}
	}
	return out
}

// OptimizeAllocation plans migrations. Overloaded hosts shed guests chosen
// by the guest chain until they drop under the static threshold; the
// evicted guests, most demanding first, go to hosts picked by the
// destination chain. Then the most underloaded hosts are emptied when every
// guest on them has a destination.
//
// Planning runs on the live hosts and is rolled back before returning: the
// returned maps are decisions, not moves. Only guests in candidates are
// considered; nil means every guest.
func (o *Orchestrator) OptimizeAllocation(candidates []*sim.Guest) []migration.Map {
	now := o.now()
	p := newPlan(o, candidates)
	defer p.restore(now)

	overloaded := make(policy.Set[*sim.Host])
	for _, h := range o.Hosts {
		if h.IsFailed() || h.NumGuests() == 0 {
			continue
		}
		over, err := o.detector.IsOverloaded(h, now)
		if err != nil {
			logrus.Debugf("[%.2f] %s: overload undecided: %v", now, h, err)
			continue
		}
		if over {
			overloaded.Add(h)
		}
	}

	var maps []migration.Map
	if len(overloaded) > 0 {
		victims := p.evictFromOverloaded(overloaded, now)
		sortByUtilization(victims, now)
		for _, v := range victims {
			dest, by := p.findDestination(v.guest, overloaded, now)
			if dest == nil {
				logrus.Warnf("[%.2f] no destination for %s leaving overloaded %s", now, v.guest.UID(), v.source)
				continue
			}
			maps = append(maps, o.newMap(v, dest, migration.CauseOverload, by))
		}
	}
	maps = append(maps, p.drainUnderloaded(overloaded, maps, now)...)
	return maps
}

func (o *Orchestrator) newMap(v victim, dest *sim.Host, cause, destBy string) migration.Map {
	return migration.Map{
		ID:          o.ids.New(),
		Guest:       v.guest,
		Source:      v.source,
		Destination: dest,
		Cause:       cause,
		Selector:    v.by + "/" + destBy,
	}
}
