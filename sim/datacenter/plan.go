package datacenter

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/dcsim/dcsim/sim"
	"github.com/dcsim/dcsim/sim/detection"
	"github.com/dcsim/dcsim/sim/migration"
	"github.com/dcsim/dcsim/sim/placement"
	"github.com/dcsim/dcsim/sim/policy"
	"github.com/dcsim/dcsim/sim/selection"
)

func placementChain(cfg sim.PlacementConfig, rng *sim.PartitionedRNG) (*policy.Chain[*sim.Host, *sim.Guest], error) {
	r := rng.ForSubsystem(sim.SubsystemPlacement)
	if cfg.Policy == "auction" {
		r = rng.ForSubsystem(sim.SubsystemAuction)
	}
	return placement.BuildChain(cfg, r)
}

// victim is a guest chosen to leave source.
type victim struct {
	guest  *sim.Guest
	source *sim.Host
	by     string
}

type stepKind int

const (
	stepDetach stepKind = iota
	stepCreate
)

// step is one tentative change made while planning.
type step struct {
	kind  stepKind
	host  *sim.Host
	guest *sim.Guest
	pos   int
}

// plan journals the tentative changes of one OptimizeAllocation call so
// they can be undone in reverse order.
type plan struct {
	o       *Orchestrator
	allowed policy.Set[*sim.Guest]
	journal []step
}

func newPlan(o *Orchestrator, candidates []*sim.Guest) *plan {
	p := &plan{o: o}
	if candidates != nil {
		p.allowed = policy.NewSet(candidates...)
	}
	return p
}

func (p *plan) migratable(h *sim.Host) []*sim.Guest {
	guests := selection.Migratable(h)
	if p.allowed == nil {
		return guests
	}
	out := guests[:0]
	for _, g := range guests {
		if p.allowed.Has(g) {
			out = append(out, g)
		}
	}
	return out
}

func (p *plan) detach(h *sim.Host, g *sim.Guest) {
	if pos := h.Detach(g); pos >= 0 {
		p.journal = append(p.journal, step{kind: stepDetach, host: h, guest: g, pos: pos})
	}
}

// mark returns a journal position for rollback.
func (p *plan) mark() int { return len(p.journal) }

// rollback undoes every step after mark, newest first.
func (p *plan) rollback(mark int) {
	for i := len(p.journal) - 1; i >= mark; i-- {
		s := p.journal[i]
		switch s.kind {
		case stepCreate:
			s.host.GuestDestroy(s.guest)
		case stepDetach:
			s.host.Attach(s.guest, s.pos)
		}
	}
	p.journal = p.journal[:mark]
}

func (p *plan) restore(now float64) {
	if len(p.journal) > 0 {
		logrus.Debugf("[%.2f] rolling back %d planning steps", now, len(p.journal))
	}
	p.rollback(0)
}

// evictFromOverloaded picks guests off each overloaded host until its
// demand drops under the static threshold.
func (p *plan) evictFromOverloaded(overloaded policy.Set[*sim.Host], now float64) []victim {
	var victims []victim
	for _, h := range p.o.Hosts {
		if !overloaded.Has(h) {
			continue
		}
		chosen := make(policy.Set[*sim.Guest])
		for {
			candidates := p.migratable(h)
			if len(candidates) == 0 {
				break
			}
			g, by, err := p.o.guests.Decide(candidates, selection.Victim{Host: h, Now: now}, chosen)
			if err != nil {
				logrus.Warnf("[%.2f] %s stays overloaded: %v", now, h, err)
				break
			}
			chosen.Add(g)
			p.detach(h, g)
			victims = append(victims, victim{guest: g, source: h, by: by})
			if detection.Utilization(h, now) <= p.o.threshold {
				break
			}
		}
	}
	return victims
}

// findDestination picks a host for g with the destination chain and
// tentatively places g there. Hosts that would end up above the static
// threshold are skipped.
func (p *plan) findDestination(g *sim.Guest, excluded policy.Set[*sim.Host], now float64) (*sim.Host, string) {
	skip := excluded.Clone()
	for {
		candidates := p.o.suitableHosts(g, skip)
		if len(candidates) == 0 {
			return nil, ""
		}
		h, by, err := p.o.destination.Decide(candidates, g, skip)
		if err != nil {
			logrus.Debugf("[%.2f] destination for %s: %v", now, g.UID(), err)
			return nil, ""
		}
		if !h.GuestCreate(g) {
			skip.Add(h)
			continue
		}
		if detection.Utilization(h, now) > p.o.threshold {
			h.GuestDestroy(g)
			skip.Add(h)
			continue
		}
		p.journal = append(p.journal, step{kind: stepCreate, host: h, guest: g})
		return h, by
	}
}

// drainUnderloaded empties underloaded hosts, least utilized first. A host
// is drained only when every guest on it finds a destination; hosts that
// already receive guests are neither drained nor used as destinations
// again, and empty hosts stay empty.
func (p *plan) drainUnderloaded(overloaded policy.Set[*sim.Host], planned []migration.Map, now float64) []migration.Map {
	excluded := overloaded.Clone()
	for _, m := range planned {
		excluded.Add(m.Destination)
	}
	var out []migration.Map
	for {
		h := detection.MostUnderloaded(p.o.Hosts, now, p.o.underload, excluded)
		if h == nil {
			return out
		}
		excluded.Add(h)
		guests := p.migratable(h)
		if len(guests) == 0 || len(guests) != h.NumGuests() {
			continue
		}
		destExcluded := excluded.Clone()
		for _, other := range p.o.Hosts {
			if other.NumGuests() == 0 && len(other.GuestsMigratingIn()) == 0 {
				destExcluded.Add(other)
			}
		}

		mark := p.mark()
		victims := make([]victim, len(guests))
		for i, g := range guests {
			victims[i] = victim{guest: g, source: h, by: "underload"}
		}
		sortByUtilization(victims, now)
		var batch []migration.Map
		for _, v := range victims {
			p.detach(h, v.guest)
			destExcluded.Add(h)
			dest, by := p.findDestination(v.guest, destExcluded, now)
			if dest == nil {
				batch = nil
				break
			}
			batch = append(batch, p.o.newMap(v, dest, migration.CauseUnderload, by))
		}
		if batch == nil {
			logrus.Debugf("[%.2f] %s is underloaded but cannot be drained", now, h)
			p.rollback(mark)
			continue
		}
		for _, m := range batch {
			excluded.Add(m.Destination)
		}
		out = append(out, batch...)
	}
}

// sortByUtilization orders victims by current MIPS demand, largest first.
func sortByUtilization(victims []victim, now float64) {
	sort.SliceStable(victims, func(i, j int) bool {
		return victims[i].guest.CurrentRequestedTotalMips(now) > victims[j].guest.CurrentRequestedTotalMips(now)
	})
}
