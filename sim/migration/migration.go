// Package migration tracks guests moving between hosts.
package migration

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dcsim/dcsim/sim"
)

// bitsPerMB converts MB of RAM to megabits.
const bitsPerMB = 8000

// Delay is the time to copy ramMB of memory over a link of bwMbps, with
// half of the link reserved for the migration traffic:
// RAM / (BW / (2 × 8000)).
func Delay(ramMB, bwMbps int64) float64 {
	if bwMbps <= 0 {
		return 0
	}
	return float64(ramMB) / (float64(bwMbps) / (2 * bitsPerMB))
}

// GuestDelay is Delay for g leaving its current host, using the host's
// bandwidth capacity.
func GuestDelay(g *sim.Guest, from *sim.Host) float64 {
	return Delay(g.Ram, from.BwProvisioner().Capacity())
}

// Causes of a migration.
const (
	CauseOverload  = "overload"
	CauseUnderload = "underload"
)

// Map is one decided migration.
type Map struct {
	ID          uuid.UUID
	Guest       *sim.Guest
	Source      *sim.Host
	Destination *sim.Host
	Cause       string
	// Selector names the policies that picked the guest and the destination.
	Selector string
}

func (m Map) String() string {
	return fmt.Sprintf("migrate %s %s -> %s", m.Guest.UID(), m.Source, m.Destination)
}

// InFlight is a migration that has started and not yet completed.
type InFlight struct {
	Map
	Start  float64
	Finish float64
}

// Tracker holds in-flight migrations keyed by guest.
type Tracker struct {
	inFlight  map[string]*InFlight
	order     []string
	completed int
	canceled  int
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{inFlight: make(map[string]*InFlight)}
}

// Start reserves capacity for m on its destination, marks the guest as
// migrating and records the migration. It fails if the guest is already
// moving, is gone, or does not fit.
func (t *Tracker) Start(m Map, now float64) (*InFlight, error) {
	uid := m.Guest.UID()
	if _, busy := t.inFlight[uid]; busy {
		return nil, fmt.Errorf("%s already migrating", uid)
	}
	if !m.Guest.IsAlive() {
		return nil, fmt.Errorf("%s was destroyed", uid)
	}
	if m.Source == m.Destination {
		return nil, fmt.Errorf("%s: source and destination are both %s", uid, m.Source)
	}
	if !m.Destination.AddMigratingInGuest(m.Guest) {
		return nil, fmt.Errorf("%s does not fit on %s", uid, m.Destination)
	}
	m.Guest.InMigration = true
	f := &InFlight{Map: m, Start: now, Finish: now + GuestDelay(m.Guest, m.Source)}
	t.inFlight[uid] = f
	t.order = append(t.order, uid)
	logrus.Infof("[%.2f] migration started: %s (eta %.2f)", now, m, f.Finish)
	return f, nil
}

// Complete moves the guest: it leaves the source, its destination
// reservation becomes residency. Returns false (and drops the migration)
// when the guest or destination is no longer usable.
func (t *Tracker) Complete(g *sim.Guest, now float64) bool {
	f, ok := t.remove(g)
	if !ok {
		return false
	}
	g.InMigration = false
	f.Destination.RemoveMigratingInGuest(g)
	if !g.IsAlive() || f.Destination.IsFailed() {
		logrus.Warnf("[%.2f] migration of %s dropped: stale reference", now, g.UID())
		t.canceled++
		return false
	}
	f.Source.GuestDestroy(g)
	if !f.Destination.GuestCreate(g) {
		logrus.Warnf("[%.2f] %s no longer fits on %s; returning to %s", now, g.UID(), f.Destination, f.Source)
		if !f.Source.GuestCreate(g) {
			logrus.Warnf("[%.2f] %s lost: neither host can hold it", now, g.UID())
		}
		t.canceled++
		return false
	}
	g.BeingInstantiated = false
	t.completed++
	logrus.Infof("[%.2f] migration finished: %s", now, f.Map)
	return true
}

// Cancel drops an in-flight migration and frees its reservation.
func (t *Tracker) Cancel(g *sim.Guest) bool {
	f, ok := t.remove(g)
	if !ok {
		return false
	}
	g.InMigration = false
	f.Destination.RemoveMigratingInGuest(g)
	t.canceled++
	return true
}

func (t *Tracker) remove(g *sim.Guest) (*InFlight, bool) {
	uid := g.UID()
	f, ok := t.inFlight[uid]
	if !ok {
		return nil, false
	}
	delete(t.inFlight, uid)
	for i, id := range t.order {
		if id == uid {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return f, true
}

// Get returns the in-flight migration of g.
func (t *Tracker) Get(g *sim.Guest) (*InFlight, bool) {
	f, ok := t.inFlight[g.UID()]
	return f, ok
}

// InFlight returns the in-flight migrations in start order.
func (t *Tracker) InFlight() []*InFlight {
	out := make([]*InFlight, len(t.order))
	for i, id := range t.order {
		out[i] = t.inFlight[id]
	}
	return out
}

// Count returns the number of in-flight migrations.
func (t *Tracker) Count() int { return len(t.inFlight) }

// Completed returns the number of finished migrations.
func (t *Tracker) Completed() int { return t.completed }

// Canceled returns the number of dropped migrations.
func (t *Tracker) Canceled() int { return t.canceled }
