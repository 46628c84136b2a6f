package datacenter

import (
	"github.com/dcsim/dcsim/sim"
	"github.com/dcsim/dcsim/sim/engine"
)

// CreateAck answers a guest create request. A guest that could not be
// placed yet stays queued and is acknowledged again once it is placed.
type CreateAck struct {
	Guest  *sim.Guest
	Placed bool
}

// Submission hands a workload to a guest.
type Submission struct {
	Guest    *sim.Guest
	Workload *sim.Workload
}

// Return reports a finished workload to its owner.
type Return struct {
	Guest    *sim.Guest
	Workload *sim.Workload
}

// payload extracts the typed payload of ev, logging and reporting false on
// a mismatch.
func payload[T any](owner string, ev *engine.Event) (T, bool) {
	v, ok := ev.Payload.(T)
	if !ok {
		logWrongPayload(owner, ev)
	}
	return v, ok
}
