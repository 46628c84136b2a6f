package datacenter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcsim/dcsim/sim"
	"github.com/dcsim/dcsim/sim/migration"
	"github.com/dcsim/dcsim/sim/trace"
)

type fixedClock float64

func (c fixedClock) Now() float64 { return float64(c) }

func newHosts(n int) []*sim.Host {
	hosts := make([]*sim.Host, n)
	for i := range hosts {
		hosts[i] = sim.NewHost(i, sim.NewPeList(1, 1000), 4096, 10000, 100000, sim.NewGuestScheduler(""), 0)
	}
	return hosts
}

func newGuest(id int, mips float64, ram int64) *sim.Guest {
	return sim.NewVm(id, 7, mips, 1, ram, 10, 10, nil)
}

// firstFitBundle makes plans predictable: static detection, smallest-RAM
// victims, first-fit destinations.
func firstFitBundle() *sim.PolicyBundle {
	return &sim.PolicyBundle{
		Detection: sim.DetectionConfig{Overload: "static"},
		Selection: sim.SelectionConfig{
			Guest:       sim.ChainConfig{Policies: []sim.PolicyRef{{Name: "mmt", Policy: "minimum-migration-time"}}},
			Destination: sim.ChainConfig{Policies: []sim.PolicyRef{{Name: "ff", Policy: "first-fit"}}},
		},
	}
}

func newOrchestrator(t *testing.T, hosts []*sim.Host, bundle *sim.PolicyBundle, tr *trace.SimulationTrace) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(hosts, bundle, sim.NewPartitionedRNG(sim.NewSimulationKey(42)), fixedClock(0), tr)
	require.NoError(t, err)
	return o
}

func TestNewOrchestrator_InvalidBundle_Errors(t *testing.T) {
	bundle := &sim.PolicyBundle{Placement: sim.PlacementConfig{Policy: "best-guess"}}
	_, err := NewOrchestrator(newHosts(1), bundle, sim.NewPartitionedRNG(sim.NewSimulationKey(1)), nil, nil)
	assert.Error(t, err)
}

func TestAllocateHostForGuest_FirstFitThenQueue(t *testing.T) {
	// GIVEN two 1000 MIPS hosts and first-fit placement
	hosts := newHosts(2)
	tr := trace.NewSimulationTrace(trace.TraceLevelDecisions)
	o := newOrchestrator(t, hosts, nil, tr)
	g1, g2, g3 := newGuest(1, 600, 256), newGuest(2, 600, 256), newGuest(3, 600, 256)

	// WHEN three 600 MIPS guests arrive
	require.True(t, o.AllocateHostForGuest(g1))
	require.True(t, o.AllocateHostForGuest(g2))
	placed := o.AllocateHostForGuest(g3)

	// THEN the first two fill the hosts in order and the third waits
	assert.Same(t, hosts[0], o.HostOf(g1))
	assert.Same(t, hosts[1], o.HostOf(g2))
	assert.False(t, placed)
	assert.Nil(t, g3.Host)
	assert.Equal(t, []*sim.Guest{g3}, o.Unplaceable())

	require.Len(t, tr.Placements, 3)
	assert.Equal(t, 0, tr.Placements[0].Host)
	assert.False(t, tr.Placements[2].Placed())
}

func TestRetryUnplaceable_PlacesOnceCapacityFrees(t *testing.T) {
	hosts := newHosts(1)
	o := newOrchestrator(t, hosts, nil, nil)
	g1, g2 := newGuest(1, 700, 256), newGuest(2, 700, 256)
	require.True(t, o.AllocateHostForGuest(g1))
	require.False(t, o.AllocateHostForGuest(g2))

	// WHEN nothing changed, a retry places nothing
	assert.Empty(t, o.RetryUnplaceable())

	// WHEN g1 leaves
	o.DeallocateHostForGuest(g1)

	// THEN the retry places g2 and empties the queue
	assert.Equal(t, []*sim.Guest{g2}, o.RetryUnplaceable())
	assert.Same(t, hosts[0], g2.Host)
	assert.Empty(t, o.Unplaceable())
}

func TestRetryUnplaceable_DropsDestroyedGuests(t *testing.T) {
	o := newOrchestrator(t, newHosts(1), nil, nil)
	big := newGuest(1, 5000, 256)
	require.False(t, o.AllocateHostForGuest(big))

	big.MarkDestroyed()

	assert.Empty(t, o.RetryUnplaceable())
	assert.Empty(t, o.Unplaceable())
}

func TestAllocateHostForGuest_DestroyedGuest_NotQueued(t *testing.T) {
	o := newOrchestrator(t, newHosts(1), nil, nil)
	g := newGuest(1, 100, 256)
	g.MarkDestroyed()

	assert.False(t, o.AllocateHostForGuest(g))
	assert.Empty(t, o.Unplaceable())
}

func TestDeallocateHostForGuest_Idempotent(t *testing.T) {
	hosts := newHosts(1)
	o := newOrchestrator(t, hosts, nil, nil)
	g := newGuest(1, 400, 256)
	require.True(t, o.AllocateHostForGuest(g))

	o.DeallocateHostForGuest(g)
	o.DeallocateHostForGuest(g)

	assert.Nil(t, o.HostOf(g))
	assert.Equal(t, 0, hosts[0].NumGuests())
	assert.InDelta(t, 1000, hosts[0].AvailableMips(), 1e-9)
	assert.Equal(t, int64(4096), hosts[0].RamProvisioner().Available())
}

func TestAllocateHostForGuestOn_FailedHost_Refused(t *testing.T) {
	hosts := newHosts(2)
	o := newOrchestrator(t, hosts, nil, nil)
	hosts[0].SetFailed(true)

	assert.False(t, o.AllocateHostForGuestOn(newGuest(1, 100, 256), hosts[0]))

	// AND automatic placement skips it
	g := newGuest(2, 100, 256)
	require.True(t, o.AllocateHostForGuest(g))
	assert.Same(t, hosts[1], g.Host)
}

func TestOptimizeAllocation_Overload_PlansAndRestores(t *testing.T) {
	// GIVEN host 0 at 100% with two guests, host 1 at 30%, host 2 empty
	hosts := newHosts(3)
	o := newOrchestrator(t, hosts, firstFitBundle(), nil)
	g1, g2, g3 := newGuest(1, 500, 512), newGuest(2, 500, 256), newGuest(3, 300, 256)
	require.True(t, o.AllocateHostForGuestOn(g1, hosts[0]))
	require.True(t, o.AllocateHostForGuestOn(g2, hosts[0]))
	require.True(t, o.AllocateHostForGuestOn(g3, hosts[1]))

	// WHEN consolidation plans
	maps := o.OptimizeAllocation(nil)

	// THEN the smaller-RAM guest leaves for the first host that stays under 90%
	require.Len(t, maps, 1)
	m := maps[0]
	assert.Same(t, g2, m.Guest)
	assert.Same(t, hosts[0], m.Source)
	assert.Same(t, hosts[1], m.Destination)
	assert.Equal(t, migration.CauseOverload, m.Cause)
	assert.Equal(t, "mmt/ff", m.Selector)

	// AND the hosts are exactly as before planning
	assert.Equal(t, []*sim.Guest{g1, g2}, hosts[0].Guests())
	assert.Equal(t, []*sim.Guest{g3}, hosts[1].Guests())
	assert.Same(t, hosts[0], g2.Host)
	assert.InDelta(t, 700, hosts[1].AvailableMips(), 1e-9)
	assert.InDelta(t, 0, hosts[0].AvailableMips(), 1e-9)
}

func TestOptimizeAllocation_CandidatesLimitVictims(t *testing.T) {
	hosts := newHosts(2)
	o := newOrchestrator(t, hosts, firstFitBundle(), nil)
	g1, g2 := newGuest(1, 500, 512), newGuest(2, 500, 256)
	require.True(t, o.AllocateHostForGuestOn(g1, hosts[0]))
	require.True(t, o.AllocateHostForGuestOn(g2, hosts[0]))

	// WHEN only g1 may move
	maps := o.OptimizeAllocation([]*sim.Guest{g1})

	// THEN g1 is chosen although g2 is cheaper to move
	require.Len(t, maps, 1)
	assert.Same(t, g1, maps[0].Guest)
	assert.Same(t, hosts[1], maps[0].Destination)
}

func TestOptimizeAllocation_Underload_DrainsHost(t *testing.T) {
	// GIVEN host 0 at 10%, host 1 at 50% and an empty host 2
	hosts := newHosts(3)
	o := newOrchestrator(t, hosts, firstFitBundle(), nil)
	g1, g2 := newGuest(1, 100, 256), newGuest(2, 500, 256)
	require.True(t, o.AllocateHostForGuestOn(g1, hosts[0]))
	require.True(t, o.AllocateHostForGuestOn(g2, hosts[1]))

	maps := o.OptimizeAllocation(nil)

	// THEN host 0 is emptied onto host 1, never onto the empty host
	require.Len(t, maps, 1)
	assert.Same(t, g1, maps[0].Guest)
	assert.Same(t, hosts[1], maps[0].Destination)
	assert.Equal(t, migration.CauseUnderload, maps[0].Cause)
	assert.Same(t, hosts[0], g1.Host)
}

func TestOptimizeAllocation_Underload_AllOrNothing(t *testing.T) {
	// GIVEN host 0 at 16% with two guests and host 1 at 85%
	hosts := newHosts(2)
	o := newOrchestrator(t, hosts, firstFitBundle(), nil)
	g1, g2, g3 := newGuest(1, 80, 256), newGuest(2, 80, 256), newGuest(3, 850, 256)
	require.True(t, o.AllocateHostForGuestOn(g1, hosts[0]))
	require.True(t, o.AllocateHostForGuestOn(g2, hosts[0]))
	require.True(t, o.AllocateHostForGuestOn(g3, hosts[1]))

	// WHEN no guest of host 0 fits under the threshold elsewhere
	maps := o.OptimizeAllocation(nil)

	// THEN nothing moves and host 0 keeps its guests in order
	assert.Empty(t, maps)
	assert.Equal(t, []*sim.Guest{g1, g2}, hosts[0].Guests())
	assert.Equal(t, []*sim.Guest{g3}, hosts[1].Guests())
}

func TestOptimizeAllocation_NoDestination_NoMap(t *testing.T) {
	hosts := newHosts(1)
	o := newOrchestrator(t, hosts, firstFitBundle(), nil)
	g1, g2 := newGuest(1, 500, 512), newGuest(2, 500, 256)
	require.True(t, o.AllocateHostForGuestOn(g1, hosts[0]))
	require.True(t, o.AllocateHostForGuestOn(g2, hosts[0]))

	assert.Empty(t, o.OptimizeAllocation(nil))
	assert.Equal(t, []*sim.Guest{g1, g2}, hosts[0].Guests())
}

func TestAddRemoveHost(t *testing.T) {
	hosts := newHosts(1)
	o := newOrchestrator(t, nil, nil, nil)
	o.AddHost(hosts[0])
	o.AddHost(hosts[0])
	require.Len(t, o.Hosts, 1)

	g := newGuest(1, 100, 256)
	require.True(t, o.AllocateHostForGuest(g))

	o.RemoveHost(hosts[0])
	assert.Empty(t, o.Hosts)
	assert.Nil(t, o.HostOf(g))
}
