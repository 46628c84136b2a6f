package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func draw(r *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = r.Float64()
	}
	return out
}

func TestPartitionedRNG_SameKeySameStreams(t *testing.T) {
	a := NewPartitionedRNG(NewSimulationKey(42))
	b := NewPartitionedRNG(NewSimulationKey(42))

	for _, name := range []string{SubsystemWorkload, SubsystemPlacement, SubsystemSelection, SubsystemAuction} {
		assert.Equal(t, draw(a.ForSubsystem(name), 5), draw(b.ForSubsystem(name), 5), name)
	}
}

func TestPartitionedRNG_StreamsAreIsolated(t *testing.T) {
	// GIVEN two runs, one of which draws heavily from the workload stream
	a := NewPartitionedRNG(NewSimulationKey(7))
	b := NewPartitionedRNG(NewSimulationKey(7))
	draw(a.ForSubsystem(SubsystemWorkload), 100)

	// THEN the placement stream of both runs is unaffected
	assert.Equal(t, draw(a.ForSubsystem(SubsystemPlacement), 3), draw(b.ForSubsystem(SubsystemPlacement), 3))
}

func TestPartitionedRNG_WorkloadUsesMasterSeed(t *testing.T) {
	p := NewPartitionedRNG(NewSimulationKey(42))
	direct := rand.New(rand.NewSource(42))

	assert.Equal(t, draw(direct, 10), draw(p.ForSubsystem(SubsystemWorkload), 10))
}

func TestPartitionedRNG_CachesStreams(t *testing.T) {
	p := NewPartitionedRNG(NewSimulationKey(0))
	assert.Empty(t, p.streams)

	r := p.ForSubsystem(SubsystemSelection)
	assert.Same(t, r, p.ForSubsystem(SubsystemSelection))
	assert.Len(t, p.streams, 1)
	assert.Equal(t, SimulationKey(0), p.Key())
}

func TestPartitionedRNG_SubsystemsDiffer(t *testing.T) {
	p := NewPartitionedRNG(NewSimulationKey(-1))
	seen := map[int64]string{}
	for _, name := range []string{SubsystemWorkload, SubsystemPlacement, SubsystemSelection, SubsystemAuction, ""} {
		v := p.ForSubsystem(name).Int63()
		if other, ok := seen[v]; ok {
			t.Errorf("subsystems %q and %q start with the same value", name, other)
		}
		seen[v] = name
	}
}
