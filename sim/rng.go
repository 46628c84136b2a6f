package sim

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey is the master seed of a run. Equal keys and equal inputs
// give identical traces.
type SimulationKey int64

// NewSimulationKey wraps a seed.
func NewSimulationKey(seed int64) SimulationKey { return SimulationKey(seed) }

// RNG subsystems. Each decision family draws from its own stream so that
// changing one policy does not shift the random choices of another.
const (
	// SubsystemWorkload seeds stochastic utilization models. It uses the
	// master seed as is, so a scenario's demand does not depend on the
	// policy bundle.
	SubsystemWorkload = "workload"
	// SubsystemPlacement drives random initial placement.
	SubsystemPlacement = "placement"
	// SubsystemSelection drives random guest selection.
	SubsystemSelection = "selection"
	// SubsystemAuction seeds auction round identifiers.
	SubsystemAuction = "auction"
)

// PartitionedRNG hands out one lazily created *rand.Rand per subsystem.
// Streams other than SubsystemWorkload are seeded with the master seed
// XOR the FNV-1a hash of the subsystem name.
//
// Not safe for concurrent use; the kernel runs on one goroutine.
type PartitionedRNG struct {
	key     SimulationKey
	streams map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG with no streams yet.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{key: key, streams: make(map[string]*rand.Rand)}
}

// ForSubsystem returns the stream for name, creating it on first use.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if r, ok := p.streams[name]; ok {
		return r
	}
	seed := int64(p.key)
	if name != SubsystemWorkload {
		seed ^= fnv1a64(name)
	}
	r := rand.New(rand.NewSource(seed))
	p.streams[name] = r
	return r
}

// Key returns the master seed.
func (p *PartitionedRNG) Key() SimulationKey { return p.key }

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}
