package selection

import (
	"fmt"
	"math/rand"

	"github.com/dcsim/dcsim/sim"
	"github.com/dcsim/dcsim/sim/policy"
)

// DefaultGuestChain evicts the guest most correlated with its host and
// falls back to the cheapest guest to move.
func DefaultGuestChain() sim.ChainConfig {
	return sim.ChainConfig{Policies: []sim.PolicyRef{
		{Name: "mc", Policy: "maximum-correlation", Metric: MetricPearson, Fallback: "mmt"},
		{Name: "mmt", Policy: "minimum-migration-time"},
	}}
}

// DefaultDestinationChain prefers the least correlated host and falls back
// to the host with the most free MIPS.
func DefaultDestinationChain() sim.ChainConfig {
	return sim.ChainConfig{Policies: []sim.PolicyRef{
		{Name: "corr", Policy: "minimum-correlation", Fallback: "lf"},
		{Name: "lf", Policy: "least-full"},
	}}
}

// BuildGuestChain registers every configured guest policy in an arena and
// resolves the chain from its entry. An empty config gets
// DefaultGuestChain.
func BuildGuestChain(cfg sim.ChainConfig, rng *rand.Rand) (*policy.Chain[*sim.Guest, Victim], error) {
	if len(cfg.Policies) == 0 {
		cfg = DefaultGuestChain()
	}
	arena := policy.NewArena[*sim.Guest, Victim]()
	for _, ref := range cfg.Policies {
		if !IsValidGuestPolicy(ref.Policy) {
			return nil, fmt.Errorf("unknown guest selection policy %q", ref.Policy)
		}
		if !IsValidMetric(ref.Metric) {
			return nil, fmt.Errorf("policy %q: unknown metric %q", ref.Name, ref.Metric)
		}
		if err := arena.Register(ref.Name, NewGuestPolicy(ref.Policy, ref.Metric, rng), ref.Fallback); err != nil {
			return nil, err
		}
	}
	return arena.Resolve(cfg.Entry())
}

// BuildDestinationChain is BuildGuestChain for destination policies.
func BuildDestinationChain(cfg sim.ChainConfig) (*policy.Chain[*sim.Host, *sim.Guest], error) {
	if len(cfg.Policies) == 0 {
		cfg = DefaultDestinationChain()
	}
	arena := policy.NewArena[*sim.Host, *sim.Guest]()
	for _, ref := range cfg.Policies {
		if !IsValidDestinationPolicy(ref.Policy) {
			return nil, fmt.Errorf("unknown destination policy %q", ref.Policy)
		}
		if err := arena.Register(ref.Name, NewDestinationPolicy(ref.Policy, ref.MinHistory), ref.Fallback); err != nil {
			return nil, err
		}
	}
	return arena.Resolve(cfg.Entry())
}
