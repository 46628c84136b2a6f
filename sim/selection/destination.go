package selection

import (
	"fmt"
	"math"

	"github.com/dcsim/dcsim/sim"
	"github.com/dcsim/dcsim/sim/placement"
	"github.com/dcsim/dcsim/sim/policy"
	"github.com/dcsim/dcsim/sim/stats"
)

// DestinationPolicy picks the host a migrating guest moves to. It shares
// its shape with placement policies.
type DestinationPolicy = placement.Policy

// DefaultMinHistory is the number of host samples a correlation-based
// destination needs to exceed before it is considered.
const DefaultMinHistory = 5

// IsValidDestinationPolicy returns true if name is a recognized destination policy.
func IsValidDestinationPolicy(name string) bool { return sim.ValidDestinationPolicies[name] }

// NewDestinationPolicy creates a destination policy by name. minHistory
// applies to minimum-correlation (<= 0 means DefaultMinHistory). Panics on
// unrecognized names.
func NewDestinationPolicy(name string, minHistory int) DestinationPolicy {
	switch name {
	case "first-fit":
		return placement.FirstFit{}
	case "most-full":
		return placement.MostFull{}
	case "least-full":
		return placement.LeastFull{}
	case "minimum-correlation":
		if minHistory <= 0 {
			minHistory = DefaultMinHistory
		}
		return MinimumCorrelationDestination{MinHistory: minHistory}
	default:
		panic(fmt.Sprintf("unknown destination policy %q", name))
	}
}

// MinimumCorrelationDestination sends the guest to the host whose load is
// least correlated with the guest's, lowering the chance that both peak
// together. Only hosts with more than MinHistory samples are considered.
type MinimumCorrelationDestination struct {
	MinHistory int
}

// Select implements DestinationPolicy.
func (m MinimumCorrelationDestination) Select(candidates []*sim.Host, g *sim.Guest, excluded policy.Set[*sim.Host]) (*sim.Host, error) {
	const name = "minimum-correlation"
	guestSeries := g.UtilizationHistory()
	var best *sim.Host
	bestCorr := math.Inf(1)
	considered := 0
	for _, h := range candidates {
		if excluded.Has(h) || h.History().Len() <= m.MinHistory {
			continue
		}
		considered++
		c := stats.Pearson(guestSeries, h.UtilizationHistory())
		if math.IsNaN(c) {
			c = nanHigh
		}
		if c < bestCorr {
			bestCorr = c
			best = h
		}
	}
	if considered == 0 {
		return nil, policy.Degenerate(name, fmt.Sprintf("no candidate has more than %d samples", m.MinHistory))
	}
	if bestCorr == nanHigh {
		return nil, policy.Degenerate(name, "correlation undefined for every candidate")
	}
	return best, nil
}
