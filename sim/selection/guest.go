// Package selection chooses, for an overloaded or underloaded host, which
// guest to migrate and where it should go. Policies only read host and
// guest state; the datacenter commits the decision.
package selection

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/dcsim/dcsim/sim"
	"github.com/dcsim/dcsim/sim/policy"
	"github.com/dcsim/dcsim/sim/stats"
)

// Victim is the context of a guest selection: the host being relieved and
// the current time.
type Victim struct {
	Host *sim.Host
	Now  float64
}

// GuestPolicy picks the guest to migrate off Victim.Host.
type GuestPolicy = policy.Policy[*sim.Guest, Victim]

// Correlation metrics.
const (
	MetricPearson    = "pearson"
	MetricRegression = "regression"
)

// nanLow and nanHigh rank an undefined correlation last for maximum and
// minimum selection respectively. Valid values lie in [-1, 1].
const (
	nanLow  = -2.0
	nanHigh = 2.0
)

// IsValidGuestPolicy returns true if name is a recognized guest selection policy.
func IsValidGuestPolicy(name string) bool { return sim.ValidGuestSelectionPolicies[name] }

// IsValidMetric returns true if name is a recognized correlation metric.
func IsValidMetric(name string) bool { return sim.ValidCorrelationMetrics[name] }

// NewGuestPolicy creates a guest selection policy by name. metric applies
// to the correlation policies ("" means pearson). Panics on unrecognized
// names.
func NewGuestPolicy(name, metric string, rng *rand.Rand) GuestPolicy {
	if !IsValidMetric(metric) {
		panic(fmt.Sprintf("unknown correlation metric %q", metric))
	}
	if metric == "" {
		metric = MetricPearson
	}
	switch name {
	case "maximum-usage":
		return MaximumUsage{}
	case "minimum-migration-time":
		return MinimumMigrationTime{}
	case "minimum-utilization":
		return MinimumUtilization{}
	case "maximum-correlation":
		return Correlation{Metric: metric, Maximize: true}
	case "minimum-correlation":
		return Correlation{Metric: metric}
	case "random":
		if rng == nil {
			rng = rand.New(rand.NewSource(1))
		}
		return &RandomGuest{rng: rng}
	default:
		panic(fmt.Sprintf("unknown guest selection policy %q", name))
	}
}

// Migratable returns the resident guests of h that are not already moving.
func Migratable(h *sim.Host) []*sim.Guest {
	var out []*sim.Guest
	for _, g := range h.Guests() {
		if !g.InMigration && g.IsAlive() {
			out = append(out, g)
		}
	}
	return out
}

func movable(candidates []*sim.Guest, excluded policy.Set[*sim.Guest]) []*sim.Guest {
	out := make([]*sim.Guest, 0, len(candidates))
	for _, g := range candidates {
		if !excluded.Has(g) && !g.InMigration {
			out = append(out, g)
		}
	}
	return out
}

// MaximumUsage evicts the guest demanding the most MIPS, which frees the
// most capacity at once. Ties broken by first occurrence.
type MaximumUsage struct{}

// Select implements GuestPolicy.
func (MaximumUsage) Select(candidates []*sim.Guest, ctx Victim, excluded policy.Set[*sim.Guest]) (*sim.Guest, error) {
	return pickGuest("maximum-usage", movable(candidates, excluded), func(g *sim.Guest) float64 {
		return g.CurrentRequestedTotalMips(ctx.Now)
	})
}

// MinimumMigrationTime evicts the guest with the smallest RAM footprint.
// Migration time grows with RAM, so this is the cheapest guest to move.
type MinimumMigrationTime struct{}

// Select implements GuestPolicy.
func (MinimumMigrationTime) Select(candidates []*sim.Guest, _ Victim, excluded policy.Set[*sim.Guest]) (*sim.Guest, error) {
	return pickGuest("minimum-migration-time", movable(candidates, excluded), func(g *sim.Guest) float64 {
		return -float64(g.Ram)
	})
}

// MinimumUtilization evicts the guest with the lowest CPU utilization.
type MinimumUtilization struct{}

// Select implements GuestPolicy.
func (MinimumUtilization) Select(candidates []*sim.Guest, ctx Victim, excluded policy.Set[*sim.Guest]) (*sim.Guest, error) {
	return pickGuest("minimum-utilization", movable(candidates, excluded), func(g *sim.Guest) float64 {
		return -g.UtilizationOfCpu(ctx.Now)
	})
}

// Correlation evicts the guest whose utilization history is most (Maximize)
// or least correlated with its host's. An undefined correlation ranks last;
// when every candidate is undefined the policy is undecided.
type Correlation struct {
	Metric   string
	Maximize bool
}

func (c Correlation) name() string {
	if c.Maximize {
		return "maximum-correlation"
	}
	return "minimum-correlation"
}

// Select implements GuestPolicy.
func (c Correlation) Select(candidates []*sim.Guest, ctx Victim, excluded policy.Set[*sim.Guest]) (*sim.Guest, error) {
	eligible := movable(candidates, excluded)
	if len(eligible) == 0 {
		return nil, policy.NoCandidate(c.name())
	}
	values, err := c.correlations(eligible, ctx.Host)
	if err != nil {
		return nil, policy.Degenerate(c.name(), err.Error())
	}
	sentinel := nanHigh
	if c.Maximize {
		sentinel = nanLow
	}
	defined := false
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = sentinel
		} else {
			defined = true
		}
	}
	if !defined {
		return nil, policy.Degenerate(c.name(), "correlation undefined for every candidate")
	}
	idx := 0
	for i, v := range values {
		if (c.Maximize && v > values[idx]) || (!c.Maximize && v < values[idx]) {
			idx = i
		}
	}
	return eligible[idx], nil
}

// correlations returns one value per guest. Pearson compares each guest's
// history with the host's; regression reports the R² of each guest's
// history regressed on the others'.
func (c Correlation) correlations(guests []*sim.Guest, host *sim.Host) ([]float64, error) {
	switch c.Metric {
	case MetricRegression:
		data := make([][]float64, len(guests))
		for i, g := range guests {
			data[i] = g.UtilizationHistory()
		}
		return stats.MultipleCorrelation(data)
	default:
		if host == nil {
			return nil, fmt.Errorf("no host history")
		}
		hostSeries := host.UtilizationHistory()
		out := make([]float64, len(guests))
		for i, g := range guests {
			out[i] = stats.Pearson(g.UtilizationHistory(), hostSeries)
		}
		return out, nil
	}
}

// RandomGuest picks a uniformly random movable guest.
type RandomGuest struct {
	rng *rand.Rand
}

// Select implements GuestPolicy.
func (r *RandomGuest) Select(candidates []*sim.Guest, _ Victim, excluded policy.Set[*sim.Guest]) (*sim.Guest, error) {
	eligible := movable(candidates, excluded)
	if len(eligible) == 0 {
		return nil, policy.NoCandidate("random")
	}
	return eligible[r.rng.Intn(len(eligible))], nil
}

// pickGuest returns the guest with the highest metric; strict > keeps the
// first of equal guests.
func pickGuest(name string, guests []*sim.Guest, metric func(*sim.Guest) float64) (*sim.Guest, error) {
	var best *sim.Guest
	bestScore := math.Inf(-1)
	for _, g := range guests {
		if s := metric(g); s > bestScore {
			bestScore = s
			best = g
		}
	}
	if best == nil {
		return nil, policy.NoCandidate(name)
	}
	return best, nil
}
