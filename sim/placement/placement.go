// Package placement holds the initial-placement strategies: given the hosts
// that can take a new guest, pick one. Candidates are assumed suitable; the
// datacenter filters them before asking. Every strategy skips excluded
// hosts and reports policy.ErrNoCandidate when nothing is left.
package placement

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/dcsim/dcsim/sim"
	"github.com/dcsim/dcsim/sim/auction"
	"github.com/dcsim/dcsim/sim/policy"
)

// Policy picks a host for a guest.
type Policy = policy.Policy[*sim.Host, *sim.Guest]

// Exclusion is a set of hosts a policy must not return.
type Exclusion = policy.Set[*sim.Host]

// IsValidPolicy returns true if name is a recognized placement policy.
func IsValidPolicy(name string) bool { return sim.ValidPlacementPolicies[name] }

// ValidPolicyNames returns the recognized names, sorted, without "".
func ValidPolicyNames() []string {
	names := make([]string, 0, len(sim.ValidPlacementPolicies))
	for n := range sim.ValidPlacementPolicies {
		if n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// NewPolicy creates a placement policy by name. Empty string defaults to
// first-fit. rng feeds the random and auction policies.
// Panics on unrecognized names.
func NewPolicy(name string, rng *rand.Rand) Policy {
	if !IsValidPolicy(name) {
		panic(fmt.Sprintf("unknown placement policy %q", name))
	}
	switch name {
	case "", "first-fit":
		return FirstFit{}
	case "most-full":
		return MostFull{}
	case "least-full":
		return LeastFull{}
	case "least-requested":
		return LeastRequested{}
	case "balanced":
		return Balanced{}
	case "random":
		return &Random{rng: rng}
	case "auction":
		return auction.NewPlacement(auction.NewIDSource(rng))
	default:
		panic(fmt.Sprintf("unhandled placement policy %q", name))
	}
}

// FirstFit takes the first candidate in iteration order.
type FirstFit struct{}

// Select implements Policy.
func (FirstFit) Select(candidates []*sim.Host, _ *sim.Guest, excluded Exclusion) (*sim.Host, error) {
	for _, h := range candidates {
		if !excluded.Has(h) {
			return h, nil
		}
	}
	return nil, policy.NoCandidate("first-fit")
}

// MostFull takes the candidate with the largest used MIPS fraction, keeping
// hosts tightly packed so that others stay empty.
// Ties broken by first occurrence.
type MostFull struct{}

// Select implements Policy.
func (MostFull) Select(candidates []*sim.Host, _ *sim.Guest, excluded Exclusion) (*sim.Host, error) {
	return argmax("most-full", candidates, excluded, func(h *sim.Host) float64 {
		return h.UtilizationOfCpu()
	})
}

// LeastFull takes the candidate with the most available MIPS.
// Ties broken by first occurrence.
type LeastFull struct{}

// Select implements Policy.
func (LeastFull) Select(candidates []*sim.Host, _ *sim.Guest, excluded Exclusion) (*sim.Host, error) {
	return argmax("least-full", candidates, excluded, func(h *sim.Host) float64 {
		return h.AvailableMips()
	})
}

// LeastRequested scores each candidate by the capacity it would leave idle
// after taking the guest:
//
//	score = avg over {cpu, ram} of (capacity - (used + request)) × 10 / capacity
//
// and takes the highest score, i.e. the host with the lowest used-resource
// share. A resource whose request exceeds capacity scores 0 and is logged.
type LeastRequested struct{}

// Select implements Policy.
func (LeastRequested) Select(candidates []*sim.Host, g *sim.Guest, excluded Exclusion) (*sim.Host, error) {
	return argmax("least-requested", candidates, excluded, func(h *sim.Host) float64 {
		return LeastRequestedScore(h, g)
	})
}

// LeastRequestedScore is the LeastRequested score of placing g on h.
func LeastRequestedScore(h *sim.Host, g *sim.Guest) float64 {
	cpu := unusedScore(h, "cpu", h.TotalMips(), h.AllocatedMips()+g.TotalMips())
	ram := unusedScore(h, "ram", float64(h.RamProvisioner().Capacity()), float64(h.RamProvisioner().Used()+g.Ram))
	return (cpu + ram) / 2
}

func unusedScore(h *sim.Host, resource string, capacity, requested float64) float64 {
	if capacity <= 0 {
		return 0
	}
	if requested > capacity {
		logrus.Warnf("%s: requested %s %.0f exceeds capacity %.0f", h, resource, requested, capacity)
		return 0
	}
	return (capacity - requested) * 10 / capacity
}

// Balanced prefers the candidate whose CPU and RAM fractions stay closest
// after placement: score = 10 - |cpuFraction - memFraction| × 10. A
// candidate with either fraction >= 1 is disqualified.
// Ties broken by first occurrence.
type Balanced struct{}

// Select implements Policy.
func (Balanced) Select(candidates []*sim.Host, g *sim.Guest, excluded Exclusion) (*sim.Host, error) {
	var best *sim.Host
	bestScore := math.Inf(-1)
	for _, h := range candidates {
		if excluded.Has(h) {
			continue
		}
		score, ok := BalancedScore(h, g)
		if !ok {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = h
		}
	}
	if best == nil {
		return nil, policy.NoCandidate("balanced")
	}
	return best, nil
}

// BalancedScore returns the Balanced score of placing g on h, and false when
// the host is disqualified.
func BalancedScore(h *sim.Host, g *sim.Guest) (float64, bool) {
	if h.TotalMips() <= 0 || h.RamProvisioner().Capacity() <= 0 {
		return 0, false
	}
	cpu := (h.AllocatedMips() + g.TotalMips()) / h.TotalMips()
	mem := float64(h.RamProvisioner().Used()+g.Ram) / float64(h.RamProvisioner().Capacity())
	if cpu >= 1 || mem >= 1 {
		return 0, false
	}
	return 10 - math.Abs(cpu-mem)*10, true
}

// Random samples uniformly among the untried candidates, resampling when it
// draws an excluded host.
type Random struct {
	rng *rand.Rand
}

// NewRandom creates a Random policy. A nil rng gets a fixed seed.
func NewRandom(rng *rand.Rand) *Random { return &Random{rng: rng} }

// Select implements Policy.
func (r *Random) Select(candidates []*sim.Host, _ *sim.Guest, excluded Exclusion) (*sim.Host, error) {
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(1))
	}
	untried := append([]*sim.Host(nil), candidates...)
	for len(untried) > 0 {
		i := r.rng.Intn(len(untried))
		h := untried[i]
		if !excluded.Has(h) {
			return h, nil
		}
		untried[i] = untried[len(untried)-1]
		untried = untried[:len(untried)-1]
	}
	return nil, policy.NoCandidate("random")
}

// argmax returns the non-excluded candidate with the highest metric.
// Strict > keeps the first of equal candidates.
func argmax(name string, candidates []*sim.Host, excluded Exclusion, metric func(*sim.Host) float64) (*sim.Host, error) {
	var best *sim.Host
	bestScore := math.Inf(-1)
	for _, h := range candidates {
		if excluded.Has(h) {
			continue
		}
		if s := metric(h); s > bestScore {
			bestScore = s
			best = h
		}
	}
	if best == nil {
		return nil, policy.NoCandidate(name)
	}
	return best, nil
}

// BuildChain builds the placement chain: the configured policy followed by
// its fallbacks, each tried once.
func BuildChain(cfg sim.PlacementConfig, rng *rand.Rand) (*policy.Chain[*sim.Host, *sim.Guest], error) {
	names := append([]string{cfg.Policy}, cfg.Fallbacks...)
	links := make([]policy.Link[*sim.Host, *sim.Guest], 0, len(names))
	for _, name := range names {
		if !IsValidPolicy(name) {
			return nil, fmt.Errorf("unknown placement policy %q", name)
		}
		if name == "" {
			name = "first-fit"
		}
		links = append(links, policy.Link[*sim.Host, *sim.Guest]{Name: name, Policy: NewPolicy(name, rng)})
	}
	return policy.NewChain(links...)
}
