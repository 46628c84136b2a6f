package placement

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcsim/dcsim/sim"
	"github.com/dcsim/dcsim/sim/policy"
)

// hostWithLoad returns a 100 MIPS / 100 RAM host already running a guest
// that uses mips and ram.
func hostWithLoad(t *testing.T, id int, mips float64, ram int64) *sim.Host {
	t.Helper()
	h := sim.NewHost(id, sim.NewPeList(1, 100), 100, 1000, 10000, nil, 0)
	if mips > 0 || ram > 0 {
		require.True(t, h.GuestCreate(sim.NewVm(1000+id, 0, mips, 1, ram, 1, 1, nil)))
	}
	return h
}

func request(mips float64, ram int64) *sim.Guest {
	return sim.NewVm(1, 1, mips, 1, ram, 1, 1, nil)
}

func TestLeastRequested_SelectsLessLoadedHost(t *testing.T) {
	// GIVEN H1 used 80/80 and H2 used 20/20, request 10 MIPS / 10 RAM
	h1 := hostWithLoad(t, 1, 80, 80)
	h2 := hostWithLoad(t, 2, 20, 20)
	g := request(10, 10)

	// WHEN selecting with least-requested
	got, err := NewPolicy("least-requested", nil).Select([]*sim.Host{h1, h2}, g, nil)

	// THEN H2 wins: H1 scores (100-90)×10/100 = 1, H2 scores (100-30)×10/100 = 7
	require.NoError(t, err)
	assert.Same(t, h2, got)
	assert.InDelta(t, 1.0, LeastRequestedScore(h1, g), 1e-9)
	assert.InDelta(t, 7.0, LeastRequestedScore(h2, g), 1e-9)
}

func TestLeastRequested_OverCapacityScoresZero(t *testing.T) {
	// GIVEN a request larger than the host's RAM
	h := hostWithLoad(t, 1, 0, 0)
	g := request(50, 500)

	// THEN RAM contributes 0 and CPU (100-50)×10/100 = 5 → average 2.5
	assert.InDelta(t, 2.5, LeastRequestedScore(h, g), 1e-9)
}

func TestBalanced(t *testing.T) {
	// GIVEN H1 would end at cpu 0.5 / mem 0.2 and H2 at cpu 0.4 / mem 0.4
	h1 := hostWithLoad(t, 1, 40, 10)
	h2 := hostWithLoad(t, 2, 30, 30)
	g := request(10, 10)

	got, err := NewPolicy("balanced", nil).Select([]*sim.Host{h1, h2}, g, nil)

	require.NoError(t, err)
	assert.Same(t, h2, got)
	s, ok := BalancedScore(h2, g)
	assert.True(t, ok)
	assert.InDelta(t, 10.0, s, 1e-9)
}

func TestBalanced_FullHostDisqualified(t *testing.T) {
	// GIVEN the only candidate would reach 100% CPU
	h := hostWithLoad(t, 1, 90, 10)
	g := request(10, 10)

	_, ok := BalancedScore(h, g)
	assert.False(t, ok)

	_, err := Balanced{}.Select([]*sim.Host{h}, g, nil)
	assert.True(t, errors.Is(err, policy.ErrNoCandidate))
}

func TestMostFullAndLeastFull(t *testing.T) {
	light := hostWithLoad(t, 1, 10, 10)
	heavy := hostWithLoad(t, 2, 70, 10)
	hosts := []*sim.Host{light, heavy}
	g := request(10, 10)

	got, err := MostFull{}.Select(hosts, g, nil)
	require.NoError(t, err)
	assert.Same(t, heavy, got)

	got, err = LeastFull{}.Select(hosts, g, nil)
	require.NoError(t, err)
	assert.Same(t, light, got)
}

func TestTiesGoToFirstCandidate(t *testing.T) {
	a := hostWithLoad(t, 1, 20, 20)
	b := hostWithLoad(t, 2, 20, 20)
	g := request(10, 10)

	for _, name := range []string{"first-fit", "most-full", "least-full", "least-requested", "balanced"} {
		t.Run(name, func(t *testing.T) {
			got, err := NewPolicy(name, nil).Select([]*sim.Host{a, b}, g, nil)
			require.NoError(t, err)
			assert.Same(t, a, got)
		})
	}
}

func TestAllPolicies_RespectExclusion(t *testing.T) {
	// GIVEN the best-scoring host for every policy is excluded
	a := hostWithLoad(t, 1, 20, 20)
	b := hostWithLoad(t, 2, 50, 50)
	g := request(10, 10)

	for _, name := range ValidPolicyNames() {
		t.Run(name, func(t *testing.T) {
			p := NewPolicy(name, rand.New(rand.NewSource(3)))

			got, err := p.Select([]*sim.Host{a, b}, g, policy.NewSet(a))
			require.NoError(t, err)
			assert.Same(t, b, got)

			_, err = p.Select([]*sim.Host{a, b}, g, policy.NewSet(a, b))
			assert.True(t, errors.Is(err, policy.ErrNoCandidate))
		})
	}
}

func TestRandom_DeterministicAndExhaustive(t *testing.T) {
	hosts := []*sim.Host{hostWithLoad(t, 1, 0, 0), hostWithLoad(t, 2, 0, 0), hostWithLoad(t, 3, 0, 0)}
	g := request(10, 10)

	r1 := NewRandom(rand.New(rand.NewSource(9)))
	r2 := NewRandom(rand.New(rand.NewSource(9)))
	for i := 0; i < 10; i++ {
		x, err := r1.Select(hosts, g, nil)
		require.NoError(t, err)
		y, _ := r2.Select(hosts, g, nil)
		assert.Same(t, x, y)
	}

	// only one host left after exclusion: always found
	got, err := r1.Select(hosts, g, policy.NewSet(hosts[0], hosts[2]))
	require.NoError(t, err)
	assert.Same(t, hosts[1], got)
}

func TestNewPolicy_UnknownPanics(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		assert.Contains(t, r, "unknown placement policy")
	}()
	NewPolicy("worst-fit-ish", nil)
}

func TestIsValidPolicy(t *testing.T) {
	assert.True(t, IsValidPolicy(""))
	assert.True(t, IsValidPolicy("auction"))
	assert.False(t, IsValidPolicy("nope"))
	assert.Len(t, ValidPolicyNames(), 7)
}
