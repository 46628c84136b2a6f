package auction

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcsim/dcsim/sim"
	"github.com/dcsim/dcsim/sim/policy"
)

func newHost(id int) *sim.Host {
	return sim.NewHost(id, sim.NewPeList(1, 100), 100, 1000, 10000, nil, 0)
}

func TestPlacement_LowestScoringHostWins(t *testing.T) {
	// GIVEN hosts whose bid scores are fixed at 0.7 and 0.3
	h1, h2 := newHost(1), newHost(2)
	p := NewPlacement(NewIDSource(rand.New(rand.NewSource(1))))
	p.Score = func(h *sim.Host) float64 {
		if h == h1 {
			return 0.7
		}
		return 0.3
	}
	c := sim.NewContainer(1, 1, 10, 1, 10, 10, 10, nil)

	// WHEN placing
	got, err := p.Select([]*sim.Host{h1, h2}, c, nil)

	// THEN the 0.3 bidder is selected
	require.NoError(t, err)
	assert.Same(t, h2, got)
	require.NotNil(t, p.LastResult())
	assert.Len(t, p.LastResult().Awards, 1)
}

func TestPlacement_RespectsExclusion(t *testing.T) {
	h1, h2 := newHost(1), newHost(2)
	p := NewPlacement(NewIDSource(nil))
	c := sim.NewContainer(1, 1, 10, 1, 10, 10, 10, nil)

	got, err := p.Select([]*sim.Host{h1, h2}, c, policy.NewSet(h1))
	require.NoError(t, err)
	assert.Same(t, h2, got)

	_, err = p.Select([]*sim.Host{h1, h2}, c, policy.NewSet(h1, h2))
	assert.True(t, errors.Is(err, policy.ErrNoCandidate))
}

func TestHostScore(t *testing.T) {
	// GIVEN an empty host: (1 + 1 + (1 - 1/1)) / 3
	h := newHost(1)
	assert.InDelta(t, 2.0/3.0, HostScore(h), 1e-12)

	// GIVEN one resident using half of CPU and RAM
	g := sim.NewVm(1, 1, 50, 1, 50, 10, 10, nil)
	require.True(t, h.GuestCreate(g))
	// (0.5 + 0.5 + (1 - 1/2)) / 3
	assert.InDelta(t, 0.5, HostScore(h), 1e-12)
}
