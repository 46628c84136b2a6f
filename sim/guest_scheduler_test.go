package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vm(id int, mips float64, pes int) *Guest {
	return NewVm(id, 2, mips, pes, 128, 10, 10, nil)
}

func TestTimeSharedGuestScheduler_MaxMinFairness(t *testing.T) {
	tests := []struct {
		name      string
		requests  []float64
		wantShare []float64
	}{
		{"under capacity", []float64{300, 400}, []float64{300, 400}},
		{"even split", []float64{800, 800}, []float64{500, 500}},
		{"small demand served first", []float64{900, 200}, []float64{800, 200}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHost(0, NewPeList(1, 1000), 4096, 1000, 1000, NewTimeSharedGuestScheduler(), 0)
			s := h.Scheduler()
			guests := make([]*Guest, len(tc.requests))
			for i, r := range tc.requests {
				guests[i] = vm(i, r, 1)
				require.True(t, s.AllocatePesForGuest(guests[i], []float64{r}))
			}
			total := 0.0
			for i, g := range guests {
				assert.InDelta(t, tc.wantShare[i], s.TotalAllocatedMipsForGuest(g), 1e-9, "guest %d", i)
				total += tc.wantShare[i]
			}
			assert.InDelta(t, 1000-total, s.AvailableMips(), 1e-9)
		})
	}
}

func TestTimeSharedGuestScheduler_RejectsInexpressibleRequests(t *testing.T) {
	h := NewHost(0, NewPeList(2, 1000), 4096, 1000, 1000, NewTimeSharedGuestScheduler(), 0)
	s := h.Scheduler()

	assert.False(t, s.IsSuitableForGuest(vm(1, 1200, 1), []float64{1200}), "share above PE rating")
	assert.False(t, s.IsSuitableForGuest(vm(2, 100, 3), []float64{100, 100, 100}), "more virtual PEs than PEs")
	assert.False(t, s.AllocatePesForGuest(vm(3, 1200, 1), []float64{1200}))
	assert.True(t, s.IsSuitableForGuest(vm(4, 1000, 2), []float64{1000, 1000}))
	assert.Equal(t, 2000.0, s.AvailableMips())
}

func TestTimeSharedGuestScheduler_SplitsShareAcrossPes(t *testing.T) {
	h := NewHost(0, NewPeList(2, 1000), 4096, 1000, 1000, NewTimeSharedGuestScheduler(), 0)
	s := h.Scheduler()
	require.True(t, s.AllocatePesForGuest(vm(1, 600, 1), []float64{600}))
	require.True(t, s.AllocatePesForGuest(vm(2, 700, 1), []float64{700}))

	// THEN the second share spills onto the next PE
	pes := h.Pes()
	assert.InDelta(t, 400, pes[0].Provisioner.TotalAllocatedMips("vm-2-2"), 1e-9)
	assert.InDelta(t, 300, pes[1].Provisioner.TotalAllocatedMips("vm-2-2"), 1e-9)
	assert.InDelta(t, 700, s.MaxAvailableMips(), 1e-9)
	assert.Equal(t, PeBusy, pes[1].Status)
}

func TestTimeSharedGuestScheduler_MigrationOverhead(t *testing.T) {
	h := NewHost(0, NewPeList(2, 1000), 4096, 1000, 1000, NewTimeSharedGuestScheduler(), 0)
	s := h.Scheduler()
	out, in := vm(1, 1000, 1), vm(2, 1000, 1)

	// GIVEN one guest leaving and one arriving
	out.InMigration = true
	s.SetMigratingIn(in.UID(), true)
	require.True(t, s.AllocatePesForGuest(out, []float64{1000}))
	require.True(t, s.AllocatePesForGuest(in, []float64{1000}))

	// THEN the leaving guest keeps 90% and the arriving one is charged 10%
	assert.InDelta(t, 900, s.TotalAllocatedMipsForGuest(out), 1e-9)
	assert.InDelta(t, 100, s.TotalAllocatedMipsForGuest(in), 1e-9)

	// WHEN both migrations settle, the full request is charged again
	out.InMigration = false
	s.SetMigratingIn(in.UID(), false)
	s.DeallocatePesForAllGuests()
	require.True(t, s.AllocatePesForGuest(out, []float64{1000}))
	require.True(t, s.AllocatePesForGuest(in, []float64{1000}))
	assert.InDelta(t, 1000, s.TotalAllocatedMipsForGuest(out), 1e-9)
	assert.InDelta(t, 1000, s.TotalAllocatedMipsForGuest(in), 1e-9)
}

func TestTimeSharedGuestScheduler_DeallocateRedistributes(t *testing.T) {
	h := NewHost(0, NewPeList(1, 1000), 4096, 1000, 1000, NewTimeSharedGuestScheduler(), 0)
	s := h.Scheduler()
	g1, g2 := vm(1, 800, 1), vm(2, 800, 1)
	require.True(t, s.AllocatePesForGuest(g1, []float64{800}))
	require.True(t, s.AllocatePesForGuest(g2, []float64{800}))

	s.DeallocatePesForGuest(g1)
	s.DeallocatePesForGuest(g1)

	assert.Empty(t, s.AllocatedMipsForGuest(g1))
	assert.InDelta(t, 800, s.TotalAllocatedMipsForGuest(g2), 1e-9)
	assert.InDelta(t, 200, s.AvailableMips(), 1e-9)
}

func TestSpaceSharedGuestScheduler_QueuesInFifoOrder(t *testing.T) {
	// GIVEN a two-PE host with one PE taken
	h := NewHost(0, NewPeList(2, 1000), 4096, 1000, 1000, NewSpaceSharedGuestScheduler(), 0)
	s := h.Scheduler().(*SpaceSharedGuestScheduler)
	small, wide := vm(1, 1000, 1), vm(2, 1000, 2)
	require.True(t, s.AllocatePesForGuest(small, []float64{1000}))
	assert.Equal(t, 1000.0, s.AvailableMips())

	// WHEN a two-PE guest asks
	ok := s.AllocatePesForGuest(wide, []float64{1000, 1000})

	// THEN it waits with nothing allocated
	assert.False(t, ok)
	assert.Equal(t, []string{wide.UID()}, s.Waiting())
	assert.Empty(t, s.AllocatedMipsForGuest(wide))

	// WHEN the first guest leaves, the queued one gets both PEs
	s.DeallocatePesForGuest(small)
	assert.Empty(t, s.Waiting())
	assert.Equal(t, []float64{1000, 1000}, s.AllocatedMipsForGuest(wide))
	assert.Equal(t, 0.0, s.AvailableMips())
	assert.Equal(t, 0.0, s.MaxAvailableMips())
}

func TestSpaceSharedGuestScheduler_ShareCappedAtPeRating(t *testing.T) {
	h := NewHost(0, NewPeList(1, 1000), 4096, 1000, 1000, NewSpaceSharedGuestScheduler(), 0)
	s := h.Scheduler()
	g := vm(1, 600, 1)

	require.True(t, s.AllocatePesForGuest(g, []float64{600}))
	assert.Equal(t, 600.0, s.TotalAllocatedMipsForGuest(g))
	assert.False(t, s.IsSuitableForGuest(vm(2, 100, 1), []float64{100}), "PE is exclusive")
}

func TestNewGuestScheduler(t *testing.T) {
	assert.IsType(t, &TimeSharedGuestScheduler{}, NewGuestScheduler(""))
	assert.IsType(t, &SpaceSharedGuestScheduler{}, NewGuestScheduler("space-shared"))
	assert.Panics(t, func() { NewGuestScheduler("lottery") })
	assert.False(t, IsValidGuestScheduler("lottery"))
}
