package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestHost has two 1000 MIPS PEs, 4096 MB RAM, 1000 Mbps and 10000 MB
// storage.
func newTestHost() *Host {
	return NewHost(3, NewPeList(2, 1000), 4096, 1000, 10000, nil, 5)
}

func newTestVm(id int, mips float64, ram int64) *Guest {
	return NewVm(id, 2, mips, 1, ram, 100, 1000, NewTimeSharedWorkloadScheduler())
}

func TestHost_GuestCreate_ChargesEveryResource(t *testing.T) {
	h := newTestHost()
	g := newTestVm(1, 500, 1024)

	require.True(t, h.GuestCreate(g))

	assert.Same(t, h, g.Host)
	assert.True(t, h.HasGuest(g))
	assert.Equal(t, int64(3072), h.RamProvisioner().Available())
	assert.Equal(t, int64(900), h.BwProvisioner().Available())
	assert.Equal(t, int64(9000), h.StorageProvisioner().Available())
	assert.InDelta(t, 1500, h.AvailableMips(), 1e-9)
	assert.InDelta(t, 0.25, h.UtilizationOfCpu(), 1e-9)
	assert.InDelta(t, 0.25, h.UtilizationOfRam(), 1e-9)
}

func TestHost_GuestCreate_RollsBackOnFailure(t *testing.T) {
	h := newTestHost()
	tests := []struct {
		name string
		g    *Guest
	}{
		{"ram", NewVm(1, 2, 500, 1, 5000, 100, 1000, nil)},
		{"bw", NewVm(2, 2, 500, 1, 100, 2000, 1000, nil)},
		{"storage", NewVm(3, 2, 500, 1, 100, 100, 20000, nil)},
		{"mips", NewVm(4, 2, 1500, 1, 100, 100, 1000, nil)},
		{"pes", NewVm(5, 2, 100, 3, 100, 100, 1000, nil)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, h.IsSuitableForGuest(tc.g))
			assert.False(t, h.GuestCreate(tc.g))
			assert.Nil(t, tc.g.Host)
			assert.Equal(t, int64(4096), h.RamProvisioner().Available())
			assert.Equal(t, int64(1000), h.BwProvisioner().Available())
			assert.Equal(t, int64(10000), h.StorageProvisioner().Available())
			assert.InDelta(t, 2000, h.AvailableMips(), 1e-9)
			assert.Equal(t, 0, h.NumGuests())
		})
	}
}

func TestHost_GuestCreate_DestroyedGuestRefused(t *testing.T) {
	h := newTestHost()
	g := newTestVm(1, 500, 256)
	g.MarkDestroyed()

	assert.False(t, h.GuestCreate(g))
	assert.Equal(t, int64(4096), h.RamProvisioner().Available())
}

func TestHost_GuestDestroy_ReleasesAndIgnoresStrangers(t *testing.T) {
	h := newTestHost()
	g, stranger := newTestVm(1, 500, 1024), newTestVm(2, 500, 1024)
	require.True(t, h.GuestCreate(g))

	h.GuestDestroy(stranger)
	assert.Equal(t, 1, h.NumGuests())

	h.GuestDestroy(g)
	assert.Nil(t, g.Host)
	assert.Equal(t, 0, h.NumGuests())
	assert.Equal(t, int64(4096), h.RamProvisioner().Available())
	assert.InDelta(t, 2000, h.AvailableMips(), 1e-9)
}

func TestHost_DetachAttach_KeepsChargesAndOrder(t *testing.T) {
	h := newTestHost()
	g1, g2 := newTestVm(1, 500, 512), newTestVm(2, 500, 512)
	require.True(t, h.GuestCreate(g1))
	require.True(t, h.GuestCreate(g2))

	// WHEN g1 is detached while a plan is evaluated
	pos := h.Detach(g1)

	// THEN it no longer counts as resident but still holds its resources
	assert.Equal(t, 0, pos)
	assert.Equal(t, []*Guest{g2}, h.Guests())
	assert.InDelta(t, 1000, h.AvailableMips(), 1e-9)
	assert.Equal(t, int64(3072), h.RamProvisioner().Available())
	assert.Equal(t, -1, h.Detach(g1))

	// WHEN it is attached back
	h.Attach(g1, pos)
	h.Attach(g1, pos)
	assert.Equal(t, []*Guest{g1, g2}, h.Guests())
}

func TestHost_MigratingInReservation(t *testing.T) {
	h := newTestHost()
	g := newTestVm(1, 1000, 1024)

	// WHEN capacity is reserved for an incoming guest
	require.True(t, h.AddMigratingInGuest(g))
	require.True(t, h.AddMigratingInGuest(g))

	// THEN memory is reserved in full and only the CPU overhead is charged
	assert.True(t, h.IsMigratingIn(g))
	assert.False(t, h.HasGuest(g))
	assert.Equal(t, int64(3072), h.RamProvisioner().Available())
	assert.InDelta(t, 1900, h.AvailableMips(), 1e-9)

	h.RemoveMigratingInGuest(g)
	assert.False(t, h.IsMigratingIn(g))
	assert.Equal(t, int64(4096), h.RamProvisioner().Available())
	assert.InDelta(t, 2000, h.AvailableMips(), 1e-9)
}

func TestHost_SetFailed(t *testing.T) {
	h := newTestHost()
	g := newTestVm(1, 500, 256)
	require.True(t, h.GuestCreate(g))

	h.SetFailed(true)

	assert.True(t, h.IsFailed())
	assert.True(t, g.Failed)
	assert.Equal(t, 0.0, h.AvailableMips())
	assert.False(t, h.GuestCreate(newTestVm(2, 100, 256)))
	for _, pe := range h.Pes() {
		assert.Equal(t, PeFailed, pe.Status)
	}

	h.SetFailed(false)
	assert.False(t, h.IsFailed())
	for _, pe := range h.Pes() {
		assert.NotEqual(t, PeFailed, pe.Status)
	}
}

func TestHost_UpdateGuestsProcessing_RunsWorkloads(t *testing.T) {
	// GIVEN a running guest with one 5000 MI workload
	h := newTestHost()
	g := newTestVm(1, 500, 256)
	require.True(t, h.GuestCreate(g))
	g.BeingInstantiated = false
	w := NewWorkload(1, 2, 5000, 1)
	g.Scheduler.Submit(w, 0)
	h.Reallocate(0)

	// WHEN the host processes at t=0 and t=10
	assert.InDelta(t, 10, h.UpdateGuestsProcessing(0), 1e-9)
	assert.Equal(t, NoEvent, h.UpdateGuestsProcessing(10))

	// THEN the workload ran at the guest's 500 MIPS and finished
	assert.True(t, w.IsFinished())
	assert.Equal(t, []*Workload{w}, g.Scheduler.Finished())
}

func TestHost_IdleGuestRequestsNothing(t *testing.T) {
	h := newTestHost()
	g := newTestVm(1, 500, 256)
	require.True(t, h.GuestCreate(g))
	assert.InDelta(t, 500, h.RequestedMips(0), 1e-9, "a guest being instantiated asks for everything")

	g.BeingInstantiated = false
	h.Reallocate(0)

	assert.Equal(t, 0.0, h.RequestedMips(0))
	assert.InDelta(t, 2000, h.AvailableMips(), 1e-9)
}

func TestHost_RecordUtilization(t *testing.T) {
	h := newTestHost()
	g := newTestVm(1, 500, 256)
	require.True(t, h.GuestCreate(g))

	h.RecordUtilization(0)

	assert.Equal(t, []float64{0.25}, h.UtilizationHistory())
	assert.Equal(t, []float64{1}, g.UtilizationHistory())
	assert.Equal(t, 5, h.History().Cap())
}

func TestHost_GuestDestroyAll(t *testing.T) {
	h := newTestHost()
	g1, g2 := newTestVm(1, 500, 256), newTestVm(2, 500, 256)
	require.True(t, h.GuestCreate(g1))
	require.True(t, h.AddMigratingInGuest(g2))

	h.GuestDestroyAll()

	assert.Nil(t, g1.Host)
	assert.Equal(t, 0, h.NumGuests())
	assert.Empty(t, h.GuestsMigratingIn())
	assert.Equal(t, int64(4096), h.RamProvisioner().Available())
	assert.InDelta(t, 2000, h.AvailableMips(), 1e-9)
}

func TestNewHost_PanicsWithoutPes(t *testing.T) {
	assert.Panics(t, func() { NewHost(0, nil, 1, 1, 1, nil, 0) })
}
