package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResourceProvisioner_AllocateClampsToCeiling(t *testing.T) {
	p := NewResourceProvisioner(ResourceRam, 1000)
	g := NewVm(1, 2, 500, 1, 300, 10, 10, nil)

	// WHEN more than the declared RAM is asked for
	ok := p.Allocate(g, 500)

	// THEN only the ceiling is charged
	assert.True(t, ok)
	assert.Equal(t, int64(300), p.Allocated(g))
	assert.Equal(t, int64(700), p.Available())
	assert.Equal(t, int64(300), p.Used())
}

func TestResourceProvisioner_AllocateSequence(t *testing.T) {
	// GIVEN 1000 units shared by A and B
	p := NewResourceProvisioner(ResourceRam, 1000)
	a := NewVm(1, 2, 500, 1, 500, 10, 10, nil)
	b := NewVm(2, 2, 500, 1, 600, 10, 10, nil)

	steps := []struct {
		name          string
		guest         *Guest
		amount        int64
		wantOK        bool
		wantAvailable int64
	}{
		{"A takes 500", a, 500, true, 500},
		{"B asking 600 does not fit", b, 600, false, 500},
		{"B takes 250", b, 250, true, 250},
	}
	for _, step := range steps {
		ok := p.Allocate(step.guest, step.amount)
		assert.Equal(t, step.wantOK, ok, step.name)
		assert.Equal(t, step.wantAvailable, p.Available(), step.name)
		assert.Equal(t, p.Capacity(), p.Used()+p.Available(), step.name)
	}
	assert.Equal(t, int64(500), p.Allocated(a))
	assert.Equal(t, int64(250), p.Allocated(b))
}

func TestResourceProvisioner_FailedReallocationKeepsPrevious(t *testing.T) {
	p := NewResourceProvisioner(ResourceRam, 1000)
	g1 := NewVm(1, 2, 500, 1, 900, 10, 10, nil)
	g2 := NewVm(2, 2, 500, 1, 600, 10, 10, nil)
	assert.True(t, p.Allocate(g1, 300))
	assert.True(t, p.Allocate(g2, 600))

	// WHEN g1 asks for more than its old share plus what is free
	ok := p.Allocate(g1, 500)

	// THEN nothing changes
	assert.False(t, ok)
	assert.Equal(t, int64(300), p.Allocated(g1))
	assert.Equal(t, int64(100), p.Available())
	assert.Equal(t, 2, p.Guests())
}

func TestResourceProvisioner_IsSuitableLeavesStateUnchanged(t *testing.T) {
	p := NewResourceProvisioner(ResourceBw, 1000)
	g1 := NewVm(1, 2, 500, 1, 10, 400, 10, nil)
	g2 := NewVm(2, 2, 500, 1, 10, 800, 10, nil)
	assert.True(t, p.Allocate(g1, 400))

	assert.True(t, p.IsSuitable(g2, 600))
	assert.False(t, p.IsSuitable(g2, 700))
	assert.True(t, p.IsSuitable(g1, 400))

	assert.Equal(t, int64(600), p.Available())
	assert.Equal(t, int64(400), p.Allocated(g1))
	assert.Equal(t, int64(0), p.Allocated(g2))
	assert.Equal(t, 1, p.Guests())
}

func TestResourceProvisioner_DeallocateIsIdempotent(t *testing.T) {
	p := NewResourceProvisioner(ResourceStorage, 1000)
	g := NewVm(1, 2, 500, 1, 10, 10, 250, nil)
	assert.True(t, p.Allocate(g, 250))

	p.Deallocate(g)
	p.Deallocate(g)

	assert.Equal(t, int64(1000), p.Available())
	assert.Equal(t, 0, p.Guests())
}

func TestPeProvisioner_VirtualPeShares(t *testing.T) {
	p := NewPeProvisioner(1000)

	// GIVEN one guest with two virtual PEs on the same physical PE
	assert.True(t, p.Allocate("a", 400))
	assert.True(t, p.Allocate("a", 300))

	// THEN both shares are kept and a third that does not fit is refused
	assert.Equal(t, []float64{400, 300}, p.AllocatedMips("a"))
	assert.Equal(t, 300.0, p.AllocatedMipsForVirtualPe("a", 1))
	assert.Equal(t, 0.0, p.AllocatedMipsForVirtualPe("a", 2))
	assert.False(t, p.Allocate("b", 400))
	assert.InDelta(t, 0.7, p.Utilization(), 1e-9)

	// WHEN the shares are replaced
	assert.True(t, p.AllocateList("a", []float64{500}))
	assert.Equal(t, 500.0, p.TotalAllocatedMips("a"))
	assert.Equal(t, 500.0, p.Available())

	// THEN probing leaves the table alone
	assert.True(t, p.IsSuitable("b", 500))
	assert.False(t, p.IsSuitable("b", 501))
	assert.Equal(t, 500.0, p.Available())
	assert.Empty(t, p.AllocatedMips("b"))

	p.Deallocate("a")
	p.Deallocate("a")
	assert.Equal(t, 1000.0, p.Available())
}

func TestPeProvisioner_AllocateListRejectsOverflow(t *testing.T) {
	p := NewPeProvisioner(1000)
	assert.True(t, p.Allocate("a", 600))
	assert.True(t, p.Allocate("b", 300))

	assert.False(t, p.AllocateList("a", []float64{400, 400}))
	assert.False(t, p.AllocateList("a", []float64{-1}))
	assert.Equal(t, []float64{600}, p.AllocatedMips("a"))
	assert.Equal(t, 100.0, p.Available())
}
