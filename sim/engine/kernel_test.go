package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	id   int
	seen []*Event
	on   func(k *Kernel, ev *Event)
}

func (r *recorder) ID() int      { return r.id }
func (r *recorder) Name() string { return "recorder" }
func (r *recorder) Process(k *Kernel, ev *Event) {
	r.seen = append(r.seen, ev)
	if r.on != nil {
		r.on(k, ev)
	}
}

func TestEventHeap_OrdersByTimeThenSequence(t *testing.T) {
	h := NewEventHeap()
	h.Schedule(&Event{Time: 2, Seq: 1})
	h.Schedule(&Event{Time: 1, Seq: 3})
	h.Schedule(&Event{Time: 1, Seq: 2})

	assert.Equal(t, uint64(2), h.PopNext().Seq)
	assert.Equal(t, uint64(3), h.PopNext().Seq)
	assert.Equal(t, uint64(1), h.PopNext().Seq)
	assert.Nil(t, h.PopNext())
	assert.Nil(t, h.Peek())
}

func TestKernel_SameTimeEventsAreFIFO(t *testing.T) {
	// GIVEN three messages sent at the same instant
	k := NewKernel()
	r := &recorder{id: 1}
	k.Register(r)
	k.SendNow(0, 1, TagGuestCreate, "a")
	k.SendNow(0, 1, TagGuestDestroy, "b")
	k.SendNow(0, 1, TagGuestMigrate, "c")

	// WHEN the kernel runs
	n := k.Run(0)

	// THEN they arrive in send order
	require.Equal(t, 3, n)
	assert.Equal(t, "a", r.seen[0].Payload)
	assert.Equal(t, "b", r.seen[1].Payload)
	assert.Equal(t, "c", r.seen[2].Payload)
}

func TestKernel_HorizonStopsDelivery(t *testing.T) {
	k := NewKernel()
	r := &recorder{id: 1}
	r.on = func(k *Kernel, ev *Event) { k.ScheduleSelf(1, 10, TagUpdateProcessing, nil) }
	k.Register(r)
	k.ScheduleSelf(1, 0, TagUpdateProcessing, nil)

	k.Run(35)

	// 0, 10, 20, 30 delivered; 40 is beyond the horizon
	assert.Len(t, r.seen, 4)
	assert.Equal(t, 30.0, k.Now())
	assert.Equal(t, 1, k.Pending())
}

func TestKernel_UnknownTargetIsDropped(t *testing.T) {
	k := NewKernel()
	k.SendNow(0, 99, TagGuestCreate, nil)
	assert.Equal(t, 0, k.Run(0))
}

func TestKernel_StopEndsRun(t *testing.T) {
	k := NewKernel()
	r := &recorder{id: 1}
	r.on = func(k *Kernel, ev *Event) { k.Stop() }
	k.Register(r)
	k.SendNow(0, 1, TagEndOfSimulation, nil)
	k.SendNow(0, 1, TagEndOfSimulation, nil)

	assert.Equal(t, 1, k.Run(0))
}

func TestKernel_DuplicateRegistrationPanics(t *testing.T) {
	k := NewKernel()
	k.Register(&recorder{id: 1})
	defer func() {
		assert.NotNil(t, recover())
	}()
	k.Register(&recorder{id: 1})
}

func TestTag_String(t *testing.T) {
	assert.Equal(t, "GuestCreate", TagGuestCreate.String())
	assert.Equal(t, "Tag(999)", Tag(999).String())
}
