package engine

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Entity receives events addressed to its ID.
type Entity interface {
	ID() int
	Name() string
	Process(k *Kernel, ev *Event)
}

// Starter is implemented by entities that schedule their first events when
// the run begins.
type Starter interface {
	Start(k *Kernel)
}

// Messenger is the delivery primitive handed to components that only need
// to send messages.
type Messenger interface {
	Now() float64
	SendNow(source, target int, tag Tag, payload any)
}

// Kernel owns the clock and the event queue.
type Kernel struct {
	now      float64
	seq      uint64
	queue    *EventHeap
	entities map[int]Entity
	order    []int
	stopped  bool
	handled  int
}

// NewKernel creates a kernel at time zero.
func NewKernel() *Kernel {
	return &Kernel{queue: NewEventHeap(), entities: make(map[int]Entity)}
}

// Register adds an entity. Panics on a duplicate ID.
func (k *Kernel) Register(e Entity) {
	if _, dup := k.entities[e.ID()]; dup {
		panic(fmt.Sprintf("entity %d registered twice", e.ID()))
	}
	k.entities[e.ID()] = e
	k.order = append(k.order, e.ID())
}

// Entity looks up a registered entity.
func (k *Kernel) Entity(id int) (Entity, bool) {
	e, ok := k.entities[id]
	return e, ok
}

// Now returns the simulation clock.
func (k *Kernel) Now() float64 { return k.now }

// Pending returns the number of queued events.
func (k *Kernel) Pending() int { return k.queue.Len() }

// Handled returns the number of events delivered so far.
func (k *Kernel) Handled() int { return k.handled }

// Schedule queues an event for target after delay. Negative delays are
// treated as zero.
func (k *Kernel) Schedule(source, target int, delay float64, tag Tag, payload any) {
	if delay < 0 || math.IsNaN(delay) {
		delay = 0
	}
	k.seq++
	k.queue.Schedule(&Event{
		Time: k.now + delay, Seq: k.seq, Source: source, Target: target, Tag: tag, Payload: payload,
	})
}

// ScheduleSelf queues an event from an entity to itself.
func (k *Kernel) ScheduleSelf(id int, delay float64, tag Tag, payload any) {
	k.Schedule(id, id, delay, tag, payload)
}

// SendNow queues an event for delivery at the current time.
func (k *Kernel) SendNow(source, target int, tag Tag, payload any) {
	k.Schedule(source, target, 0, tag, payload)
}

// Stop ends the run after the current event.
func (k *Kernel) Stop() { k.stopped = true }

// Run starts every Starter, then delivers events until the queue drains, an
// event lies beyond horizon, or Stop is called. A horizon <= 0 means no
// limit. Returns the number of events delivered.
func (k *Kernel) Run(horizon float64) int {
	for _, id := range k.order {
		if s, ok := k.entities[id].(Starter); ok {
			s.Start(k)
		}
	}
	start := k.handled
	for !k.stopped && k.queue.Len() > 0 {
		if horizon > 0 && k.queue.Peek().Time > horizon {
			break
		}
		ev := k.queue.PopNext()
		if ev.Time < k.now {
			panic(fmt.Sprintf("clock went backwards: %f < %f", ev.Time, k.now))
		}
		k.now = ev.Time
		target, ok := k.entities[ev.Target]
		if !ok {
			logrus.Warnf("event %s for unknown entity dropped", ev)
			continue
		}
		logrus.Debugf("[%.2f] %s -> %s", k.now, ev.Tag, target.Name())
		k.handled++
		target.Process(k, ev)
	}
	return k.handled - start
}
