package engine

import "container/heap"

// EventHeap is a priority queue ordered by time, then sequence number.
type EventHeap struct {
	events []*Event
}

// NewEventHeap creates an empty heap.
func NewEventHeap() *EventHeap {
	h := &EventHeap{events: make([]*Event, 0)}
	heap.Init(h)
	return h
}

// Len implements heap.Interface.
func (h *EventHeap) Len() int { return len(h.events) }

// Less implements heap.Interface.
func (h *EventHeap) Less(i, j int) bool {
	ei, ej := h.events[i], h.events[j]
	if ei.Time != ej.Time {
		return ei.Time < ej.Time
	}
	return ei.Seq < ej.Seq
}

// Swap implements heap.Interface.
func (h *EventHeap) Swap(i, j int) { h.events[i], h.events[j] = h.events[j], h.events[i] }

// Push implements heap.Interface.
func (h *EventHeap) Push(x interface{}) { h.events = append(h.events, x.(*Event)) }

// Pop implements heap.Interface.
func (h *EventHeap) Pop() interface{} {
	old := h.events
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	h.events = old[:n-1]
	return item
}

// Schedule adds an event.
func (h *EventHeap) Schedule(e *Event) { heap.Push(h, e) }

// PopNext removes and returns the earliest event, or nil.
func (h *EventHeap) PopNext() *Event {
	if h.Len() == 0 {
		return nil
	}
	return heap.Pop(h).(*Event)
}

// Peek returns the earliest event without removing it, or nil.
func (h *EventHeap) Peek() *Event {
	if h.Len() == 0 {
		return nil
	}
	return h.events[0]
}
