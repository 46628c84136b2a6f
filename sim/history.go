package sim

// DefaultHistoryLength is the number of utilization samples a host keeps.
const DefaultHistoryLength = 30

// History is a bounded utilization ring. Once full, each new sample evicts
// the oldest one.
type History struct {
	samples []float64
	start   int
	size    int
}

// NewHistory creates an empty ring holding at most capacity samples.
// A non-positive capacity falls back to DefaultHistoryLength.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryLength
	}
	return &History{samples: make([]float64, capacity)}
}

// Add appends a sample, evicting the oldest when full.
func (h *History) Add(v float64) {
	capacity := len(h.samples)
	if h.size < capacity {
		h.samples[(h.start+h.size)%capacity] = v
		h.size++
		return
	}
	h.samples[h.start] = v
	h.start = (h.start + 1) % capacity
}

// Len returns the number of stored samples.
func (h *History) Len() int { return h.size }

// Cap returns the maximum number of samples.
func (h *History) Cap() int { return len(h.samples) }

// Values returns the samples ordered oldest first.
func (h *History) Values() []float64 {
	out := make([]float64, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.samples[(h.start+i)%len(h.samples)]
	}
	return out
}

// Last returns the most recent sample, or zero when empty.
func (h *History) Last() float64 {
	if h.size == 0 {
		return 0
	}
	return h.samples[(h.start+h.size-1)%len(h.samples)]
}

// Reset drops every sample.
func (h *History) Reset() {
	h.start, h.size = 0, 0
}
