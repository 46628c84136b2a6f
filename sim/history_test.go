package sim

import "testing"

func TestHistory_EvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		h.Add(v)
	}

	got := h.Values()
	want := []float64{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("Values() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Values()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if h.Len() != 3 || h.Last() != 5 {
		t.Errorf("Len() = %d, Last() = %v; want 3, 5", h.Len(), h.Last())
	}
}

func TestHistory_DefaultsAndReset(t *testing.T) {
	h := NewHistory(0)
	if h.Cap() != DefaultHistoryLength {
		t.Errorf("Cap() = %d, want %d", h.Cap(), DefaultHistoryLength)
	}
	if h.Last() != 0 {
		t.Errorf("Last() on empty history = %v, want 0", h.Last())
	}
	h.Add(0.4)
	h.Reset()
	if h.Len() != 0 || len(h.Values()) != 0 {
		t.Errorf("after Reset, Len() = %d, Values() = %v", h.Len(), h.Values())
	}
}
