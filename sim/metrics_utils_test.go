package sim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculatePercentile(t *testing.T) {
	data := []float64{1, 2, 3, 4}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{50, 2.5},
		{100, 4},
		{25, 1.75},
	}
	for _, tc := range tests {
		if got := CalculatePercentile(data, tc.p); got != tc.want {
			t.Errorf("CalculatePercentile(%v, %v) = %v, want %v", data, tc.p, got, tc.want)
		}
	}
	if got := CalculatePercentile([]int{}, 50); got != 0 {
		t.Errorf("empty data: got %v, want 0", got)
	}
	if got := CalculatePercentile([]int64{7}, 95); got != 7 {
		t.Errorf("single value: got %v, want 7", got)
	}
}

func TestCalculateMean(t *testing.T) {
	assert.Equal(t, 0.0, CalculateMean([]float64{}))
	assert.Equal(t, 2.5, CalculateMean([]int{1, 2, 3, 4}))
}

func TestSaveHistories(t *testing.T) {
	h0 := NewHost(0, NewPeList(1, 1000), 1024, 100, 100, nil, 0)
	h1 := NewHost(1, NewPeList(1, 1000), 1024, 100, 100, nil, 0)
	h0.History().Add(0.25)
	h0.History().Add(0.5)
	path := filepath.Join(t.TempDir(), "histories.csv")

	require.NoError(t, SaveHistories([]*Host{h0, h1}, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0,0.2500,0.5000\n1\n", string(data))
}

func TestSaveHistories_BadPath(t *testing.T) {
	err := SaveHistories(nil, filepath.Join(t.TempDir(), "missing", "out.csv"))
	assert.Error(t, err)
}
