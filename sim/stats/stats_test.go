package stats

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPearson_PerfectAndInverse(t *testing.T) {
	up := []float64{1, 2, 3, 4, 5}
	down := []float64{5, 4, 3, 2, 1}

	assert.InDelta(t, 1.0, Pearson(up, up), 1e-12)
	assert.InDelta(t, -1.0, Pearson(up, down), 1e-12)
}

func TestPearson_DegenerateIsNaN(t *testing.T) {
	tests := []struct {
		name string
		x, y []float64
	}{
		{"single sample", []float64{1}, []float64{2}},
		{"constant series", []float64{3, 3, 3}, []float64{1, 2, 3}},
		{"empty", nil, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, math.IsNaN(Pearson(tc.x, tc.y)))
		})
	}
}

func TestPearson_AlignsOnMostRecentSamples(t *testing.T) {
	// GIVEN a longer series whose recent tail matches the short one
	long := []float64{9, 9, 9, 1, 2, 3}
	short := []float64{1, 2, 3}

	// THEN only the overlapping tail is compared
	assert.InDelta(t, 1.0, Pearson(long, short), 1e-12)
}

func TestTail(t *testing.T) {
	s := []float64{1, 2, 3, 4}
	assert.Equal(t, []float64{3, 4}, Tail(s, 2))
	assert.Equal(t, s, Tail(s, 10))
	assert.Nil(t, Tail(s, 0))
}

func TestMultipleCorrelation_RequiresDegreesOfFreedom(t *testing.T) {
	// GIVEN 3 series of 3 samples: 2 predictors leave 3-2-1 = 0 dof
	data := [][]float64{{1, 2, 3}, {2, 1, 2}, {3, 3, 1}}

	_, err := MultipleCorrelation(data)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDegreesOfFreedom))
}

func TestMultipleCorrelation_LinearDependenceGivesOne(t *testing.T) {
	// GIVEN b is an exact linear function of a
	a := []float64{1, 2, 3, 4, 5, 6}
	b := []float64{3, 5, 7, 9, 11, 13}

	r2, err := MultipleCorrelation([][]float64{a, b})

	require.NoError(t, err)
	require.Len(t, r2, 2)
	assert.InDelta(t, 1.0, r2[0], 1e-9)
	assert.InDelta(t, 1.0, r2[1], 1e-9)
}

func TestMultipleCorrelation_ConstantSeriesIsNaN(t *testing.T) {
	r2, err := MultipleCorrelation([][]float64{{2, 2, 2, 2}, {1, 2, 3, 5}})

	require.NoError(t, err)
	assert.True(t, math.IsNaN(r2[0]))
}

func TestMADAndIQR(t *testing.T) {
	data := []float64{1, 1, 2, 2, 4, 6, 9}

	// median 2; deviations {1,1,0,0,2,4,7} -> median 1
	assert.InDelta(t, 2.0, Median(data), 1e-12)
	assert.InDelta(t, 1.0, MAD(data), 1e-12)
	assert.Greater(t, IQR(data), 0.0)
	assert.True(t, math.IsNaN(MAD(nil)))
	assert.True(t, math.IsNaN(IQR(nil)))
}

func TestLocalRegression_RecoversLine(t *testing.T) {
	// GIVEN y = 0.1 + 0.05 x sampled at x = 1..10
	series := make([]float64, 10)
	for i := range series {
		series[i] = 0.1 + 0.05*float64(i+1)
	}

	for _, robust := range []bool{false, true} {
		intercept, slope, err := LocalRegression(series, robust)
		require.NoError(t, err)
		assert.InDelta(t, 0.1, intercept, 1e-9)
		assert.InDelta(t, 0.05, slope, 1e-9)
	}
}

func TestLocalRegression_TooShort(t *testing.T) {
	_, _, err := LocalRegression([]float64{1, 2}, false)
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func TestTricubeWeights_FavorRecentSamples(t *testing.T) {
	w := TricubeWeights(5)
	for i := 1; i < len(w); i++ {
		assert.Greater(t, w[i], w[i-1])
	}
	assert.InDelta(t, 1.0, w[4], 1e-12)
}
