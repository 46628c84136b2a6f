package workload

import (
	"math"
	"math/rand"
	randv2 "math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Stochastic draws a uniform utilization in [Min, Max] for each distinct
// simulation time. Repeated queries at the same time return the same value,
// so a host and its guests see one consistent demand per tick.
type Stochastic struct {
	dist  distuv.Uniform
	drawn map[float64]float64
}

// NewStochastic seeds the distribution from rng. Bounds are clamped to [0,1]
// and swapped when reversed.
func NewStochastic(rng *rand.Rand, min, max float64) *Stochastic {
	min, max = clampFraction(min), clampFraction(max)
	if min > max {
		min, max = max, min
	}
	src := randv2.NewPCG(uint64(rng.Int63()), uint64(rng.Int63()))
	return &Stochastic{
		dist:  distuv.Uniform{Min: min, Max: max, Src: src},
		drawn: make(map[float64]float64),
	}
}

// Utilization implements sim.UtilizationModel.
func (s *Stochastic) Utilization(t float64) float64 {
	if v, ok := s.drawn[t]; ok {
		return v
	}
	v := s.dist.Rand()
	s.drawn[t] = v
	return v
}

// Trace replays a fixed-interval utilization series. Between samples the
// value is interpolated linearly; past the last sample the last value holds.
type Trace struct {
	Interval float64
	Samples  []float64
}

// NewTrace clamps every sample to [0,1].
func NewTrace(interval float64, samples []float64) *Trace {
	out := make([]float64, len(samples))
	for i, v := range samples {
		out[i] = clampFraction(v)
	}
	return &Trace{Interval: interval, Samples: out}
}

// Utilization implements sim.UtilizationModel.
func (tr *Trace) Utilization(t float64) float64 {
	n := len(tr.Samples)
	if n == 0 {
		return 0
	}
	if t <= 0 || tr.Interval <= 0 {
		return tr.Samples[0]
	}
	pos := t / tr.Interval
	lo := int(math.Floor(pos))
	if lo >= n-1 {
		return tr.Samples[n-1]
	}
	frac := pos - float64(lo)
	return tr.Samples[lo] + (tr.Samples[lo+1]-tr.Samples[lo])*frac
}

// Duration is the time covered by the series.
func (tr *Trace) Duration() float64 {
	if len(tr.Samples) == 0 {
		return 0
	}
	return float64(len(tr.Samples)-1) * tr.Interval
}

func clampFraction(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
