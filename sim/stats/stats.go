// Package stats provides the time-series statistics used by selection
// policies and overload detectors. Numerics come from gonum.
package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrInsufficientData means a series is too short for the statistic.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrDegreesOfFreedom means a regression has no residual degrees of freedom.
	ErrDegreesOfFreedom = errors.New("regression degrees of freedom <= 0")
	// ErrSingular means the regression design matrix is rank deficient.
	ErrSingular = errors.New("singular design matrix")
)

// Tail returns the last n samples of series (all of it when shorter).
func Tail(series []float64, n int) []float64 {
	if n >= len(series) {
		return series
	}
	if n <= 0 {
		return nil
	}
	return series[len(series)-n:]
}

// AlignTails truncates a and b to their common most-recent length.
func AlignTails(a, b []float64) ([]float64, []float64) {
	n := min(len(a), len(b))
	return Tail(a, n), Tail(b, n)
}

// Pearson returns the correlation of x and y over their common most-recent
// samples. The result is NaN when fewer than two samples overlap or either
// series has zero variance.
func Pearson(x, y []float64) float64 {
	x, y = AlignTails(x, y)
	if len(x) < 2 {
		return math.NaN()
	}
	return stat.Correlation(x, y, nil)
}

// MultipleCorrelation regresses each series on all the others (ordinary
// least squares with intercept) and returns the R² of every regression.
// All series are cut to the shortest one. Undefined R² (a constant
// dependent series or collinear predictors) is NaN.
func MultipleCorrelation(data [][]float64) ([]float64, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("need at least 2 series, got %d: %w", len(data), ErrInsufficientData)
	}
	m := len(data[0])
	for _, s := range data[1:] {
		m = min(m, len(s))
	}
	predictors := len(data) - 1
	if m-predictors-1 <= 0 {
		return nil, fmt.Errorf("%d samples for %d predictors: %w", m, predictors, ErrDegreesOfFreedom)
	}
	rows := make([][]float64, len(data))
	for i, s := range data {
		rows[i] = Tail(s, m)
	}

	out := make([]float64, len(rows))
	for i := range rows {
		x := mat.NewDense(m, predictors+1, nil)
		col := 1
		for r := 0; r < m; r++ {
			x.Set(r, 0, 1)
		}
		for j := range rows {
			if j == i {
				continue
			}
			for r := 0; r < m; r++ {
				x.Set(r, col, rows[j][r])
			}
			col++
		}
		r2, err := rSquared(x, rows[i], nil)
		if errors.Is(err, ErrSingular) {
			r2, err = math.NaN(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("series %d: %w", i, err)
		}
		out[i] = r2
	}
	return out, nil
}

// rSquared fits y = xβ (optionally weighted) and returns the coefficient of
// determination.
func rSquared(x *mat.Dense, y, weights []float64) (float64, error) {
	beta, err := leastSquares(x, y, weights)
	if err != nil {
		return 0, err
	}
	m, _ := x.Dims()
	fitted := mat.NewVecDense(m, nil)
	fitted.MulVec(x, beta)
	mean := stat.Mean(y, weights)
	sse, sst := 0.0, 0.0
	for r := 0; r < m; r++ {
		w := 1.0
		if weights != nil {
			w = weights[r]
		}
		res := y[r] - fitted.AtVec(r)
		sse += w * res * res
		d := y[r] - mean
		sst += w * d * d
	}
	if sst == 0 {
		return math.NaN(), nil
	}
	return 1 - sse/sst, nil
}

// leastSquares solves min Σ w_i (y_i - x_i·β)² by QR on the √w-scaled system.
func leastSquares(x *mat.Dense, y, weights []float64) (*mat.VecDense, error) {
	m, n := x.Dims()
	xw := mat.DenseCopyOf(x)
	yw := mat.NewVecDense(m, append([]float64(nil), y...))
	if weights != nil {
		for r := 0; r < m; r++ {
			s := math.Sqrt(weights[r])
			for c := 0; c < n; c++ {
				xw.Set(r, c, xw.At(r, c)*s)
			}
			yw.SetVec(r, yw.AtVec(r)*s)
		}
	}
	var qr mat.QR
	qr.Factorize(xw)
	beta := mat.NewVecDense(n, nil)
	if err := qr.SolveVecTo(beta, false, yw); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, err
		}
		if math.IsInf(float64(cond), 1) {
			return nil, ErrSingular
		}
	}
	return beta, nil
}

// Median returns the empirical median.
func Median(data []float64) float64 {
	return quantile(data, 0.5)
}

// MAD returns the median absolute deviation from the median.
func MAD(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	med := Median(data)
	dev := make([]float64, len(data))
	for i, v := range data {
		dev[i] = math.Abs(v - med)
	}
	return Median(dev)
}

// IQR returns the interquartile range Q3 - Q1.
func IQR(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	return quantile(data, 0.75) - quantile(data, 0.25)
}

func quantile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// TricubeWeights returns n weights that decay with distance from the most
// recent (last) sample: w_i = (1 - d_i³)³ with d_i = (n-1-i)/n.
func TricubeWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		d := float64(n-1-i) / float64(n)
		w[i] = math.Pow(1-d*d*d, 3)
	}
	return w
}

// LocalRegression fits a tricube-weighted line through series (x = sample
// index) and returns intercept and slope. With robust set, one bisquare
// reweighting pass damps outliers.
func LocalRegression(series []float64, robust bool) (intercept, slope float64, err error) {
	n := len(series)
	if n < 3 {
		return 0, 0, fmt.Errorf("local regression needs 3 samples, got %d: %w", n, ErrInsufficientData)
	}
	x := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
		x.Set(i, 1, float64(i+1))
	}
	weights := TricubeWeights(n)
	beta, err := leastSquares(x, series, weights)
	if err != nil {
		return 0, 0, err
	}
	if robust {
		residuals := make([]float64, n)
		for i := 0; i < n; i++ {
			residuals[i] = series[i] - (beta.AtVec(0) + beta.AtVec(1)*float64(i+1))
		}
		scale := 6 * Median(absAll(residuals))
		if scale > 0 {
			for i, r := range residuals {
				u := r / scale
				b := 0.0
				if math.Abs(u) < 1 {
					b = (1 - u*u) * (1 - u*u)
				}
				weights[i] *= b
			}
			if beta, err = leastSquares(x, series, weights); err != nil {
				return 0, 0, err
			}
		}
	}
	return beta.AtVec(0), beta.AtVec(1), nil
}

func absAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Abs(x)
	}
	return out
}
