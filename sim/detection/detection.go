// Package detection decides when a host is overloaded or underloaded. The
// adaptive detectors derive an upper threshold (or a predicted load) from
// the host's utilization history and defer to a static threshold while the
// history is too short or its statistics are undefined.
package detection

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/dcsim/dcsim/sim"
	"github.com/dcsim/dcsim/sim/policy"
	"github.com/dcsim/dcsim/sim/stats"
)

// Defaults applied when a parameter is unset.
const (
	DefaultThreshold          = 0.9
	DefaultUnderloadThreshold = 0.2
	DefaultMadSafety          = 2.5
	DefaultIqrSafety          = 1.5
	DefaultLrSafety           = 1.2
	DefaultAdaptiveHistory    = 12
	DefaultRegressionHistory  = 10
)

// ErrShortHistory means the host has not collected enough samples yet.
var ErrShortHistory = errors.New("utilization history too short")

// Utilization is the host's requested CPU over its capacity. It may exceed
// 1 on an oversubscribed host.
func Utilization(h *sim.Host, now float64) float64 {
	total := h.TotalMips()
	if total <= 0 {
		return 0
	}
	return h.RequestedMips(now) / total
}

// OverloadDetector decides whether a host should shed load. An error means
// the detector cannot decide.
type OverloadDetector interface {
	Name() string
	IsOverloaded(h *sim.Host, now float64) (bool, error)
}

// Static flags hosts above a fixed utilization threshold.
type Static struct {
	Threshold float64
}

// Name implements OverloadDetector.
func (s Static) Name() string { return "static" }

// IsOverloaded implements OverloadDetector.
func (s Static) IsOverloaded(h *sim.Host, now float64) (bool, error) {
	return Utilization(h, now) > s.Threshold, nil
}

// Adaptive derives the upper threshold 1 - safety × spread(history), where
// spread is the median absolute deviation or the interquartile range.
type Adaptive struct {
	name       string
	spread     func([]float64) float64
	Safety     float64
	MinHistory int
}

// NewMAD creates a median-absolute-deviation detector.
func NewMAD(safety float64, minHistory int) *Adaptive {
	return &Adaptive{name: "mad", spread: stats.MAD, Safety: safety, MinHistory: minHistory}
}

// NewIQR creates an interquartile-range detector.
func NewIQR(safety float64, minHistory int) *Adaptive {
	return &Adaptive{name: "iqr", spread: stats.IQR, Safety: safety, MinHistory: minHistory}
}

// Name implements OverloadDetector.
func (a *Adaptive) Name() string { return a.name }

// UpperThreshold returns the adaptive threshold for h.
func (a *Adaptive) UpperThreshold(h *sim.Host) (float64, error) {
	history := h.UtilizationHistory()
	if len(history) < a.MinHistory {
		return 0, fmt.Errorf("%s: %d of %d samples: %w", a.name, len(history), a.MinHistory, ErrShortHistory)
	}
	spread := a.spread(history)
	if math.IsNaN(spread) {
		return 0, policy.Degenerate(a.name, "spread undefined")
	}
	return 1 - a.Safety*spread, nil
}

// IsOverloaded implements OverloadDetector.
func (a *Adaptive) IsOverloaded(h *sim.Host, now float64) (bool, error) {
	upper, err := a.UpperThreshold(h)
	if err != nil {
		return false, err
	}
	return Utilization(h, now) > upper, nil
}

// Regression predicts the host's utilization Lookahead intervals ahead with
// a tricube-weighted local regression over its recent history and flags it
// when safety × prediction reaches 1.
type Regression struct {
	Robust     bool
	Safety     float64
	MinHistory int
	Lookahead  int
}

// Name implements OverloadDetector.
func (r *Regression) Name() string {
	if r.Robust {
		return "lr-robust"
	}
	return "lr"
}

// Predict returns the forecast utilization.
func (r *Regression) Predict(h *sim.Host) (float64, error) {
	history := h.UtilizationHistory()
	if len(history) < r.MinHistory {
		return 0, fmt.Errorf("%s: %d of %d samples: %w", r.Name(), len(history), r.MinHistory, ErrShortHistory)
	}
	window := stats.Tail(history, r.MinHistory)
	intercept, slope, err := stats.LocalRegression(window, r.Robust)
	if err != nil {
		return 0, policy.Degenerate(r.Name(), err.Error())
	}
	return intercept + slope*float64(len(window)+r.Lookahead), nil
}

// IsOverloaded implements OverloadDetector.
func (r *Regression) IsOverloaded(h *sim.Host, _ float64) (bool, error) {
	predicted, err := r.Predict(h)
	if err != nil {
		return false, err
	}
	return predicted*r.Safety >= 1, nil
}

// Fallback asks Primary and, when it cannot decide, Secondary.
type Fallback struct {
	Primary   OverloadDetector
	Secondary OverloadDetector
}

// Name implements OverloadDetector.
func (f Fallback) Name() string { return f.Primary.Name() + "->" + f.Secondary.Name() }

// IsOverloaded implements OverloadDetector.
func (f Fallback) IsOverloaded(h *sim.Host, now float64) (bool, error) {
	over, err := f.Primary.IsOverloaded(h, now)
	if err == nil {
		return over, nil
	}
	logrus.Debugf("%s: %v; using %s", h, err, f.Secondary.Name())
	return f.Secondary.IsOverloaded(h, now)
}

// NewOverloadDetector builds the configured detector. Adaptive detectors
// fall back to a static threshold. Panics on unrecognized names.
func NewOverloadDetector(cfg sim.DetectionConfig) OverloadDetector {
	threshold := DefaultThreshold
	if cfg.Threshold != nil {
		threshold = *cfg.Threshold
	}
	static := Static{Threshold: threshold}
	safety := func(def float64) float64 {
		if cfg.Safety != nil {
			return *cfg.Safety
		}
		return def
	}
	history := func(def int) int {
		if cfg.MinHistory > 0 {
			return cfg.MinHistory
		}
		return def
	}
	switch cfg.Overload {
	case "", "static":
		return static
	case "mad":
		return Fallback{Primary: NewMAD(safety(DefaultMadSafety), history(DefaultAdaptiveHistory)), Secondary: static}
	case "iqr":
		return Fallback{Primary: NewIQR(safety(DefaultIqrSafety), history(DefaultAdaptiveHistory)), Secondary: static}
	case "lr", "lr-robust":
		lookahead := cfg.Lookahead
		if lookahead == 0 {
			lookahead = 1
		}
		return Fallback{Primary: &Regression{
			Robust:     cfg.Overload == "lr-robust",
			Safety:     safety(DefaultLrSafety),
			MinHistory: max(history(DefaultRegressionHistory), 3),
			Lookahead:  lookahead,
		}, Secondary: static}
	default:
		panic(fmt.Sprintf("unknown overload detector %q", cfg.Overload))
	}
}

// UnderloadThreshold returns the configured threshold or the default.
func UnderloadThreshold(cfg sim.DetectionConfig) float64 {
	if cfg.Underload != nil {
		return *cfg.Underload
	}
	return DefaultUnderloadThreshold
}

// MostUnderloaded returns the least utilized non-excluded host whose
// utilization is positive and below threshold, skipping hosts that have a
// guest in flight. Nil when no host qualifies.
func MostUnderloaded(hosts []*sim.Host, now, threshold float64, excluded policy.Set[*sim.Host]) *sim.Host {
	var best *sim.Host
	bestUtil := math.Inf(1)
	for _, h := range hosts {
		if excluded.Has(h) || h.IsFailed() || h.NumGuests() == 0 || busyMigrating(h) {
			continue
		}
		u := Utilization(h, now)
		if u <= 0 || u >= threshold {
			continue
		}
		if u < bestUtil {
			bestUtil = u
			best = h
		}
	}
	return best
}

func busyMigrating(h *sim.Host) bool {
	if len(h.GuestsMigratingIn()) > 0 {
		return true
	}
	for _, g := range h.Guests() {
		if g.InMigration {
			return true
		}
	}
	return false
}
