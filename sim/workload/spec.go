package workload

import (
	"fmt"
	"math"
)

// Utilization model names accepted in scenario files.
const (
	ModelFull       = "full"
	ModelConstant   = "constant"
	ModelStochastic = "stochastic"
	ModelTrace      = "trace"
)

var validModels = map[string]bool{
	"": true, ModelFull: true, ModelConstant: true, ModelStochastic: true, ModelTrace: true,
}

// IsValidModel reports whether name is a known utilization model. Empty
// means full utilization.
func IsValidModel(name string) bool { return validModels[name] }

// UtilizationSpec configures the demand of one resource over time.
type UtilizationSpec struct {
	Model    string  `yaml:"model"`
	Fraction float64 `yaml:"fraction,omitempty"` // constant
	Min      float64 `yaml:"min,omitempty"`      // stochastic
	Max      float64 `yaml:"max,omitempty"`      // stochastic; 0 means 1
	File     string  `yaml:"file,omitempty"`     // trace: a PlanetLab file, or a directory of them
	Interval float64 `yaml:"interval,omitempty"` // trace: sampling period, default 300
}

// Spec describes the workload each guest of a template runs.
type Spec struct {
	Length float64         `yaml:"length"` // million instructions per PE
	Pes    int             `yaml:"pes"`
	Cpu    UtilizationSpec `yaml:"cpu"`
	Ram    UtilizationSpec `yaml:"ram"`
	Bw     UtilizationSpec `yaml:"bw"`
}

// Validate checks the spec before any model is built.
func (s *Spec) Validate() error {
	if math.IsNaN(s.Length) || math.IsInf(s.Length, 0) || s.Length <= 0 {
		return fmt.Errorf("length must be a positive finite number, got %v", s.Length)
	}
	if s.Pes < 0 {
		return fmt.Errorf("pes must be non-negative, got %d", s.Pes)
	}
	for name, u := range map[string]UtilizationSpec{"cpu": s.Cpu, "ram": s.Ram, "bw": s.Bw} {
		if err := u.validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (u UtilizationSpec) validate() error {
	if !IsValidModel(u.Model) {
		return fmt.Errorf("unknown utilization model %q; valid: full, constant, stochastic, trace", u.Model)
	}
	switch u.Model {
	case ModelConstant:
		if u.Fraction < 0 || u.Fraction > 1 {
			return fmt.Errorf("fraction must be in [0,1], got %v", u.Fraction)
		}
	case ModelStochastic:
		if u.Min < 0 || u.Min > 1 || u.Max < 0 || u.Max > 1 {
			return fmt.Errorf("min and max must be in [0,1], got [%v,%v]", u.Min, u.Max)
		}
		if u.Max != 0 && u.Min > u.Max {
			return fmt.Errorf("min %v exceeds max %v", u.Min, u.Max)
		}
	case ModelTrace:
		if u.File == "" {
			return fmt.Errorf("trace model requires file")
		}
		if u.Interval < 0 {
			return fmt.Errorf("interval must be non-negative, got %v", u.Interval)
		}
	}
	return nil
}
