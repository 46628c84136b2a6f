package workload

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/dcsim/dcsim/sim"
)

// Builder turns specs into workloads. Trace files are read once and shared
// between the guests that replay them.
type Builder struct {
	rng     *rand.Rand
	baseDir string
	traces  map[string][]*Trace
}

// NewBuilder resolves relative trace paths against baseDir. rng seeds the
// stochastic models and should be the workload subsystem RNG.
func NewBuilder(rng *rand.Rand, baseDir string) *Builder {
	return &Builder{rng: rng, baseDir: baseDir, traces: make(map[string][]*Trace)}
}

// Build creates the workload of the index-th guest of a template. The index
// picks the series when a trace directory holds one file per VM.
func (b *Builder) Build(spec Spec, id, ownerID, index int) (*sim.Workload, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	w := sim.NewWorkload(id, ownerID, spec.Length, spec.Pes)
	var err error
	if w.CpuModel, err = b.model(spec.Cpu, index); err != nil {
		return nil, fmt.Errorf("cpu model: %w", err)
	}
	if w.RamModel, err = b.model(spec.Ram, index); err != nil {
		return nil, fmt.Errorf("ram model: %w", err)
	}
	if w.BwModel, err = b.model(spec.Bw, index); err != nil {
		return nil, fmt.Errorf("bw model: %w", err)
	}
	return w, nil
}

func (b *Builder) model(u UtilizationSpec, index int) (sim.UtilizationModel, error) {
	switch u.Model {
	case "", ModelFull:
		return sim.FullUtilization{}, nil
	case ModelConstant:
		return sim.ConstantUtilization{Fraction: u.Fraction}, nil
	case ModelStochastic:
		max := u.Max
		if max == 0 {
			max = 1
		}
		return NewStochastic(b.rng, u.Min, max), nil
	case ModelTrace:
		traces, err := b.load(u)
		if err != nil {
			return nil, err
		}
		return traces[index%len(traces)], nil
	default:
		return nil, fmt.Errorf("unknown utilization model %q", u.Model)
	}
}

func (b *Builder) load(u UtilizationSpec) ([]*Trace, error) {
	path := u.File
	if !filepath.IsAbs(path) && b.baseDir != "" {
		path = filepath.Join(b.baseDir, path)
	}
	interval := u.Interval
	if interval == 0 {
		interval = DefaultTraceInterval
	}
	key := fmt.Sprintf("%s@%g", path, interval)
	if cached, ok := b.traces[key]; ok {
		return cached, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("trace %s: %w", path, err)
	}
	var traces []*Trace
	if info.IsDir() {
		traces, err = LoadPlanetLabDir(path, interval)
	} else {
		var tr *Trace
		tr, err = LoadPlanetLab(path, interval)
		traces = []*Trace{tr}
	}
	if err != nil {
		return nil, err
	}
	b.traces[key] = traces
	return traces, nil
}
