package workload

import (
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dcsim/dcsim/sim"
)

func TestSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr string
	}{
		{"valid default", Spec{Length: 1000}, ""},
		{"zero length", Spec{}, "length"},
		{"negative pes", Spec{Length: 1, Pes: -1}, "pes"},
		{"unknown model", Spec{Length: 1, Cpu: UtilizationSpec{Model: "gaussian"}}, "unknown utilization model"},
		{"constant out of range", Spec{Length: 1, Ram: UtilizationSpec{Model: ModelConstant, Fraction: 2}}, "fraction"},
		{"stochastic reversed", Spec{Length: 1, Cpu: UtilizationSpec{Model: ModelStochastic, Min: 0.8, Max: 0.2}}, "exceeds"},
		{"trace without file", Spec{Length: 1, Cpu: UtilizationSpec{Model: ModelTrace}}, "requires file"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.spec.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestBuilder_Build_ModelsPerResource(t *testing.T) {
	// GIVEN a spec mixing every model kind
	dir := t.TempDir()
	writeTrace(t, filepath.Join(dir, "vm.txt"), "50\n70\n")
	b := NewBuilder(rand.New(rand.NewSource(1)), dir)
	spec := Spec{
		Length: 5000,
		Pes:    2,
		Cpu:    UtilizationSpec{Model: ModelTrace, File: "vm.txt"},
		Ram:    UtilizationSpec{Model: ModelConstant, Fraction: 0.25},
		Bw:     UtilizationSpec{Model: ModelStochastic, Min: 0.1, Max: 0.2},
	}

	// WHEN the workload is built
	w, err := b.Build(spec, 3, 9, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN each resource follows its model
	if w.ID != 3 || w.OwnerID != 9 || w.NumPes != 2 || w.TotalLength() != 10000 {
		t.Errorf("unexpected workload fields: %v", w)
	}
	if got := w.CpuUtilization(150); got < 0.599 || got > 0.601 {
		t.Errorf("cpu utilization at 150 = %v, want 0.6", got)
	}
	if got := w.RamUtilization(0); got != 0.25 {
		t.Errorf("ram utilization = %v, want 0.25", got)
	}
	if got := w.BwUtilization(0); got < 0.1 || got > 0.2 {
		t.Errorf("bw utilization = %v, want within [0.1,0.2]", got)
	}
}

func TestBuilder_TraceDirectory_IndexPicksFile(t *testing.T) {
	dir := t.TempDir()
	writeTrace(t, filepath.Join(dir, "a"), "10\n")
	writeTrace(t, filepath.Join(dir, "b"), "40\n")
	b := NewBuilder(rand.New(rand.NewSource(1)), "")
	spec := Spec{Length: 1, Cpu: UtilizationSpec{Model: ModelTrace, File: dir}}

	want := []float64{0.1, 0.4, 0.1}
	for i, w := range want {
		wl, err := b.Build(spec, i, 0, i)
		if err != nil {
			t.Fatalf("index %d: %v", i, err)
		}
		if got := wl.CpuUtilization(0); got != w {
			t.Errorf("index %d: utilization %v, want %v", i, got, w)
		}
	}
}

func TestBuilder_DefaultModel_IsFull(t *testing.T) {
	b := NewBuilder(rand.New(rand.NewSource(1)), "")
	w, err := b.Build(Spec{Length: 10}, 0, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := w.CpuModel.(sim.FullUtilization); !ok {
		t.Errorf("cpu model = %T, want sim.FullUtilization", w.CpuModel)
	}
}

func TestBuilder_MissingTrace_Errors(t *testing.T) {
	b := NewBuilder(rand.New(rand.NewSource(1)), t.TempDir())
	_, err := b.Build(Spec{Length: 1, Cpu: UtilizationSpec{Model: ModelTrace, File: "missing"}}, 0, 0, 0)
	if err == nil {
		t.Error("expected error for missing trace")
	}
}
