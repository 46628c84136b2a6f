package workload

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultTraceInterval is the PlanetLab sampling period in seconds.
const DefaultTraceInterval = 300.0

// ReadPlanetLab parses a PlanetLab-style series: one CPU percentage (0-100)
// per line. Blank lines are skipped; values above 100 are capped.
func ReadPlanetLab(r io.Reader, interval float64) (*Trace, error) {
	var samples []float64
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("line %d: negative utilization %v", line, v)
		}
		samples = append(samples, v/100)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading trace: %w", err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("trace has no samples")
	}
	return NewTrace(interval, samples), nil
}

// LoadPlanetLab reads one trace file.
func LoadPlanetLab(path string, interval float64) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace %s: %w", path, err)
	}
	defer f.Close()
	tr, err := ReadPlanetLab(f, interval)
	if err != nil {
		return nil, fmt.Errorf("trace %s: %w", path, err)
	}
	return tr, nil
}

// LoadPlanetLabDir reads every regular file of dir in name order. PlanetLab
// dumps keep one VM per file, so the order fixes which guest replays which
// series.
func LoadPlanetLabDir(dir string, interval float64) ([]*Trace, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading trace directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("trace directory %s is empty", dir)
	}
	traces := make([]*Trace, 0, len(names))
	for _, name := range names {
		tr, err := LoadPlanetLab(filepath.Join(dir, name), interval)
		if err != nil {
			return nil, err
		}
		traces = append(traces, tr)
	}
	return traces, nil
}
