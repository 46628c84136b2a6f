package datacenter

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/dcsim/dcsim/sim"
	"github.com/dcsim/dcsim/sim/workload"
)

// DefaultHorizon bounds a run whose scenario sets no horizon: one day.
const DefaultHorizon = 86400.0

// Scenario describes one run: the hosts of the datacenter, the guests each
// broker requests and the failures injected along the way.
type Scenario struct {
	Seed          int64   `yaml:"seed"`
	Horizon       float64 `yaml:"horizon"`
	Interval      float64 `yaml:"scheduling_interval"`
	HistoryLength int     `yaml:"history_length"`
	// Consolidate enables overload and underload migrations. Default true.
	Consolidate *bool `yaml:"consolidate"`
	// ContainerScheduler divides the PEs of container-hosting Vms.
	ContainerScheduler string `yaml:"container_scheduler"`

	Hosts    []HostSpec    `yaml:"hosts"`
	Brokers  []BrokerSpec  `yaml:"brokers"`
	Failures []FailureSpec `yaml:"failures"`
}

// HostSpec is a group of identical hosts.
type HostSpec struct {
	Count   int     `yaml:"count"`
	Pes     int     `yaml:"pes"`
	Mips    float64 `yaml:"mips"` // per PE
	Ram     int64   `yaml:"ram"`  // MB
	Bw      int64   `yaml:"bw"`   // Mbps
	Storage int64   `yaml:"storage"`
	// Scheduler overrides the policy bundle's guest scheduler.
	Scheduler string `yaml:"scheduler"`
}

// BrokerSpec is one user and the guests it requests.
type BrokerSpec struct {
	Name   string      `yaml:"name"`
	Guests []GuestSpec `yaml:"guests"`
}

// GuestSpec is a group of identical guests with their workloads.
type GuestSpec struct {
	Kind  string  `yaml:"kind"` // vm (default) or container
	Count int     `yaml:"count"`
	Mips  float64 `yaml:"mips"` // per PE
	Pes   int     `yaml:"pes"`
	Ram   int64   `yaml:"ram"`
	Bw    int64   `yaml:"bw"`
	Size  int64   `yaml:"size"`
	// Scheduler is the workload scheduler: time-shared or space-shared.
	Scheduler string `yaml:"scheduler"`
	// HostContainers makes each Vm a host for containers.
	HostContainers bool    `yaml:"host_containers"`
	SubmitAt       float64 `yaml:"submit_at"`
	DestroyAt      float64 `yaml:"destroy_at"`
	// MaxPrice is the highest unit price paid in auction mode, as a decimal
	// string. Empty means no limit.
	MaxPrice  string        `yaml:"max_price"`
	Workloads int           `yaml:"workloads"` // per guest
	Workload  workload.Spec `yaml:"workload"`
}

// FailureSpec fails host Host (by index) at time At.
type FailureSpec struct {
	Host int     `yaml:"host"`
	At   float64 `yaml:"at"`
}

// LoadScenario reads and strictly parses a YAML scenario file. Unknown
// fields are errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return &sc, nil
}

// NumHosts is the total host count.
func (s *Scenario) NumHosts() int {
	n := 0
	for _, h := range s.Hosts {
		n += h.Count
	}
	return n
}

// ConsolidationEnabled reports whether migrations are planned.
func (s *Scenario) ConsolidationEnabled() bool {
	return s.Consolidate == nil || *s.Consolidate
}

// Validate checks counts, capacities and references before anything is
// built.
func (s *Scenario) Validate() error {
	if invalid(s.Horizon) || s.Horizon < 0 {
		return fmt.Errorf("horizon must be a non-negative finite number, got %v", s.Horizon)
	}
	if invalid(s.Interval) || s.Interval < 0 {
		return fmt.Errorf("scheduling_interval must be a non-negative finite number, got %v", s.Interval)
	}
	if s.HistoryLength < 0 {
		return fmt.Errorf("history_length must be non-negative, got %d", s.HistoryLength)
	}
	if !sim.IsValidGuestScheduler(s.ContainerScheduler) {
		return fmt.Errorf("unknown container_scheduler %q", s.ContainerScheduler)
	}
	if len(s.Hosts) == 0 {
		return fmt.Errorf("scenario has no hosts")
	}
	for i, h := range s.Hosts {
		if err := h.validate(); err != nil {
			return fmt.Errorf("hosts[%d]: %w", i, err)
		}
	}
	names := make(map[string]bool)
	for i, b := range s.Brokers {
		if b.Name == "" {
			return fmt.Errorf("brokers[%d]: name is required", i)
		}
		if names[b.Name] {
			return fmt.Errorf("brokers[%d]: duplicate name %q", i, b.Name)
		}
		names[b.Name] = true
		for j, g := range b.Guests {
			if err := g.validate(); err != nil {
				return fmt.Errorf("broker %q guests[%d]: %w", b.Name, j, err)
			}
		}
	}
	for i, f := range s.Failures {
		if f.Host < 0 || f.Host >= s.NumHosts() {
			return fmt.Errorf("failures[%d]: host %d out of range [0,%d)", i, f.Host, s.NumHosts())
		}
		if invalid(f.At) || f.At < 0 {
			return fmt.Errorf("failures[%d]: at must be a non-negative finite number, got %v", i, f.At)
		}
	}
	return nil
}

func (h HostSpec) validate() error {
	if h.Count < 1 {
		return fmt.Errorf("count must be >= 1, got %d", h.Count)
	}
	if h.Pes < 1 {
		return fmt.Errorf("pes must be >= 1, got %d", h.Pes)
	}
	if invalid(h.Mips) || h.Mips <= 0 {
		return fmt.Errorf("mips must be a positive finite number, got %v", h.Mips)
	}
	if h.Ram <= 0 || h.Bw <= 0 || h.Storage < 0 {
		return fmt.Errorf("ram and bw must be positive and storage non-negative")
	}
	if !sim.IsValidGuestScheduler(h.Scheduler) {
		return fmt.Errorf("unknown scheduler %q", h.Scheduler)
	}
	return nil
}

func (g GuestSpec) validate() error {
	switch g.Kind {
	case "", string(sim.KindVm), string(sim.KindContainer):
	default:
		return fmt.Errorf("unknown kind %q; valid: vm, container", g.Kind)
	}
	if g.Count < 1 {
		return fmt.Errorf("count must be >= 1, got %d", g.Count)
	}
	if g.Pes < 1 {
		return fmt.Errorf("pes must be >= 1, got %d", g.Pes)
	}
	if invalid(g.Mips) || g.Mips <= 0 {
		return fmt.Errorf("mips must be a positive finite number, got %v", g.Mips)
	}
	if g.Ram < 0 || g.Bw < 0 || g.Size < 0 {
		return fmt.Errorf("ram, bw and size must be non-negative")
	}
	if !sim.IsValidWorkloadScheduler(g.Scheduler) {
		return fmt.Errorf("unknown scheduler %q", g.Scheduler)
	}
	if g.HostContainers && g.kind() != sim.KindVm {
		return fmt.Errorf("only vms can host containers")
	}
	if invalid(g.SubmitAt) || g.SubmitAt < 0 {
		return fmt.Errorf("submit_at must be a non-negative finite number, got %v", g.SubmitAt)
	}
	if invalid(g.DestroyAt) || g.DestroyAt < 0 {
		return fmt.Errorf("destroy_at must be a non-negative finite number, got %v", g.DestroyAt)
	}
	if g.DestroyAt > 0 && g.DestroyAt <= g.SubmitAt {
		return fmt.Errorf("destroy_at %v must come after submit_at %v", g.DestroyAt, g.SubmitAt)
	}
	if _, err := g.maxPrice(); err != nil {
		return err
	}
	if g.Workloads < 0 {
		return fmt.Errorf("workloads must be non-negative, got %d", g.Workloads)
	}
	if g.Workloads > 0 {
		if err := g.Workload.Validate(); err != nil {
			return fmt.Errorf("workload: %w", err)
		}
	}
	return nil
}

func (g GuestSpec) kind() sim.GuestKind {
	if g.Kind == "" {
		return sim.KindVm
	}
	return sim.GuestKind(g.Kind)
}

func (g GuestSpec) maxPrice() (decimal.Decimal, error) {
	if g.MaxPrice == "" {
		return decimal.Zero, nil
	}
	p, err := decimal.NewFromString(g.MaxPrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("max_price: %w", err)
	}
	if p.IsNegative() {
		return decimal.Zero, fmt.Errorf("max_price must be non-negative, got %s", p)
	}
	return p, nil
}

func invalid(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }
