package sim

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PolicyBundle holds the decision policies of a run, loadable from YAML.
// Nil pointer fields mean "not set in YAML" and take the detector's default.
// String fields use empty string for "not set".
type PolicyBundle struct {
	Placement PlacementConfig `yaml:"placement"`
	Selection SelectionConfig `yaml:"selection"`
	Detection DetectionConfig `yaml:"detection"`
	Auction   AuctionConfig   `yaml:"auction"`
	// Scheduler is the guest scheduler of every host.
	Scheduler string `yaml:"scheduler"`
}

// PlacementConfig names the placement policy and the ones tried after it.
type PlacementConfig struct {
	Policy    string   `yaml:"policy"`
	Fallbacks []string `yaml:"fallbacks"`
}

// SelectionConfig holds the guest-to-migrate and destination chains.
type SelectionConfig struct {
	Guest       ChainConfig `yaml:"guest"`
	Destination ChainConfig `yaml:"destination"`
}

// ChainConfig is a set of named policies linked by fallback names. The
// chain starts at Start, or at the first policy when Start is empty.
type ChainConfig struct {
	Start    string      `yaml:"start"`
	Policies []PolicyRef `yaml:"policies"`
}

// PolicyRef is one named policy instance.
type PolicyRef struct {
	Name     string `yaml:"name"`
	Policy   string `yaml:"policy"`
	Fallback string `yaml:"fallback"`
	// Metric selects the correlation metric (pearson or regression).
	Metric string `yaml:"metric"`
	// MinHistory is the sample count a correlation destination must exceed.
	MinHistory int `yaml:"min_history"`
}

// Entry returns the name the chain starts from.
func (c ChainConfig) Entry() string {
	if c.Start != "" || len(c.Policies) == 0 {
		return c.Start
	}
	return c.Policies[0].Name
}

// DetectionConfig configures overload and underload detection.
type DetectionConfig struct {
	Overload  string   `yaml:"overload"`
	Threshold *float64 `yaml:"threshold"`
	Safety    *float64 `yaml:"safety"`
	Underload *float64 `yaml:"underload_threshold"`
	// MinHistory is the number of samples adaptive detectors need before
	// they stop deferring to the static threshold.
	MinHistory int `yaml:"min_history"`
	// Lookahead is how many intervals ahead the regression detector predicts.
	Lookahead int `yaml:"lookahead"`
}

// AuctionConfig enables auction rounds for broker requests.
type AuctionConfig struct {
	Enabled bool `yaml:"enabled"`
	// Interval is the time between rounds.
	Interval float64 `yaml:"interval"`
}

// LoadPolicyBundle reads and strictly parses a YAML policy file. Unknown
// fields are errors.
func LoadPolicyBundle(path string) (*PolicyBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy config: %w", err)
	}
	var bundle PolicyBundle
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&bundle); err != nil {
		return nil, fmt.Errorf("parsing policy config: %w", err)
	}
	return &bundle, nil
}

// ValidPlacementPolicies is the set of recognized placement policy names.
// Shared by Validate() and placement.NewPolicy().
var ValidPlacementPolicies = map[string]bool{
	"": true, "first-fit": true, "most-full": true, "least-full": true,
	"least-requested": true, "balanced": true, "random": true, "auction": true,
}

// ValidGuestSelectionPolicies is the set of recognized guest-to-migrate policies.
var ValidGuestSelectionPolicies = map[string]bool{
	"maximum-usage": true, "minimum-migration-time": true, "minimum-utilization": true,
	"maximum-correlation": true, "minimum-correlation": true, "random": true,
}

// ValidDestinationPolicies is the set of recognized destination policies.
var ValidDestinationPolicies = map[string]bool{
	"first-fit": true, "most-full": true, "least-full": true, "minimum-correlation": true,
}

// ValidCorrelationMetrics is the set of recognized correlation metrics.
var ValidCorrelationMetrics = map[string]bool{"": true, "pearson": true, "regression": true}

// ValidOverloadDetectors is the set of recognized overload detectors.
var ValidOverloadDetectors = map[string]bool{
	"": true, "static": true, "mad": true, "iqr": true, "lr": true, "lr-robust": true,
}

// Validate checks that all policy names and parameter ranges in the bundle are valid.
func (b *PolicyBundle) Validate() error {
	if !ValidPlacementPolicies[b.Placement.Policy] {
		return fmt.Errorf("unknown placement policy %q", b.Placement.Policy)
	}
	for _, f := range b.Placement.Fallbacks {
		if f == "" || !ValidPlacementPolicies[f] {
			return fmt.Errorf("unknown placement fallback %q", f)
		}
	}
	if err := validateChain("guest selection", b.Selection.Guest, ValidGuestSelectionPolicies); err != nil {
		return err
	}
	if err := validateChain("destination", b.Selection.Destination, ValidDestinationPolicies); err != nil {
		return err
	}
	if !ValidOverloadDetectors[b.Detection.Overload] {
		return fmt.Errorf("unknown overload detector %q", b.Detection.Overload)
	}
	if !IsValidGuestScheduler(b.Scheduler) {
		return fmt.Errorf("unknown scheduler %q", b.Scheduler)
	}
	// Parameter range validation
	if t := b.Detection.Threshold; t != nil && (*t <= 0 || *t > 1) {
		return fmt.Errorf("threshold must be in (0, 1], got %f", *t)
	}
	if s := b.Detection.Safety; s != nil && *s < 0 {
		return fmt.Errorf("safety must be non-negative, got %f", *s)
	}
	if u := b.Detection.Underload; u != nil && (*u < 0 || *u >= 1) {
		return fmt.Errorf("underload_threshold must be in [0, 1), got %f", *u)
	}
	if b.Detection.MinHistory < 0 {
		return fmt.Errorf("min_history must be non-negative, got %d", b.Detection.MinHistory)
	}
	if b.Detection.Lookahead < 0 {
		return fmt.Errorf("lookahead must be non-negative, got %d", b.Detection.Lookahead)
	}
	if b.Auction.Interval < 0 {
		return fmt.Errorf("auction interval must be non-negative, got %f", b.Auction.Interval)
	}
	return nil
}

// validateChain checks names and fallback links. Cycles are reported by the
// policy arena when the chain is built.
func validateChain(kind string, c ChainConfig, valid map[string]bool) error {
	names := make(map[string]bool, len(c.Policies))
	for _, p := range c.Policies {
		if p.Name == "" {
			return fmt.Errorf("%s policy without a name", kind)
		}
		if names[p.Name] {
			return fmt.Errorf("%s policy %q defined twice", kind, p.Name)
		}
		names[p.Name] = true
		if !valid[p.Policy] {
			return fmt.Errorf("unknown %s policy %q", kind, p.Policy)
		}
		if !ValidCorrelationMetrics[p.Metric] {
			return fmt.Errorf("%s policy %q: unknown metric %q", kind, p.Name, p.Metric)
		}
		if p.MinHistory < 0 {
			return fmt.Errorf("%s policy %q: min_history must be non-negative", kind, p.Name)
		}
	}
	for _, p := range c.Policies {
		if p.Fallback != "" && !names[p.Fallback] {
			return fmt.Errorf("%s policy %q: unknown fallback %q", kind, p.Name, p.Fallback)
		}
	}
	if c.Start != "" && !names[c.Start] {
		return fmt.Errorf("%s chain starts at unknown policy %q", kind, c.Start)
	}
	return nil
}
