package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dcsim/dcsim/sim"
	"github.com/dcsim/dcsim/sim/datacenter"
	"github.com/dcsim/dcsim/sim/trace"
)

var (
	scenarioPath  string  // Scenario YAML
	policyPath    string  // Policy bundle YAML
	logLevel      string  // Log verbosity level
	traceLevel    string  // Decision trace level
	historiesPath string  // CSV file for host utilization histories
	seed          int64   // Overrides the scenario seed when set
	horizon       float64 // Overrides the scenario horizon when set
	summarize     bool    // Print the decision trace summary
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "dcsim",
	Short: "Discrete-event simulator for datacenter resource allocation policies",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadEnvironment(".env")
		applyEnvironment(cmd)
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// runCmd executes the simulation described by the scenario file
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a datacenter simulation",
	Run: func(cmd *cobra.Command, args []string) {
		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s", traceLevel)
		}
		sc, bundle, err := loadInputs(scenarioPath, policyPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if cmd.Flags().Changed("seed") {
			sc.Seed = seed
		}
		if cmd.Flags().Changed("horizon") {
			sc.Horizon = horizon
		}

		tr := trace.NewSimulationTrace(trace.TraceLevel(traceLevel))
		s, err := datacenter.Build(sc, bundle, filepath.Dir(scenarioPath), tr)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Infof("Starting simulation: %d hosts, %d brokers, seed=%d, horizon=%.0f",
			sc.NumHosts(), len(sc.Brokers), sc.Seed, s.Horizon)

		startTime := time.Now()
		m := s.Run()
		m.Print()
		if summarize {
			printSummary(trace.Summarize(tr))
		}
		if historiesPath != "" {
			if err := sim.SaveHistories(s.Datacenter.Orchestrator.Hosts, historiesPath); err != nil {
				logrus.Fatalf("%v", err)
			}
		}
		logrus.Infof("Simulation complete in %s.", time.Since(startTime))
	},
}

// validateCmd checks the input files without running anything
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a scenario and policy bundle",
	Run: func(cmd *cobra.Command, args []string) {
		sc, bundle, err := loadInputs(scenarioPath, policyPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if _, err := datacenter.Build(sc, bundle, filepath.Dir(scenarioPath), nil); err != nil {
			logrus.Fatalf("%v", err)
		}
		fmt.Printf("%s: ok (%d hosts, %d brokers)\n", scenarioPath, sc.NumHosts(), len(sc.Brokers))
	},
}

// loadInputs reads the scenario and the optional policy bundle and
// validates both.
func loadInputs(scenarioPath, policyPath string) (*datacenter.Scenario, *sim.PolicyBundle, error) {
	if scenarioPath == "" {
		return nil, nil, fmt.Errorf("no scenario given: use --scenario or %s", envScenario)
	}
	sc, err := datacenter.LoadScenario(scenarioPath)
	if err != nil {
		return nil, nil, err
	}
	if err := sc.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", scenarioPath, err)
	}
	bundle := &sim.PolicyBundle{}
	if policyPath != "" {
		if bundle, err = sim.LoadPolicyBundle(policyPath); err != nil {
			return nil, nil, err
		}
	}
	if err := bundle.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", policyPath, err)
	}
	return sc, bundle, nil
}

func printSummary(s *trace.TraceSummary) {
	fmt.Println("=== Decision Trace ===")
	fmt.Printf("Placements           : %d (%d placed, %d unplaced)\n", s.TotalPlacements, s.PlacedCount, s.UnplacedCount)
	fmt.Printf("Hosts Used           : %d\n", s.UniqueHosts)
	policies := make([]string, 0, len(s.DecidedBy))
	for p := range s.DecidedBy {
		policies = append(policies, p)
	}
	sort.Strings(policies)
	for _, p := range policies {
		fmt.Printf("  decided by %-10s: %d\n", p, s.DecidedBy[p])
	}
	fmt.Printf("Migrations           : %d (%d finished, %d overload)\n", s.TotalMigrations, s.FinishedMigrations, s.OverloadMigrations)
	if s.AuctionRounds > 0 {
		fmt.Printf("Auctions             : %d rounds, %d awards\n", s.AuctionRounds, s.AuctionAwards)
	}
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&scenarioPath, "scenario", "", "Scenario YAML file")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "Policy bundle YAML file (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().Int64Var(&seed, "seed", 0, "Overrides the scenario seed")
	runCmd.Flags().Float64Var(&horizon, "horizon", 0, "Overrides the scenario horizon (seconds)")
	runCmd.Flags().StringVar(&traceLevel, "trace", string(trace.TraceLevelNone), "Decision trace level (none, decisions)")
	runCmd.Flags().BoolVar(&summarize, "summary", false, "Print the decision trace summary (needs --trace decisions)")
	runCmd.Flags().StringVar(&historiesPath, "histories", "", "Write host utilization histories to this CSV file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
