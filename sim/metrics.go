// Tracks datacenter-wide metrics such as placements, migrations, SLA
// overload time and host utilization.

package sim

import "fmt"

// Metrics aggregates statistics about a run for final reporting.
type Metrics struct {
	GuestsRequested   int // create requests received
	GuestsCreated     int // placed successfully
	GuestsUnplaceable int // still waiting for a host at the end
	GuestsDestroyed   int
	WorkloadsFinished int

	MigrationsStarted   int
	MigrationsCompleted int
	MigrationsDropped   int

	AuctionRounds int

	HostSamples     int     // active host × interval samples
	OverloadSamples int     // of which the host was overloaded
	UtilizationSum  float64 // sum of sampled CPU utilization
	Utilizations    []float64

	ActiveHosts  int // hosts with at least one guest at the end
	SimEndedTime float64
}

// RecordHostSample adds one interval sample of an active host.
func (m *Metrics) RecordHostSample(utilization float64, overloaded bool) {
	m.HostSamples++
	m.UtilizationSum += utilization
	m.Utilizations = append(m.Utilizations, utilization)
	if overloaded {
		m.OverloadSamples++
	}
}

// OverloadFraction is the share of active host time spent overloaded, the
// SLA violation measure of the run.
func (m *Metrics) OverloadFraction() float64 {
	if m.HostSamples == 0 {
		return 0
	}
	return float64(m.OverloadSamples) / float64(m.HostSamples)
}

// MeanUtilization is the mean CPU utilization of active hosts.
func (m *Metrics) MeanUtilization() float64 {
	if m.HostSamples == 0 {
		return 0
	}
	return m.UtilizationSum / float64(m.HostSamples)
}

// Print displays aggregated metrics at the end of the run.
func (m *Metrics) Print() {
	fmt.Println("=== Simulation Metrics ===")
	fmt.Printf("Simulated Time       : %.2f\n", m.SimEndedTime)
	fmt.Printf("Guests Requested     : %d\n", m.GuestsRequested)
	fmt.Printf("Guests Created       : %d\n", m.GuestsCreated)
	fmt.Printf("Guests Unplaceable   : %d\n", m.GuestsUnplaceable)
	fmt.Printf("Workloads Finished   : %d\n", m.WorkloadsFinished)
	fmt.Printf("Migrations           : %d started, %d completed, %d dropped\n",
		m.MigrationsStarted, m.MigrationsCompleted, m.MigrationsDropped)
	if m.AuctionRounds > 0 {
		fmt.Printf("Auction Rounds       : %d\n", m.AuctionRounds)
	}
	fmt.Printf("Active Hosts         : %d\n", m.ActiveHosts)
	if m.HostSamples > 0 {
		sorted := sortedCopy(m.Utilizations)
		fmt.Printf("Mean CPU Utilization : %.2f%%\n", m.MeanUtilization()*100)
		fmt.Printf("P95 CPU Utilization  : %.2f%%\n", CalculatePercentile(sorted, 95)*100)
		fmt.Printf("SLA Overload Time    : %.2f%%\n", m.OverloadFraction()*100)
	}
}
