package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalPlacements    int
	PlacedCount        int
	UnplacedCount      int
	TotalMigrations    int
	FinishedMigrations int
	OverloadMigrations int
	AuctionRounds      int
	AuctionAwards      int
	UniqueHosts        int
	HostDistribution   map[int]int    // host ID → guests placed there
	DecidedBy          map[string]int // policy name → placement decisions
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		HostDistribution: make(map[int]int),
		DecidedBy:        make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalPlacements = len(st.Placements)
	for _, p := range st.Placements {
		if p.Placed() {
			summary.PlacedCount++
			summary.HostDistribution[p.Host]++
			summary.DecidedBy[p.Policy]++
		} else {
			summary.UnplacedCount++
		}
	}

	summary.TotalMigrations = len(st.Migrations)
	for _, m := range st.Migrations {
		if m.Finished {
			summary.FinishedMigrations++
		}
		if m.Cause == "overload" {
			summary.OverloadMigrations++
		}
	}

	summary.AuctionRounds = len(st.Auctions)
	for _, a := range st.Auctions {
		summary.AuctionAwards += len(a.Awards)
	}

	summary.UniqueHosts = len(summary.HostDistribution)

	return summary
}
