// Package trace records the decisions of a datacenter run for later
// analysis. It has no dependencies on sim/: it stores pure data types.
package trace

// PlacementRecord captures one placement decision.
type PlacementRecord struct {
	GuestUID string
	Clock    float64
	// Host is the chosen host ID, or -1 when the guest could not be placed.
	Host int
	// Policy is the chain link that decided; empty when unplaced.
	Policy string
	Reason string
}

// Placed reports whether the decision found a host.
func (r PlacementRecord) Placed() bool { return r.Host >= 0 }

// MigrationRecord captures one migration decision and its outcome.
type MigrationRecord struct {
	ID          string
	GuestUID    string
	Clock       float64
	Source      int
	Destination int
	// Cause is "overload" or "underload".
	Cause      string
	Selector   string
	Finished   bool
	FinishedAt float64
}

// AwardRecord is one award of an auction round.
type AwardRecord struct {
	Buyer  int
	Seller int
	Key    string
	Amount int
	Price  string
}

// AuctionRecord captures one closed auction round.
type AuctionRecord struct {
	Round    string
	Clock    float64
	Bids     int
	Awards   []AwardRecord
	Unserved int
}
