package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures placement, migration and auction decisions.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// SimulationTrace collects decision records during a run. A nil trace
// ignores every record.
type SimulationTrace struct {
	Level      TraceLevel
	Placements []PlacementRecord
	Migrations []MigrationRecord
	Auctions   []AuctionRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(level TraceLevel) *SimulationTrace {
	return &SimulationTrace{
		Level:      level,
		Placements: make([]PlacementRecord, 0),
		Migrations: make([]MigrationRecord, 0),
		Auctions:   make([]AuctionRecord, 0),
	}
}

func (st *SimulationTrace) enabled() bool {
	return st != nil && st.Level == TraceLevelDecisions
}

// RecordPlacement appends a placement decision.
func (st *SimulationTrace) RecordPlacement(record PlacementRecord) {
	if st.enabled() {
		st.Placements = append(st.Placements, record)
	}
}

// RecordMigration appends a migration decision.
func (st *SimulationTrace) RecordMigration(record MigrationRecord) {
	if st.enabled() {
		st.Migrations = append(st.Migrations, record)
	}
}

// FinishMigration marks the migration with id finished at clock.
func (st *SimulationTrace) FinishMigration(id string, clock float64) {
	if !st.enabled() {
		return
	}
	for i := range st.Migrations {
		if st.Migrations[i].ID == id {
			st.Migrations[i].Finished = true
			st.Migrations[i].FinishedAt = clock
			return
		}
	}
}

// RecordAuction appends a closed auction round.
func (st *SimulationTrace) RecordAuction(record AuctionRecord) {
	if st.enabled() {
		st.Auctions = append(st.Auctions, record)
	}
}
