package coverage

import "time"

// Flags captured on a coverage row to explain readings that would
// otherwise look like failures.
type Flags struct {
	NoMatchesScheduled bool   `json:"no_matches_scheduled,omitempty"`
	OutOfScope         bool   `json:"out_of_scope,omitempty"`
	ScopeReason        string `json:"scope_reason,omitempty"`
}

// Status is the computed coverage for one (league, season, endpoint).
// Each recompute replaces the prior row.
type Status struct {
	LeagueID int64
	Season   int
	Endpoint string

	// CountCoverage is nil when no expected count is configured.
	CountCoverage     *float64
	FreshnessCoverage float64
	PipelineCoverage  float64
	Overall           float64

	// LagMinutes is nil when the pair has no rows yet.
	LagMinutes    *float64
	ActualCount   int
	ExpectedCount *int

	FlagsJSON  []byte
	ComputedAt time.Time
}
