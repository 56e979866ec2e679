package teamstats

import "time"

// TeamStatistics is one season profile for a (league, season, team): form
// string plus the provider's full fixtures/goals/cards breakdown as an
// opaque blob.
type TeamStatistics struct {
	LeagueID    int64
	Season      int
	TeamID      int64
	Form        string
	ProfileJSON []byte
	UpdatedAt   time.Time
}
