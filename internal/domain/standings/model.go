package standings

import "time"

// Standing is one table row for a (league, season, team). Rows for a pair
// are replaced wholesale on every refresh, so ranks never go stale.
type Standing struct {
	LeagueID    int64
	Season      int
	TeamID      int64
	Rank        int
	Points      int
	GoalsDiff   int
	Group       string
	Form        string
	Status      string
	Description string
	// AllJSON/HomeJSON/AwayJSON keep the played/win/draw/lose/goals splits
	// as opaque blobs.
	AllJSON   []byte
	HomeJSON  []byte
	AwayJSON  []byte
	UpdatedAt time.Time
}
