package tracking

import "time"

// BackfillProgress is the resumable cursor for one (job, league, season)
// task. next_window_index only ever advances; errors park the cursor.
type BackfillProgress struct {
	JobID           string
	LeagueID        int64
	Season          int
	NextWindowIndex int
	Completed       bool
	LastError       string
	LastRunAt       *time.Time
	UpdatedAt       time.Time
}

// TeamBootstrapProgress records that /teams has succeeded at least once for
// a (league, season), so the resolver can skip the bulk fetch.
type TeamBootstrapProgress struct {
	LeagueID    int64
	Season      int
	Completed   bool
	CompletedAt *time.Time
}

// StandingsRefreshProgress paces the rotation across tracked pairs for one
// standings job.
type StandingsRefreshProgress struct {
	JobID          string
	Cursor         int
	TotalPairs     int
	LapCount       int
	LastFullPassAt *time.Time
	UpdatedAt      time.Time
}
