package topscorers

import "time"

// TopScorer is one leaderboard row for a (league, season), keyed by player.
type TopScorer struct {
	LeagueID   int64
	Season     int
	PlayerID   int64
	Rank       int
	TeamID     int64
	PlayerName string
	Goals      int
	Assists    *int
	Penalties  *int
	// StatsJSON keeps the provider's full per-player statistics entry.
	StatsJSON []byte
	UpdatedAt time.Time
}
