package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matchwatch/pipeline/internal/domain/teamstats"
)

type TeamStatsRepository struct {
	mu sync.RWMutex
	// rows keyed by "league/season/team".
	rows map[string]teamstats.TeamStatistics
}

func NewTeamStatsRepository() *TeamStatsRepository {
	return &TeamStatsRepository{rows: make(map[string]teamstats.TeamStatistics)}
}

func tripleKey(leagueID int64, season int, teamID int64) string {
	return fmt.Sprintf("%d/%d/%d", leagueID, season, teamID)
}

func (r *TeamStatsRepository) Upsert(_ context.Context, stats teamstats.TeamStatistics) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rows[tripleKey(stats.LeagueID, stats.Season, stats.TeamID)] = stats

	return nil
}

func (r *TeamStatsRepository) Get(leagueID int64, season int, teamID int64) (teamstats.TeamStatistics, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats, ok := r.rows[tripleKey(leagueID, season, teamID)]
	return stats, ok
}

func (r *TeamStatsRepository) CountUpdatedSince(_ context.Context, leagueID int64, season int, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, item := range r.rows {
		if item.LeagueID != leagueID || item.Season != season {
			continue
		}
		if !item.UpdatedAt.Before(since) {
			count++
		}
	}

	return count, nil
}

func (r *TeamStatsRepository) MaxUpdatedAt(_ context.Context, leagueID int64, season int) (time.Time, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var max time.Time
	found := false
	for _, item := range r.rows {
		if item.LeagueID != leagueID || item.Season != season {
			continue
		}
		if !found || item.UpdatedAt.After(max) {
			max = item.UpdatedAt
			found = true
		}
	}

	return max, found, nil
}
