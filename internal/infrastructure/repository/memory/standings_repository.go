package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/matchwatch/pipeline/internal/domain/standings"
)

type StandingsRepository struct {
	mu sync.RWMutex
	// rows keyed by "league/season"; replaced wholesale per refresh.
	rows map[string][]standings.Standing
}

func NewStandingsRepository() *StandingsRepository {
	return &StandingsRepository{rows: make(map[string][]standings.Standing)}
}

func pairKey(leagueID int64, season int) string {
	return fmt.Sprintf("%d/%d", leagueID, season)
}

func (r *StandingsRepository) ReplaceForLeagueSeason(_ context.Context, leagueID int64, season int, rows []standings.Standing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]standings.Standing, 0, len(rows))
	for _, item := range rows {
		item.LeagueID = leagueID
		item.Season = season
		out = append(out, item)
	}
	r.rows[pairKey(leagueID, season)] = out

	return nil
}

func (r *StandingsRepository) ListByLeagueSeason(_ context.Context, leagueID int64, season int) ([]standings.Standing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.rows[pairKey(leagueID, season)]
	out := make([]standings.Standing, 0, len(rows))
	out = append(out, rows...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Rank < out[j].Rank
	})

	return out, nil
}

func (r *StandingsRepository) CountUpdatedSince(_ context.Context, leagueID int64, season int, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, item := range r.rows[pairKey(leagueID, season)] {
		if !item.UpdatedAt.Before(since) {
			count++
		}
	}

	return count, nil
}

func (r *StandingsRepository) MaxUpdatedAt(_ context.Context, leagueID int64, season int) (time.Time, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var max time.Time
	found := false
	for _, item := range r.rows[pairKey(leagueID, season)] {
		if !found || item.UpdatedAt.After(max) {
			max = item.UpdatedAt
			found = true
		}
	}

	return max, found, nil
}
