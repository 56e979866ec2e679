package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/matchwatch/pipeline/internal/domain/topscorers"
)

type TopScorersRepository struct {
	mu sync.RWMutex
	// rows keyed by "league/season" then player id.
	rows map[string]map[int64]topscorers.TopScorer
}

func NewTopScorersRepository() *TopScorersRepository {
	return &TopScorersRepository{rows: make(map[string]map[int64]topscorers.TopScorer)}
}

func (r *TopScorersRepository) UpsertMany(_ context.Context, rows []topscorers.TopScorer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range rows {
		key := pairKey(item.LeagueID, item.Season)
		byPlayer, ok := r.rows[key]
		if !ok {
			byPlayer = make(map[int64]topscorers.TopScorer)
			r.rows[key] = byPlayer
		}
		byPlayer[item.PlayerID] = item
	}

	return nil
}

func (r *TopScorersRepository) CountUpdatedSince(_ context.Context, leagueID int64, season int, since time.Time) (int, error) {
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

func (r *TopScorersRepository) MaxUpdatedAt(_ context.Context, leagueID int64, season int) (time.Time, bool, error) {
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

func (r *TopScorersRepository) List(leagueID int64, season int) []topscorers.TopScorer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byPlayer := r.rows[pairKey(leagueID, season)]
	out := make([]topscorers.TopScorer, 0, len(byPlayer))
	for _, item := range byPlayer {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })

	return out
}
