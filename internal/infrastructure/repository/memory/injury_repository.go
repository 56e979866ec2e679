package memory

import (
	"context"
	"sync"
	"time"

	"github.com/matchwatch/pipeline/internal/domain/injury"
)

type InjuryRepository struct {
	mu sync.RWMutex
	// items keyed by "league/season" then injury key.
	items map[string]map[string]injury.Injury
}

func NewInjuryRepository() *InjuryRepository {
	return &InjuryRepository{items: make(map[string]map[string]injury.Injury)}
}

func (r *InjuryRepository) UpsertMany(_ context.Context, injuries []injury.Injury) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range injuries {
		key := pairKey(item.LeagueID, item.Season)
		byKey, ok := r.items[key]
		if !ok {
			byKey = make(map[string]injury.Injury)
			r.items[key] = byKey
		}
		byKey[item.InjuryKey] = item
	}

	return nil
}

func (r *InjuryRepository) CountUpdatedSince(_ context.Context, leagueID int64, season int, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, item := range r.items[pairKey(leagueID, season)] {
		if !item.UpdatedAt.Before(since) {
			count++
		}
	}

	return count, nil
}

func (r *InjuryRepository) MaxUpdatedAt(_ context.Context, leagueID int64, season int) (time.Time, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var max time.Time
	found := false
	for _, item := range r.items[pairKey(leagueID, season)] {
		if !found || item.UpdatedAt.After(max) {
			max = item.UpdatedAt
			found = true
		}
	}

	return max, found, nil
}

func (r *InjuryRepository) Count(leagueID int64, season int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.items[pairKey(leagueID, season)])
}
