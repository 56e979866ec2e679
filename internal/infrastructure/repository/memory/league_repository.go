package memory

import (
	"context"
	"sync"

	"github.com/matchwatch/pipeline/internal/domain/league"
)

type LeagueRepository struct {
	mu    sync.RWMutex
	items map[int64]league.League
}

func NewLeagueRepository() *LeagueRepository {
	return &LeagueRepository{items: make(map[int64]league.League)}
}

func (r *LeagueRepository) Upsert(_ context.Context, l league.League) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l.Type = league.NormalizeType(l.Type)
	r.items[l.ID] = l

	return nil
}

func (r *LeagueRepository) GetByID(_ context.Context, id int64) (league.League, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.items[id]
	if !ok {
		return league.League{}, false, nil
	}

	return l, true, nil
}

func (r *LeagueRepository) ExistingIDs(_ context.Context, ids []int64) (map[int64]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	found := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if _, ok := r.items[id]; ok {
			found[id] = true
		}
	}

	return found, nil
}

func (r *LeagueRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.items)
}
