package memory

import (
	"context"
	"sync"

	"github.com/matchwatch/pipeline/internal/domain/team"
)

type TeamRepository struct {
	mu     sync.RWMutex
	teams  map[int64]team.Team
	venues map[int64]team.Venue
}

func NewTeamRepository() *TeamRepository {
	return &TeamRepository{
		teams:  make(map[int64]team.Team),
		venues: make(map[int64]team.Venue),
	}
}

func (r *TeamRepository) UpsertTeams(_ context.Context, items []team.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range items {
		if item.ID == 0 {
			continue
		}
		r.teams[item.ID] = item
	}

	return nil
}

func (r *TeamRepository) UpsertVenues(_ context.Context, items []team.Venue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range items {
		if item.ID == 0 {
			continue
		}
		r.venues[item.ID] = item
	}

	return nil
}

func (r *TeamRepository) GetTeamByID(_ context.Context, id int64) (team.Team, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.teams[id]
	if !ok {
		return team.Team{}, false, nil
	}

	return t, true, nil
}

func (r *TeamRepository) ExistingTeamIDs(_ context.Context, ids []int64) (map[int64]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	found := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if _, ok := r.teams[id]; ok {
			found[id] = true
		}
	}

	return found, nil
}

func (r *TeamRepository) ExistingVenueIDs(_ context.Context, ids []int64) (map[int64]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	found := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if _, ok := r.venues[id]; ok {
			found[id] = true
		}
	}

	return found, nil
}

func (r *TeamRepository) TeamCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.teams)
}

func (r *TeamRepository) VenueCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.venues)
}
