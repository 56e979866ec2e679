package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/matchwatch/pipeline/internal/domain/tracking"
)

type TrackingRepository struct {
	mu         sync.RWMutex
	backfill   map[string]tracking.BackfillProgress
	bootstraps map[string]tracking.TeamBootstrapProgress
	standings  map[string]tracking.StandingsRefreshProgress
}

func NewTrackingRepository() *TrackingRepository {
	return &TrackingRepository{
		backfill:   make(map[string]tracking.BackfillProgress),
		bootstraps: make(map[string]tracking.TeamBootstrapProgress),
		standings:  make(map[string]tracking.StandingsRefreshProgress),
	}
}

func backfillKey(jobID string, leagueID int64, season int) string {
	return fmt.Sprintf("%s/%d/%d", jobID, leagueID, season)
}

func (r *TrackingRepository) GetBackfill(_ context.Context, jobID string, leagueID int64, season int) (tracking.BackfillProgress, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	progress, ok := r.backfill[backfillKey(jobID, leagueID, season)]
	if !ok {
		return tracking.BackfillProgress{}, false, nil
	}

	return progress, true, nil
}

func (r *TrackingRepository) ListIncompleteBackfill(_ context.Context, jobID string, limit int) ([]tracking.BackfillProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []tracking.BackfillProgress
	for _, progress := range r.backfill {
		if progress.JobID != jobID || progress.Completed {
			continue
		}
		out = append(out, progress)
	}

	sortBackfill(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (r *TrackingRepository) ListBackfill(_ context.Context, jobID string) ([]tracking.BackfillProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []tracking.BackfillProgress
	for _, progress := range r.backfill {
		if progress.JobID != jobID {
			continue
		}
		out = append(out, progress)
	}

	sortBackfill(out)

	return out, nil
}

func (r *TrackingRepository) UpsertBackfill(_ context.Context, progress tracking.BackfillProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.backfill[backfillKey(progress.JobID, progress.LeagueID, progress.Season)] = progress

	return nil
}

func (r *TrackingRepository) GetTeamBootstrap(_ context.Context, leagueID int64, season int) (tracking.TeamBootstrapProgress, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	progress, ok := r.bootstraps[pairKey(leagueID, season)]
	if !ok {
		return tracking.TeamBootstrapProgress{}, false, nil
	}

	return progress, true, nil
}

func (r *TrackingRepository) MarkTeamBootstrapCompleted(_ context.Context, leagueID int64, season int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bootstraps[pairKey(leagueID, season)] = tracking.TeamBootstrapProgress{
		LeagueID:    leagueID,
		Season:      season,
		Completed:   true,
		CompletedAt: &at,
	}

	return nil
}

func (r *TrackingRepository) GetStandingsRefresh(_ context.Context, jobID string) (tracking.StandingsRefreshProgress, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	progress, ok := r.standings[jobID]
	if !ok {
		return tracking.StandingsRefreshProgress{}, false, nil
	}

	return progress, true, nil
}

func (r *TrackingRepository) UpsertStandingsRefresh(_ context.Context, progress tracking.StandingsRefreshProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.standings[progress.JobID] = progress

	return nil
}

func sortBackfill(items []tracking.BackfillProgress) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].LeagueID != items[j].LeagueID {
			return items[i].LeagueID < items[j].LeagueID
		}
		return items[i].Season < items[j].Season
	})
}
