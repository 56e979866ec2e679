package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/matchwatch/pipeline/internal/domain/rawdata"
)

type RawDataRepository struct {
	mu      sync.RWMutex
	records []rawdata.Record
	nextID  int64
}

func NewRawDataRepository() *RawDataRepository {
	return &RawDataRepository{nextID: 1}
}

func (r *RawDataRepository) Append(_ context.Context, rec rawdata.Record) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec.ID = r.nextID
	r.nextID++
	r.records = append(r.records, rec)

	return rec.ID, nil
}

func (r *RawDataRepository) CountRequests(_ context.Context, endpoint string, leagueID int64, season int, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, rec := range r.records {
		if rec.Endpoint != endpoint {
			continue
		}
		if rec.LeagueID == nil || *rec.LeagueID != leagueID {
			continue
		}
		if rec.Season == nil || *rec.Season != season {
			continue
		}
		if rec.FetchedAt.Before(since) {
			continue
		}
		count++
	}

	return count, nil
}

func (r *RawDataRepository) ListRecentErrors(_ context.Context, limit int) ([]rawdata.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []rawdata.Record
	for _, rec := range r.records {
		if rec.Outcome == rawdata.OutcomeOK {
			continue
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].FetchedAt.Equal(out[j].FetchedAt) {
			return out[i].FetchedAt.After(out[j].FetchedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// Records returns a copy of the archive in append order.
func (r *RawDataRepository) Records() []rawdata.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]rawdata.Record, 0, len(r.records))
	out = append(out, r.records...)

	return out
}
