package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/matchwatch/pipeline/internal/domain/coverage"
)

type CoverageRepository struct {
	mu   sync.RWMutex
	rows map[string]coverage.Status
}

func NewCoverageRepository() *CoverageRepository {
	return &CoverageRepository{rows: make(map[string]coverage.Status)}
}

func coverageKey(leagueID int64, season int, endpoint string) string {
	return fmt.Sprintf("%d/%d/%s", leagueID, season, endpoint)
}

func (r *CoverageRepository) Replace(_ context.Context, status coverage.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rows[coverageKey(status.LeagueID, status.Season, status.Endpoint)] = status

	return nil
}

func (r *CoverageRepository) List(_ context.Context, leagueID int64, season int) ([]coverage.Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []coverage.Status
	for _, item := range r.rows {
		if leagueID != 0 && item.LeagueID != leagueID {
			continue
		}
		if season != 0 && item.Season != season {
			continue
		}
		out = append(out, item)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].LeagueID != out[j].LeagueID {
			return out[i].LeagueID < out[j].LeagueID
		}
		if out[i].Season != out[j].Season {
			return out[i].Season < out[j].Season
		}
		return out[i].Endpoint < out[j].Endpoint
	})

	return out, nil
}

func (r *CoverageRepository) Get(leagueID int64, season int, endpoint string) (coverage.Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, ok := r.rows[coverageKey(leagueID, season, endpoint)]
	return status, ok
}
