package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/matchwatch/pipeline/internal/domain/coverage"
)

type coverageDTO struct {
	LeagueID          int64           `json:"league_id"`
	Season            int             `json:"season"`
	Endpoint          string          `json:"endpoint"`
	CountCoverage     *float64        `json:"count_coverage"`
	FreshnessCoverage float64         `json:"freshness_coverage"`
	PipelineCoverage  float64         `json:"pipeline_coverage"`
	Overall           float64         `json:"overall"`
	LagMinutes        *float64        `json:"lag_minutes"`
	ActualCount       int             `json:"actual_count"`
	ExpectedCount     *int            `json:"expected_count"`
	Flags             json.RawMessage `json:"flags,omitempty"`
	ComputedAt        time.Time       `json:"computed_at"`
}

type coverageQuery struct {
	League int64 `validate:"gte=0"`
	Season int64 `validate:"gte=0"`
}

// ListCoverage returns stored coverage rows, optionally filtered by
// ?league= and ?season=.
func (h *Handler) ListCoverage(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListCoverage")
	defer span.End()

	var query coverageQuery
	if err := h.bindQuery(r.URL.Query(), &query, map[string]*int64{
		"league": &query.League,
		"season": &query.Season,
	}); err != nil {
		writeError(ctx, w, err)
		return
	}

	rows, err := h.coverageRepo.List(ctx, query.League, int(query.Season))
	if err != nil {
		h.logger.ErrorContext(ctx, "list coverage failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	out := make([]coverageDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, coverageDTOFrom(row))
	}
	writeSuccess(ctx, w, http.StatusOK, out)
}

func coverageDTOFrom(row coverage.Status) coverageDTO {
	return coverageDTO{
		LeagueID:          row.LeagueID,
		Season:            row.Season,
		Endpoint:          row.Endpoint,
		CountCoverage:     row.CountCoverage,
		FreshnessCoverage: row.FreshnessCoverage,
		PipelineCoverage:  row.PipelineCoverage,
		Overall:           row.Overall,
		LagMinutes:        row.LagMinutes,
		ActualCount:       row.ActualCount,
		ExpectedCount:     row.ExpectedCount,
		Flags:             json.RawMessage(row.FlagsJSON),
		ComputedAt:        row.ComputedAt,
	}
}
