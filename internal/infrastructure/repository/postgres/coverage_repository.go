package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/matchwatch/pipeline/internal/domain/coverage"
	qb "github.com/matchwatch/pipeline/internal/platform/querybuilder"
)

type CoverageRepository struct {
	db *sqlx.DB
}

func NewCoverageRepository(db *sqlx.DB) *CoverageRepository {
	return &CoverageRepository{db: db}
}

type coverageTableModel struct {
	LeagueID          int64           `db:"league_id"`
	Season            int             `db:"season"`
	Endpoint          string          `db:"endpoint"`
	CountCoverage     sql.NullFloat64 `db:"count_coverage"`
	FreshnessCoverage float64         `db:"freshness_coverage"`
	PipelineCoverage  float64         `db:"pipeline_coverage"`
	Overall           float64         `db:"overall"`
	LagMinutes        sql.NullFloat64 `db:"lag_minutes"`
	ActualCount       int             `db:"actual_count"`
	ExpectedCount     sql.NullInt64   `db:"expected_count"`
	FlagsJSON         []byte          `db:"flags_json"`
	ComputedAt        time.Time       `db:"computed_at"`
}

func (m coverageTableModel) toDomain() coverage.Status {
	return coverage.Status{
		LeagueID:          m.LeagueID,
		Season:            m.Season,
		Endpoint:          m.Endpoint,
		CountCoverage:     nullFloatPtr(m.CountCoverage),
		FreshnessCoverage: m.FreshnessCoverage,
		PipelineCoverage:  m.PipelineCoverage,
		Overall:           m.Overall,
		LagMinutes:        nullFloatPtr(m.LagMinutes),
		ActualCount:       m.ActualCount,
		ExpectedCount:     nullIntPtr(m.ExpectedCount),
		FlagsJSON:         m.FlagsJSON,
		ComputedAt:        m.ComputedAt,
	}
}

func (r *CoverageRepository) Replace(ctx context.Context, status coverage.Status) error {
	model := coverageTableModel{
		LeagueID:          status.LeagueID,
		Season:            status.Season,
		Endpoint:          status.Endpoint,
		CountCoverage:     nullableFloat(status.CountCoverage),
		FreshnessCoverage: status.FreshnessCoverage,
		PipelineCoverage:  status.PipelineCoverage,
		Overall:           status.Overall,
		LagMinutes:        nullableFloat(status.LagMinutes),
		ActualCount:       status.ActualCount,
		ExpectedCount:     nullableInt(status.ExpectedCount),
		FlagsJSON:         emptyJSONWhenNil(status.FlagsJSON),
		ComputedAt:        status.ComputedAt.UTC(),
	}

	query, args, err := qb.InsertModel("coverage_status", model, `ON CONFLICT (league_id, season, endpoint) DO UPDATE SET
    count_coverage = EXCLUDED.count_coverage,
    freshness_coverage = EXCLUDED.freshness_coverage,
    pipeline_coverage = EXCLUDED.pipeline_coverage,
    overall = EXCLUDED.overall,
    lag_minutes = EXCLUDED.lag_minutes,
    actual_count = EXCLUDED.actual_count,
    expected_count = EXCLUDED.expected_count,
    flags_json = EXCLUDED.flags_json,
    computed_at = EXCLUDED.computed_at`)
	if err != nil {
		return fmt.Errorf("build replace coverage query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("replace coverage league=%d season=%d endpoint=%s: %w", status.LeagueID, status.Season, status.Endpoint, err)
	}
	return nil
}

func (r *CoverageRepository) List(ctx context.Context, leagueID int64, season int) ([]coverage.Status, error) {
	var conditions []qb.Condition
	if leagueID != 0 {
		conditions = append(conditions, qb.Eq("league_id", leagueID))
	}
	if season != 0 {
		conditions = append(conditions, qb.Eq("season", season))
	}

	builder := qb.Select("*").From("coverage_status").
		OrderBy("league_id", "season", "endpoint")
	if len(conditions) > 0 {
		builder = builder.Where(conditions...)
	}

	query, args, err := builder.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list coverage query: %w", err)
	}

	var rows []coverageTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select coverage rows: %w", err)
	}

	out := make([]coverage.Status, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
