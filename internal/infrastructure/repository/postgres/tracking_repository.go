package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/matchwatch/pipeline/internal/domain/tracking"
	qb "github.com/matchwatch/pipeline/internal/platform/querybuilder"
)

type TrackingRepository struct {
	db *sqlx.DB
}

func NewTrackingRepository(db *sqlx.DB) *TrackingRepository {
	return &TrackingRepository{db: db}
}

type backfillProgressModel struct {
	JobID           string       `db:"job_id"`
	LeagueID        int64        `db:"league_id"`
	Season          int          `db:"season"`
	NextWindowIndex int          `db:"next_window_index"`
	Completed       bool         `db:"completed"`
	LastError       string       `db:"last_error"`
	LastRunAt       sql.NullTime `db:"last_run_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

func (m backfillProgressModel) toDomain() tracking.BackfillProgress {
	return tracking.BackfillProgress{
		JobID:           m.JobID,
		LeagueID:        m.LeagueID,
		Season:          m.Season,
		NextWindowIndex: m.NextWindowIndex,
		Completed:       m.Completed,
		LastError:       m.LastError,
		LastRunAt:       nullTimePtr(m.LastRunAt),
		UpdatedAt:       m.UpdatedAt,
	}
}

func (r *TrackingRepository) GetBackfill(ctx context.Context, jobID string, leagueID int64, season int) (tracking.BackfillProgress, bool, error) {
	query, args, err := qb.Select("*").From("backfill_progress").
		Where(
			qb.Eq("job_id", jobID),
			qb.Eq("league_id", leagueID),
			qb.Eq("season", season),
		).
		ToSQL()
	if err != nil {
		return tracking.BackfillProgress{}, false, fmt.Errorf("build select backfill progress query: %w", err)
	}

	var row backfillProgressModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return tracking.BackfillProgress{}, false, nil
		}
		return tracking.BackfillProgress{}, false, fmt.Errorf("select backfill progress job=%s league=%d season=%d: %w", jobID, leagueID, season, err)
	}
	return row.toDomain(), true, nil
}

func (r *TrackingRepository) ListIncompleteBackfill(ctx context.Context, jobID string, limit int) ([]tracking.BackfillProgress, error) {
	query, args, err := qb.Select("*").From("backfill_progress").
		Where(
			qb.Eq("job_id", jobID),
			qb.Expr("completed = FALSE"),
		).
		OrderBy("league_id", "season").
		Limit(limit).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list incomplete backfill query: %w", err)
	}

	var rows []backfillProgressModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select incomplete backfill job=%s: %w", jobID, err)
	}
	return backfillModelsToDomain(rows), nil
}

func (r *TrackingRepository) ListBackfill(ctx context.Context, jobID string) ([]tracking.BackfillProgress, error) {
	query, args, err := qb.Select("*").From("backfill_progress").
		Where(qb.Eq("job_id", jobID)).
		OrderBy("league_id", "season").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list backfill query: %w", err)
	}

	var rows []backfillProgressModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select backfill job=%s: %w", jobID, err)
	}
	return backfillModelsToDomain(rows), nil
}

func (r *TrackingRepository) UpsertBackfill(ctx context.Context, progress tracking.BackfillProgress) error {
	model := backfillProgressModel{
		JobID:           progress.JobID,
		LeagueID:        progress.LeagueID,
		Season:          progress.Season,
		NextWindowIndex: progress.NextWindowIndex,
		Completed:       progress.Completed,
		LastError:       progress.LastError,
		LastRunAt:       nullableTime(progress.LastRunAt),
		UpdatedAt:       progress.UpdatedAt.UTC(),
	}

	query, args, err := qb.InsertModel("backfill_progress", model, `ON CONFLICT (job_id, league_id, season) DO UPDATE SET
    next_window_index = EXCLUDED.next_window_index,
    completed = EXCLUDED.completed,
    last_error = EXCLUDED.last_error,
    last_run_at = EXCLUDED.last_run_at,
    updated_at = EXCLUDED.updated_at`)
	if err != nil {
		return fmt.Errorf("build upsert backfill progress query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert backfill progress job=%s league=%d season=%d: %w", progress.JobID, progress.LeagueID, progress.Season, err)
	}
	return nil
}

func (r *TrackingRepository) GetTeamBootstrap(ctx context.Context, leagueID int64, season int) (tracking.TeamBootstrapProgress, bool, error) {
	query, args, err := qb.Select("*").From("team_bootstrap_progress").
		Where(
			qb.Eq("league_id", leagueID),
			qb.Eq("season", season),
		).
		ToSQL()
	if err != nil {
		return tracking.TeamBootstrapProgress{}, false, fmt.Errorf("build select team bootstrap query: %w", err)
	}

	var row struct {
		LeagueID    int64        `db:"league_id"`
		Season      int          `db:"season"`
		Completed   bool         `db:"completed"`
		CompletedAt sql.NullTime `db:"completed_at"`
	}
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return tracking.TeamBootstrapProgress{}, false, nil
		}
		return tracking.TeamBootstrapProgress{}, false, fmt.Errorf("select team bootstrap league=%d season=%d: %w", leagueID, season, err)
	}
	return tracking.TeamBootstrapProgress{
		LeagueID:    row.LeagueID,
		Season:      row.Season,
		Completed:   row.Completed,
		CompletedAt: nullTimePtr(row.CompletedAt),
	}, true, nil
}

func (r *TrackingRepository) MarkTeamBootstrapCompleted(ctx context.Context, leagueID int64, season int, at time.Time) error {
	model := struct {
		LeagueID    int64        `db:"league_id"`
		Season      int          `db:"season"`
		Completed   bool         `db:"completed"`
		CompletedAt sql.NullTime `db:"completed_at"`
	}{
		LeagueID:    leagueID,
		Season:      season,
		Completed:   true,
		CompletedAt: sql.NullTime{Time: at.UTC(), Valid: true},
	}

	query, args, err := qb.InsertModel("team_bootstrap_progress", model, `ON CONFLICT (league_id, season) DO UPDATE SET
    completed = EXCLUDED.completed,
    completed_at = EXCLUDED.completed_at`)
	if err != nil {
		return fmt.Errorf("build mark team bootstrap query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark team bootstrap league=%d season=%d: %w", leagueID, season, err)
	}
	return nil
}

func (r *TrackingRepository) GetStandingsRefresh(ctx context.Context, jobID string) (tracking.StandingsRefreshProgress, bool, error) {
	query, args, err := qb.Select("*").From("standings_refresh_progress").
		Where(qb.Eq("job_id", jobID)).
		ToSQL()
	if err != nil {
		return tracking.StandingsRefreshProgress{}, false, fmt.Errorf("build select standings refresh query: %w", err)
	}

	var row struct {
		JobID          string       `db:"job_id"`
		Cursor         int          `db:"cursor_index"`
		TotalPairs     int          `db:"total_pairs"`
		LapCount       int          `db:"lap_count"`
		LastFullPassAt sql.NullTime `db:"last_full_pass_at"`
		UpdatedAt      time.Time    `db:"updated_at"`
	}
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return tracking.StandingsRefreshProgress{}, false, nil
		}
		return tracking.StandingsRefreshProgress{}, false, fmt.Errorf("select standings refresh job=%s: %w", jobID, err)
	}
	return tracking.StandingsRefreshProgress{
		JobID:          row.JobID,
		Cursor:         row.Cursor,
		TotalPairs:     row.TotalPairs,
		LapCount:       row.LapCount,
		LastFullPassAt: nullTimePtr(row.LastFullPassAt),
		UpdatedAt:      row.UpdatedAt,
	}, true, nil
}

func (r *TrackingRepository) UpsertStandingsRefresh(ctx context.Context, progress tracking.StandingsRefreshProgress) error {
	model := struct {
		JobID          string       `db:"job_id"`
		Cursor         int          `db:"cursor_index"`
		TotalPairs     int          `db:"total_pairs"`
		LapCount       int          `db:"lap_count"`
		LastFullPassAt sql.NullTime `db:"last_full_pass_at"`
		UpdatedAt      time.Time    `db:"updated_at"`
	}{
		JobID:          progress.JobID,
		Cursor:         progress.Cursor,
		TotalPairs:     progress.TotalPairs,
		LapCount:       progress.LapCount,
		LastFullPassAt: nullableTime(progress.LastFullPassAt),
		UpdatedAt:      progress.UpdatedAt.UTC(),
	}

	query, args, err := qb.InsertModel("standings_refresh_progress", model, `ON CONFLICT (job_id) DO UPDATE SET
    cursor_index = EXCLUDED.cursor_index,
    total_pairs = EXCLUDED.total_pairs,
    lap_count = EXCLUDED.lap_count,
    last_full_pass_at = EXCLUDED.last_full_pass_at,
    updated_at = EXCLUDED.updated_at`)
	if err != nil {
		return fmt.Errorf("build upsert standings refresh query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert standings refresh job=%s: %w", progress.JobID, err)
	}
	return nil
}

func backfillModelsToDomain(rows []backfillProgressModel) []tracking.BackfillProgress {
	out := make([]tracking.BackfillProgress, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}
