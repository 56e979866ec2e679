package tracking

import (
	"context"
	"time"
)

type Repository interface {
	GetBackfill(ctx context.Context, jobID string, leagueID int64, season int) (BackfillProgress, bool, error)
	// ListIncompleteBackfill returns not-completed tasks for the job in
	// stable (league, season) order, up to limit.
	ListIncompleteBackfill(ctx context.Context, jobID string, limit int) ([]BackfillProgress, error)
	ListBackfill(ctx context.Context, jobID string) ([]BackfillProgress, error)
	UpsertBackfill(ctx context.Context, progress BackfillProgress) error

	GetTeamBootstrap(ctx context.Context, leagueID int64, season int) (TeamBootstrapProgress, bool, error)
	MarkTeamBootstrapCompleted(ctx context.Context, leagueID int64, season int, at time.Time) error

	GetStandingsRefresh(ctx context.Context, jobID string) (StandingsRefreshProgress, bool, error)
	UpsertStandingsRefresh(ctx context.Context, progress StandingsRefreshProgress) error
}
