package teamstats

import (
	"context"
	"time"
)

type Repository interface {
	Upsert(ctx context.Context, stats TeamStatistics) error
	CountUpdatedSince(ctx context.Context, leagueID int64, season int, since time.Time) (int, error)
	MaxUpdatedAt(ctx context.Context, leagueID int64, season int) (time.Time, bool, error)
}
