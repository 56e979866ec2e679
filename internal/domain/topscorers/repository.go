package topscorers

import (
	"context"
	"time"
)

type Repository interface {
	UpsertMany(ctx context.Context, rows []TopScorer) error
	CountUpdatedSince(ctx context.Context, leagueID int64, season int, since time.Time) (int, error)
	MaxUpdatedAt(ctx context.Context, leagueID int64, season int) (time.Time, bool, error)
}
