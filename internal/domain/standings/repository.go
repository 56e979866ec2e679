package standings

import (
	"context"
	"time"
)

type Repository interface {
	// ReplaceForLeagueSeason deletes and reinserts the pair's rows in one
	// transaction.
	ReplaceForLeagueSeason(ctx context.Context, leagueID int64, season int, rows []Standing) error
	ListByLeagueSeason(ctx context.Context, leagueID int64, season int) ([]Standing, error)
	CountUpdatedSince(ctx context.Context, leagueID int64, season int, since time.Time) (int, error)
	MaxUpdatedAt(ctx context.Context, leagueID int64, season int) (time.Time, bool, error)
}
