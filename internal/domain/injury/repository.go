package injury

import (
	"context"
	"time"
)

type Repository interface {
	UpsertMany(ctx context.Context, injuries []Injury) error
	CountUpdatedSince(ctx context.Context, leagueID int64, season int, since time.Time) (int, error)
	MaxUpdatedAt(ctx context.Context, leagueID int64, season int) (time.Time, bool, error)
}
