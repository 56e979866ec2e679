package coverage

import "context"

type Repository interface {
	// Replace overwrites the row for (league, season, endpoint).
	Replace(ctx context.Context, status Status) error
	// List filters by league and season when they are non-zero.
	List(ctx context.Context, leagueID int64, season int) ([]Status, error)
}
