package rawdata

import (
	"context"
	"time"
)

type Repository interface {
	// Append archives one call and returns the row id for provenance links.
	Append(ctx context.Context, rec Record) (int64, error)
	// CountRequests counts archived calls for (endpoint, league, season)
	// fetched after the cutoff; the pipeline-coverage denominator.
	CountRequests(ctx context.Context, endpoint string, leagueID int64, season int, since time.Time) (int, error)
	// ListRecentErrors returns the newest archived rows whose outcome is
	// not ok, for the operator error feed.
	ListRecentErrors(ctx context.Context, limit int) ([]Record, error)
}
