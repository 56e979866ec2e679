package team

import "context"

// Repository persists teams and venues.
type Repository interface {
	UpsertTeams(ctx context.Context, teams []Team) error
	UpsertVenues(ctx context.Context, venues []Venue) error
	GetTeamByID(ctx context.Context, id int64) (Team, bool, error)
	// ExistingTeamIDs reports which of the given ids are present, letting
	// the dependency resolver check a whole fixture batch in one query.
	ExistingTeamIDs(ctx context.Context, ids []int64) (map[int64]bool, error)
	ExistingVenueIDs(ctx context.Context, ids []int64) (map[int64]bool, error)
}
