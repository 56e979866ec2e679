package league

import "context"

// Repository persists the league catalogue.
type Repository interface {
	Upsert(ctx context.Context, l League) error
	GetByID(ctx context.Context, id int64) (League, bool, error)
	ExistingIDs(ctx context.Context, ids []int64) (map[int64]bool, error)
}
