package catalog

import "context"

// Repository persists static bootstrap lookups.
type Repository interface {
	UpsertCountries(ctx context.Context, countries []Country) error
	UpsertTimezones(ctx context.Context, zones []Timezone) error
}
