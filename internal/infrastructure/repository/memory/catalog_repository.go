package memory

import (
	"context"
	"sync"

	"github.com/matchwatch/pipeline/internal/domain/catalog"
)

type CatalogRepository struct {
	mu        sync.RWMutex
	countries map[string]catalog.Country
	timezones map[string]catalog.Timezone
}

func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{
		countries: make(map[string]catalog.Country),
		timezones: make(map[string]catalog.Timezone),
	}
}

func (r *CatalogRepository) UpsertCountries(_ context.Context, items []catalog.Country) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range items {
		if item.Key() == "" {
			continue
		}
		r.countries[item.Key()] = item
	}

	return nil
}

func (r *CatalogRepository) UpsertTimezones(_ context.Context, zones []catalog.Timezone) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, zone := range zones {
		if zone.Name == "" {
			continue
		}
		r.timezones[zone.Name] = zone
	}

	return nil
}

func (r *CatalogRepository) CountryCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.countries)
}

func (r *CatalogRepository) TimezoneCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.timezones)
}
