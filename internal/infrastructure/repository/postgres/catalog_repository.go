package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/matchwatch/pipeline/internal/domain/catalog"
	qb "github.com/matchwatch/pipeline/internal/platform/querybuilder"
)

type CatalogRepository struct {
	db *sqlx.DB
}

func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) UpsertCountries(ctx context.Context, countries []catalog.Country) error {
	if len(countries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx upsert countries: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, item := range countries {
		model := struct {
			Key  string `db:"key"`
			Code string `db:"code"`
			Name string `db:"name"`
			Flag string `db:"flag"`
		}{
			Key:  item.Key(),
			Code: item.Code,
			Name: item.Name,
			Flag: item.Flag,
		}
		query, args, err := qb.InsertModel("countries", model, `ON CONFLICT (key) DO UPDATE SET
    code = EXCLUDED.code,
    name = EXCLUDED.name,
    flag = EXCLUDED.flag`)
		if err != nil {
			return fmt.Errorf("build upsert country query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert country key=%s: %w", item.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert countries tx: %w", err)
	}
	return nil
}

func (r *CatalogRepository) UpsertTimezones(ctx context.Context, zones []catalog.Timezone) error {
	if len(zones) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx upsert timezones: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, item := range zones {
		model := struct {
			Name string `db:"name"`
		}{Name: item.Name}
		query, args, err := qb.InsertModel("timezones", model, `ON CONFLICT (name) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("build upsert timezone query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert timezone name=%s: %w", item.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert timezones tx: %w", err)
	}
	return nil
}
