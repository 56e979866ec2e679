package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/matchwatch/pipeline/internal/domain/league"
	qb "github.com/matchwatch/pipeline/internal/platform/querybuilder"
)

type LeagueRepository struct {
	db *sqlx.DB
}

func NewLeagueRepository(db *sqlx.DB) *LeagueRepository {
	return &LeagueRepository{db: db}
}

type leagueTableModel struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Type        string    `db:"type"`
	Logo        string    `db:"logo"`
	CountryName string    `db:"country_name"`
	CountryCode string    `db:"country_code"`
	CountryFlag string    `db:"country_flag"`
	SeasonsJSON []byte    `db:"seasons_json"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (m leagueTableModel) toDomain() league.League {
	return league.League{
		ID:          m.ID,
		Name:        m.Name,
		Type:        m.Type,
		Logo:        m.Logo,
		CountryName: m.CountryName,
		CountryCode: m.CountryCode,
		CountryFlag: m.CountryFlag,
		SeasonsJSON: m.SeasonsJSON,
		UpdatedAt:   m.UpdatedAt,
	}
}

func (r *LeagueRepository) Upsert(ctx context.Context, l league.League) error {
	model := leagueTableModel{
		ID:          l.ID,
		Name:        l.Name,
		Type:        league.NormalizeType(l.Type),
		Logo:        l.Logo,
		CountryName: l.CountryName,
		CountryCode: l.CountryCode,
		CountryFlag: l.CountryFlag,
		SeasonsJSON: emptyJSONWhenNil(l.SeasonsJSON),
		UpdatedAt:   l.UpdatedAt.UTC(),
	}

	query, args, err := qb.InsertModel("leagues", model, `ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    type = EXCLUDED.type,
    logo = EXCLUDED.logo,
    country_name = EXCLUDED.country_name,
    country_code = EXCLUDED.country_code,
    country_flag = EXCLUDED.country_flag,
    seasons_json = EXCLUDED.seasons_json,
    updated_at = EXCLUDED.updated_at`)
	if err != nil {
		return fmt.Errorf("build upsert league query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert league id=%d: %w", l.ID, err)
	}
	return nil
}

func (r *LeagueRepository) GetByID(ctx context.Context, id int64) (league.League, bool, error) {
	query, args, err := qb.Select("*").From("leagues").
		Where(qb.Eq("id", id)).
		ToSQL()
	if err != nil {
		return league.League{}, false, fmt.Errorf("build select league query: %w", err)
	}

	var row leagueTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return league.League{}, false, nil
		}
		return league.League{}, false, fmt.Errorf("select league id=%d: %w", id, err)
	}
	return row.toDomain(), true, nil
}

func (r *LeagueRepository) ExistingIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	return existingIDs(ctx, r.db, "leagues", ids)
}

// existingIDs answers "which of these ids already have rows" for any table
// with an int64 primary key named id.
func existingIDs(ctx context.Context, db *sqlx.DB, table string, ids []int64) (map[int64]bool, error) {
	found := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	query, args, err := qb.Select("id").From(table).
		Where(qb.In("id", int64sToAny(ids))).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build existing ids query for %s: %w", table, err)
	}

	var present []int64
	if err := db.SelectContext(ctx, &present, query, args...); err != nil {
		return nil, fmt.Errorf("select existing ids from %s: %w", table, err)
	}
	for _, id := range present {
		found[id] = true
	}
	return found, nil
}
