package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/matchwatch/pipeline/internal/domain/team"
	qb "github.com/matchwatch/pipeline/internal/platform/querybuilder"
)

type TeamRepository struct {
	db *sqlx.DB
}

func NewTeamRepository(db *sqlx.DB) *TeamRepository {
	return &TeamRepository{db: db}
}

type teamTableModel struct {
	ID        int64         `db:"id"`
	Name      string        `db:"name"`
	Code      string        `db:"code"`
	Country   string        `db:"country"`
	Founded   sql.NullInt64 `db:"founded"`
	National  bool          `db:"national"`
	Logo      string        `db:"logo"`
	VenueID   sql.NullInt64 `db:"venue_id"`
	UpdatedAt time.Time     `db:"updated_at"`
}

func (m teamTableModel) toDomain() team.Team {
	return team.Team{
		ID:        m.ID,
		Name:      m.Name,
		Code:      m.Code,
		Country:   m.Country,
		Founded:   nullIntPtr(m.Founded),
		National:  m.National,
		Logo:      m.Logo,
		VenueID:   nullInt64Ptr(m.VenueID),
		UpdatedAt: m.UpdatedAt,
	}
}

type venueTableModel struct {
	ID        int64         `db:"id"`
	Name      string        `db:"name"`
	Address   string        `db:"address"`
	City      string        `db:"city"`
	Country   string        `db:"country"`
	Capacity  sql.NullInt64 `db:"capacity"`
	Surface   string        `db:"surface"`
	Image     string        `db:"image"`
	UpdatedAt time.Time     `db:"updated_at"`
}

func (r *TeamRepository) UpsertTeams(ctx context.Context, teams []team.Team) error {
	if len(teams) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx upsert teams: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, item := range teams {
		model := teamTableModel{
			ID:        item.ID,
			Name:      item.Name,
			Code:      item.Code,
			Country:   item.Country,
			Founded:   nullableInt(item.Founded),
			National:  item.National,
			Logo:      item.Logo,
			VenueID:   nullableInt64(item.VenueID),
			UpdatedAt: item.UpdatedAt.UTC(),
		}
		query, args, err := qb.InsertModel("teams", model, `ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    code = EXCLUDED.code,
    country = EXCLUDED.country,
    founded = EXCLUDED.founded,
    national = EXCLUDED.national,
    logo = EXCLUDED.logo,
    venue_id = EXCLUDED.venue_id,
    updated_at = EXCLUDED.updated_at`)
		if err != nil {
			return fmt.Errorf("build upsert team query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert team id=%d: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert teams tx: %w", err)
	}
	return nil
}

func (r *TeamRepository) UpsertVenues(ctx context.Context, venues []team.Venue) error {
	if len(venues) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx upsert venues: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, item := range venues {
		model := venueTableModel{
			ID:        item.ID,
			Name:      item.Name,
			Address:   item.Address,
			City:      item.City,
			Country:   item.Country,
			Capacity:  nullableInt(item.Capacity),
			Surface:   item.Surface,
			Image:     item.Image,
			UpdatedAt: item.UpdatedAt.UTC(),
		}
		query, args, err := qb.InsertModel("venues", model, `ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    address = EXCLUDED.address,
    city = EXCLUDED.city,
    country = EXCLUDED.country,
    capacity = EXCLUDED.capacity,
    surface = EXCLUDED.surface,
    image = EXCLUDED.image,
    updated_at = EXCLUDED.updated_at`)
		if err != nil {
			return fmt.Errorf("build upsert venue query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert venue id=%d: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert venues tx: %w", err)
	}
	return nil
}

func (r *TeamRepository) GetTeamByID(ctx context.Context, id int64) (team.Team, bool, error) {
	query, args, err := qb.Select("*").From("teams").
		Where(qb.Eq("id", id)).
		ToSQL()
	if err != nil {
		return team.Team{}, false, fmt.Errorf("build select team query: %w", err)
	}

	var row teamTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return team.Team{}, false, nil
		}
		return team.Team{}, false, fmt.Errorf("select team id=%d: %w", id, err)
	}
	return row.toDomain(), true, nil
}

func (r *TeamRepository) ExistingTeamIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	return existingIDs(ctx, r.db, "teams", ids)
}

func (r *TeamRepository) ExistingVenueIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	return existingIDs(ctx, r.db, "venues", ids)
}
