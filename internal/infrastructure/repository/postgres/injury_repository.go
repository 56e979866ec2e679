package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/matchwatch/pipeline/internal/domain/injury"
	qb "github.com/matchwatch/pipeline/internal/platform/querybuilder"
)

type InjuryRepository struct {
	db *sqlx.DB
}

func NewInjuryRepository(db *sqlx.DB) *InjuryRepository {
	return &InjuryRepository{db: db}
}

type injuryTableModel struct {
	LeagueID   int64         `db:"league_id"`
	Season     int           `db:"season"`
	InjuryKey  string        `db:"injury_key"`
	FixtureID  sql.NullInt64 `db:"fixture_id"`
	TeamID     int64         `db:"team_id"`
	PlayerID   int64         `db:"player_id"`
	PlayerName string        `db:"player_name"`
	Type       string        `db:"type"`
	Reason     string        `db:"reason"`
	Date       time.Time     `db:"date"`
	UpdatedAt  time.Time     `db:"updated_at"`
}

func (r *InjuryRepository) UpsertMany(ctx context.Context, injuries []injury.Injury) error {
	if len(injuries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx upsert injuries: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, item := range injuries {
		model := injuryTableModel{
			LeagueID:   item.LeagueID,
			Season:     item.Season,
			InjuryKey:  item.InjuryKey,
			FixtureID:  nullableInt64(item.FixtureID),
			TeamID:     item.TeamID,
			PlayerID:   item.PlayerID,
			PlayerName: item.PlayerName,
			Type:       item.Type,
			Reason:     item.Reason,
			Date:       item.Date.UTC(),
			UpdatedAt:  item.UpdatedAt.UTC(),
		}
		query, args, err := qb.InsertModel("injuries", model, `ON CONFLICT (league_id, season, injury_key) DO UPDATE SET
    fixture_id = EXCLUDED.fixture_id,
    team_id = EXCLUDED.team_id,
    player_id = EXCLUDED.player_id,
    player_name = EXCLUDED.player_name,
    type = EXCLUDED.type,
    reason = EXCLUDED.reason,
    date = EXCLUDED.date,
    updated_at = EXCLUDED.updated_at`)
		if err != nil {
			return fmt.Errorf("build upsert injury query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert injury key=%s: %w", item.InjuryKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert injuries tx: %w", err)
	}
	return nil
}

func (r *InjuryRepository) CountUpdatedSince(ctx context.Context, leagueID int64, season int, since time.Time) (int, error) {
	return countUpdatedSince(ctx, r.db, "injuries", leagueID, season, since)
}

func (r *InjuryRepository) MaxUpdatedAt(ctx context.Context, leagueID int64, season int) (time.Time, bool, error) {
	return maxUpdatedAt(ctx, r.db, "injuries", leagueID, season)
}
