package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/matchwatch/pipeline/internal/domain/topscorers"
	qb "github.com/matchwatch/pipeline/internal/platform/querybuilder"
)

type TopScorersRepository struct {
	db *sqlx.DB
}

func NewTopScorersRepository(db *sqlx.DB) *TopScorersRepository {
	return &TopScorersRepository{db: db}
}

type topScorerTableModel struct {
	LeagueID   int64         `db:"league_id"`
	Season     int           `db:"season"`
	PlayerID   int64         `db:"player_id"`
	Rank       int           `db:"rank"`
	TeamID     int64         `db:"team_id"`
	PlayerName string        `db:"player_name"`
	Goals      int           `db:"goals"`
	Assists    sql.NullInt64 `db:"assists"`
	Penalties  sql.NullInt64 `db:"penalties"`
	StatsJSON  []byte        `db:"stats_json"`
	UpdatedAt  time.Time     `db:"updated_at"`
}

func (r *TopScorersRepository) UpsertMany(ctx context.Context, rows []topscorers.TopScorer) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx upsert top scorers: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, item := range rows {
		model := topScorerTableModel{
			LeagueID:   item.LeagueID,
			Season:     item.Season,
			PlayerID:   item.PlayerID,
			Rank:       item.Rank,
			TeamID:     item.TeamID,
			PlayerName: item.PlayerName,
			Goals:      item.Goals,
			Assists:    nullableInt(item.Assists),
			Penalties:  nullableInt(item.Penalties),
			StatsJSON:  emptyJSONWhenNil(item.StatsJSON),
			UpdatedAt:  item.UpdatedAt.UTC(),
		}
		query, args, err := qb.InsertModel("top_scorers", model, `ON CONFLICT (league_id, season, player_id) DO UPDATE SET
    rank = EXCLUDED.rank,
    team_id = EXCLUDED.team_id,
    player_name = EXCLUDED.player_name,
    goals = EXCLUDED.goals,
    assists = EXCLUDED.assists,
    penalties = EXCLUDED.penalties,
    stats_json = EXCLUDED.stats_json,
    updated_at = EXCLUDED.updated_at`)
		if err != nil {
			return fmt.Errorf("build upsert top scorer query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert top scorer league=%d season=%d player=%d: %w", item.LeagueID, item.Season, item.PlayerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert top scorers tx: %w", err)
	}
	return nil
}

func (r *TopScorersRepository) CountUpdatedSince(ctx context.Context, leagueID int64, season int, since time.Time) (int, error) {
	return countUpdatedSince(ctx, r.db, "top_scorers", leagueID, season, since)
}

func (r *TopScorersRepository) MaxUpdatedAt(ctx context.Context, leagueID int64, season int) (time.Time, bool, error) {
	return maxUpdatedAt(ctx, r.db, "top_scorers", leagueID, season)
}
