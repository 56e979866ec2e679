package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/matchwatch/pipeline/internal/domain/teamstats"
	qb "github.com/matchwatch/pipeline/internal/platform/querybuilder"
)

type TeamStatsRepository struct {
	db *sqlx.DB
}

func NewTeamStatsRepository(db *sqlx.DB) *TeamStatsRepository {
	return &TeamStatsRepository{db: db}
}

func (r *TeamStatsRepository) Upsert(ctx context.Context, stats teamstats.TeamStatistics) error {
	model := struct {
		LeagueID    int64     `db:"league_id"`
		Season      int       `db:"season"`
		TeamID      int64     `db:"team_id"`
		Form        string    `db:"form"`
		ProfileJSON []byte    `db:"profile_json"`
		UpdatedAt   time.Time `db:"updated_at"`
	}{
		LeagueID:    stats.LeagueID,
		Season:      stats.Season,
		TeamID:      stats.TeamID,
		Form:        stats.Form,
		ProfileJSON: emptyJSONWhenNil(stats.ProfileJSON),
		UpdatedAt:   stats.UpdatedAt.UTC(),
	}

	query, args, err := qb.InsertModel("team_season_statistics", model, `ON CONFLICT (league_id, season, team_id) DO UPDATE SET
    form = EXCLUDED.form,
    profile_json = EXCLUDED.profile_json,
    updated_at = EXCLUDED.updated_at`)
	if err != nil {
		return fmt.Errorf("build upsert team statistics query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert team statistics league=%d season=%d team=%d: %w", stats.LeagueID, stats.Season, stats.TeamID, err)
	}
	return nil
}

func (r *TeamStatsRepository) CountUpdatedSince(ctx context.Context, leagueID int64, season int, since time.Time) (int, error) {
	return countUpdatedSince(ctx, r.db, "team_season_statistics", leagueID, season, since)
}

func (r *TeamStatsRepository) MaxUpdatedAt(ctx context.Context, leagueID int64, season int) (time.Time, bool, error) {
	return maxUpdatedAt(ctx, r.db, "team_season_statistics", leagueID, season)
}
