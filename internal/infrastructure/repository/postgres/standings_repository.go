package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/matchwatch/pipeline/internal/domain/standings"
	qb "github.com/matchwatch/pipeline/internal/platform/querybuilder"
)

type StandingsRepository struct {
	db *sqlx.DB
}

func NewStandingsRepository(db *sqlx.DB) *StandingsRepository {
	return &StandingsRepository{db: db}
}

type standingTableModel struct {
	LeagueID    int64     `db:"league_id"`
	Season      int       `db:"season"`
	TeamID      int64     `db:"team_id"`
	Rank        int       `db:"rank"`
	Points      int       `db:"points"`
	GoalsDiff   int       `db:"goals_diff"`
	Group       string    `db:"group_name"`
	Form        string    `db:"form"`
	Status      string    `db:"status"`
	Description string    `db:"description"`
	AllJSON     []byte    `db:"all_json"`
	HomeJSON    []byte    `db:"home_json"`
	AwayJSON    []byte    `db:"away_json"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (m standingTableModel) toDomain() standings.Standing {
	return standings.Standing{
		LeagueID:    m.LeagueID,
		Season:      m.Season,
		TeamID:      m.TeamID,
		Rank:        m.Rank,
		Points:      m.Points,
		GoalsDiff:   m.GoalsDiff,
		Group:       m.Group,
		Form:        m.Form,
		Status:      m.Status,
		Description: m.Description,
		AllJSON:     m.AllJSON,
		HomeJSON:    m.HomeJSON,
		AwayJSON:    m.AwayJSON,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ReplaceForLeagueSeason swaps a pair's table wholesale. Delete and inserts
// share one transaction so a reader never observes a half-replaced table.
func (r *StandingsRepository) ReplaceForLeagueSeason(ctx context.Context, leagueID int64, season int, rows []standings.Standing) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx replace standings: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	deleteQuery, deleteArgs, err := qb.DeleteFrom("standings").
		Where(
			qb.Eq("league_id", leagueID),
			qb.Eq("season", season),
		).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build delete standings query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, deleteQuery, deleteArgs...); err != nil {
		return fmt.Errorf("delete standings league=%d season=%d: %w", leagueID, season, err)
	}

	for _, item := range rows {
		model := standingTableModel{
			LeagueID:    leagueID,
			Season:      season,
			TeamID:      item.TeamID,
			Rank:        item.Rank,
			Points:      item.Points,
			GoalsDiff:   item.GoalsDiff,
			Group:       item.Group,
			Form:        item.Form,
			Status:      item.Status,
			Description: item.Description,
			AllJSON:     emptyJSONWhenNil(item.AllJSON),
			HomeJSON:    emptyJSONWhenNil(item.HomeJSON),
			AwayJSON:    emptyJSONWhenNil(item.AwayJSON),
			UpdatedAt:   item.UpdatedAt.UTC(),
		}
		query, args, err := qb.InsertModel("standings", model, "")
		if err != nil {
			return fmt.Errorf("build insert standing query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert standing league=%d season=%d team=%d: %w", leagueID, season, item.TeamID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace standings tx: %w", err)
	}
	return nil
}

func (r *StandingsRepository) ListByLeagueSeason(ctx context.Context, leagueID int64, season int) ([]standings.Standing, error) {
	query, args, err := qb.Select("*").From("standings").
		Where(
			qb.Eq("league_id", leagueID),
			qb.Eq("season", season),
		).
		OrderBy("group_name", "rank").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select standings query: %w", err)
	}

	var rows []standingTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select standings league=%d season=%d: %w", leagueID, season, err)
	}

	out := make([]standings.Standing, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *StandingsRepository) CountUpdatedSince(ctx context.Context, leagueID int64, season int, since time.Time) (int, error) {
	return countUpdatedSince(ctx, r.db, "standings", leagueID, season, since)
}

func (r *StandingsRepository) MaxUpdatedAt(ctx context.Context, leagueID int64, season int) (time.Time, bool, error) {
	return maxUpdatedAt(ctx, r.db, "standings", leagueID, season)
}
