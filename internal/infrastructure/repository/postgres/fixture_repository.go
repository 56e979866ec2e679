package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/matchwatch/pipeline/internal/domain/fixture"
	qb "github.com/matchwatch/pipeline/internal/platform/querybuilder"
)

type FixtureRepository struct {
	db *sqlx.DB
}

func NewFixtureRepository(db *sqlx.DB) *FixtureRepository {
	return &FixtureRepository{db: db}
}

// fixtureUpsertSuffix encodes the status guard: a stored terminal status is
// never replaced by an incoming NS/TBD, and the goal/score columns of that
// stale envelope are ignored with it. A genuine terminal envelope clears a
// pending verification flag.
var fixtureUpsertSuffix = fmt.Sprintf(`ON CONFLICT (id) DO UPDATE SET
    league_id = EXCLUDED.league_id,
    season = EXCLUDED.season,
    kickoff_at = EXCLUDED.kickoff_at,
    venue_id = EXCLUDED.venue_id,
    referee = EXCLUDED.referee,
    round = EXCLUDED.round,
    home_team_id = EXCLUDED.home_team_id,
    away_team_id = EXCLUDED.away_team_id,
    status_short = CASE WHEN %[1]s THEN fixtures.status_short ELSE EXCLUDED.status_short END,
    status_long = CASE WHEN %[1]s THEN fixtures.status_long ELSE EXCLUDED.status_long END,
    elapsed = CASE WHEN %[1]s THEN fixtures.elapsed ELSE EXCLUDED.elapsed END,
    goals_home = CASE WHEN %[1]s THEN fixtures.goals_home ELSE EXCLUDED.goals_home END,
    goals_away = CASE WHEN %[1]s THEN fixtures.goals_away ELSE EXCLUDED.goals_away END,
    score_json = CASE WHEN %[1]s THEN fixtures.score_json ELSE EXCLUDED.score_json END,
    needs_score_verification = CASE WHEN %[2]s THEN FALSE ELSE fixtures.needs_score_verification END,
    verification_state = CASE WHEN %[2]s THEN '%[3]s' ELSE fixtures.verification_state END,
    updated_at = EXCLUDED.updated_at`,
	fmt.Sprintf("fixtures.status_short IN (%s) AND EXCLUDED.status_short IN (%s)",
		sqlStringList(fixture.TerminalStatuses()), sqlStringList(fixture.SchedulableStatuses())),
	fmt.Sprintf("fixtures.needs_score_verification AND EXCLUDED.status_short IN (%s)",
		sqlStringList(fixture.TerminalStatuses())),
	fixture.VerificationVerified,
)

func (r *FixtureRepository) Upsert(ctx context.Context, f fixture.Fixture) error {
	query, args, err := qb.InsertModel("fixtures", fixtureModelFromDomain(f), fixtureUpsertSuffix)
	if err != nil {
		return fmt.Errorf("build upsert fixture query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert fixture id=%d: %w", f.ID, err)
	}
	return nil
}

func (r *FixtureRepository) GetByID(ctx context.Context, id int64) (fixture.Fixture, bool, error) {
	query, args, err := qb.Select("*").From("fixtures").
		Where(qb.Eq("id", id)).
		ToSQL()
	if err != nil {
		return fixture.Fixture{}, false, fmt.Errorf("build select fixture query: %w", err)
	}

	var row fixtureTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return fixture.Fixture{}, false, nil
		}
		return fixture.Fixture{}, false, fmt.Errorf("select fixture id=%d: %w", id, err)
	}
	return row.toDomain(), true, nil
}

func (r *FixtureRepository) UpsertEvents(ctx context.Context, events []fixture.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx upsert events: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, item := range events {
		model := fixtureEventModel{
			FixtureID: item.FixtureID,
			EventKey:  item.EventKey,
			Minute:    item.Minute,
			Extra:     nullableInt(item.Extra),
			TeamID:    item.TeamID,
			PlayerID:  nullableInt64(item.PlayerID),
			AssistID:  nullableInt64(item.AssistID),
			Type:      item.Type,
			Detail:    item.Detail,
			Comments:  item.Comments,
			UpdatedAt: item.UpdatedAt.UTC(),
		}
		query, args, err := qb.InsertModel("fixture_events", model, `ON CONFLICT (fixture_id, event_key) DO UPDATE SET
    minute = EXCLUDED.minute,
    extra = EXCLUDED.extra,
    team_id = EXCLUDED.team_id,
    player_id = EXCLUDED.player_id,
    assist_id = EXCLUDED.assist_id,
    type = EXCLUDED.type,
    detail = EXCLUDED.detail,
    comments = EXCLUDED.comments,
    updated_at = EXCLUDED.updated_at`)
		if err != nil {
			return fmt.Errorf("build upsert event query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert event fixture=%d key=%s: %w", item.FixtureID, item.EventKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert events tx: %w", err)
	}
	return nil
}

func (r *FixtureRepository) UpsertStatistics(ctx context.Context, stats []fixture.Statistics) error {
	if len(stats) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx upsert fixture statistics: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, item := range stats {
		model := fixtureStatisticsModel{
			FixtureID: item.FixtureID,
			TeamID:    item.TeamID,
			StatsJSON: emptyJSONWhenNil(item.StatsJSON),
			UpdatedAt: item.UpdatedAt.UTC(),
		}
		query, args, err := qb.InsertModel("fixture_statistics", model, `ON CONFLICT (fixture_id, team_id) DO UPDATE SET
    stats_json = EXCLUDED.stats_json,
    updated_at = EXCLUDED.updated_at`)
		if err != nil {
			return fmt.Errorf("build upsert fixture statistics query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert fixture statistics fixture=%d team=%d: %w", item.FixtureID, item.TeamID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert fixture statistics tx: %w", err)
	}
	return nil
}

func (r *FixtureRepository) UpsertLineups(ctx context.Context, lineups []fixture.Lineup) error {
	if len(lineups) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx upsert lineups: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, item := range lineups {
		model := fixtureLineupModel{
			FixtureID:       item.FixtureID,
			TeamID:          item.TeamID,
			Formation:       item.Formation,
			CoachID:         nullableInt64(item.CoachID),
			CoachName:       item.CoachName,
			StartXIJSON:     emptyJSONWhenNil(item.StartXIJSON),
			SubstitutesJSON: emptyJSONWhenNil(item.SubstitutesJSON),
			ColorsJSON:      emptyJSONWhenNil(item.ColorsJSON),
			UpdatedAt:       item.UpdatedAt.UTC(),
		}
		query, args, err := qb.InsertModel("fixture_lineups", model, `ON CONFLICT (fixture_id, team_id) DO UPDATE SET
    formation = EXCLUDED.formation,
    coach_id = EXCLUDED.coach_id,
    coach_name = EXCLUDED.coach_name,
    start_xi_json = EXCLUDED.start_xi_json,
    substitutes_json = EXCLUDED.substitutes_json,
    colors_json = EXCLUDED.colors_json,
    updated_at = EXCLUDED.updated_at`)
		if err != nil {
			return fmt.Errorf("build upsert lineup query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert lineup fixture=%d team=%d: %w", item.FixtureID, item.TeamID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert lineups tx: %w", err)
	}
	return nil
}

func (r *FixtureRepository) UpsertPlayerEntries(ctx context.Context, entries []fixture.PlayerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx upsert fixture players: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, item := range entries {
		model := fixturePlayerModel{
			FixtureID: item.FixtureID,
			TeamID:    item.TeamID,
			PlayerID:  item.PlayerID,
			StatsJSON: emptyJSONWhenNil(item.StatsJSON),
			UpdatedAt: item.UpdatedAt.UTC(),
		}
		query, args, err := qb.InsertModel("fixture_players", model, `ON CONFLICT (fixture_id, player_id) DO UPDATE SET
    team_id = EXCLUDED.team_id,
    stats_json = EXCLUDED.stats_json,
    updated_at = EXCLUDED.updated_at`)
		if err != nil {
			return fmt.Errorf("build upsert fixture player query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert fixture player fixture=%d player=%d: %w", item.FixtureID, item.PlayerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert fixture players tx: %w", err)
	}
	return nil
}

func (r *FixtureRepository) ListAutoFinishCandidates(ctx context.Context, statuses []string, kickoffBefore, updatedBefore time.Time, leagueIDs []int64, limit int) ([]fixture.Fixture, error) {
	conditions := []qb.Condition{
		qb.In("status_short", stringsToAny(statuses)),
		qb.Expr("kickoff_at < ?", kickoffBefore.UTC()),
		qb.Expr("updated_at < ?", updatedBefore.UTC()),
	}
	if len(leagueIDs) > 0 {
		conditions = append(conditions, qb.In("league_id", int64sToAny(leagueIDs)))
	}

	query, args, err := qb.Select("*").From("fixtures").
		Where(conditions...).
		OrderBy("kickoff_at", "id").
		Limit(limit).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select auto-finish candidates query: %w", err)
	}

	var rows []fixtureTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select auto-finish candidates: %w", err)
	}
	return fixtureModelsToDomain(rows), nil
}

func (r *FixtureRepository) ListStaleLive(ctx context.Context, updatedBefore time.Time, leagueIDs []int64, limit int) ([]fixture.Fixture, error) {
	conditions := []qb.Condition{
		qb.In("status_short", stringsToAny(fixture.LiveStatuses())),
		qb.Expr("updated_at < ?", updatedBefore.UTC()),
	}
	if len(leagueIDs) > 0 {
		conditions = append(conditions, qb.In("league_id", int64sToAny(leagueIDs)))
	}

	query, args, err := qb.Select("*").From("fixtures").
		Where(conditions...).
		OrderBy("updated_at", "id").
		Limit(limit).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select stale live query: %w", err)
	}

	var rows []fixtureTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select stale live fixtures: %w", err)
	}
	return fixtureModelsToDomain(rows), nil
}

func (r *FixtureRepository) ListNeedingVerification(ctx context.Context, attemptBefore time.Time, maxAttempts, limit int) ([]fixture.Fixture, error) {
	query, args, err := qb.Select("*").From("fixtures").
		Where(
			qb.Expr("needs_score_verification = TRUE"),
			qb.In("verification_state", stringsToAny([]string{fixture.VerificationPending, fixture.VerificationBlocked})),
			qb.Expr("verification_attempt_count < ?", maxAttempts),
			qb.Expr("(verification_last_attempt_at IS NULL OR verification_last_attempt_at < ?)", attemptBefore.UTC()),
		).
		OrderBy("kickoff_at", "id").
		Limit(limit).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select verification queue query: %w", err)
	}

	var rows []fixtureTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select fixtures needing verification: %w", err)
	}
	return fixtureModelsToDomain(rows), nil
}

// ForceFinish flips the given fixtures to FT and flags them for score
// verification. Rows a live envelope already finished are skipped by the
// status guard, so a racing ingest run cannot be undone here.
func (r *FixtureRepository) ForceFinish(ctx context.Context, ids []int64, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := qb.Update("fixtures").
		Set("status_short", fixture.StatusFullTime).
		Set("status_long", "Match Finished").
		Set("needs_score_verification", true).
		Set("verification_state", fixture.VerificationPending).
		Set("updated_at", at.UTC()).
		Where(
			qb.In("id", int64sToAny(ids)),
			qb.Expr(fmt.Sprintf("status_short NOT IN (%s)", sqlStringList(fixture.TerminalStatuses()))),
		).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build force finish query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("force finish fixtures: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count force finished fixtures: %w", err)
	}
	return int(affected), nil
}

func (r *FixtureRepository) SetVerification(ctx context.Context, id int64, state string, needsVerification bool, attemptAt time.Time) error {
	current, found, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("fixture id=%d not found", id)
	}
	if !fixture.CanTransitionVerification(current.VerificationState, state) {
		return fmt.Errorf("verification transition %s -> %s not allowed for fixture id=%d", current.VerificationState, state, id)
	}

	query, args, err := qb.Update("fixtures").
		Set("verification_state", state).
		Set("needs_score_verification", needsVerification).
		SetExpr("verification_attempt_count", "verification_attempt_count + 1").
		Set("verification_last_attempt_at", attemptAt.UTC()).
		Set("updated_at", attemptAt.UTC()).
		Where(qb.Eq("id", id)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build set verification query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set verification fixture id=%d: %w", id, err)
	}
	return nil
}

func (r *FixtureRepository) ListInWindow(ctx context.Context, leagueID int64, season int, from, to time.Time, limit int) ([]fixture.Fixture, error) {
	builder := qb.Select("*").From("fixtures").
		Where(
			qb.Eq("league_id", leagueID),
			qb.Eq("season", season),
			qb.Expr("kickoff_at >= ?", from.UTC()),
			qb.Expr("kickoff_at < ?", to.UTC()),
		).
		OrderBy("kickoff_at", "id")
	if limit > 0 {
		builder = builder.Limit(limit)
	}
	query, args, err := builder.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list fixtures in window query: %w", err)
	}

	var models []fixtureTableModel
	if err := r.db.SelectContext(ctx, &models, query, args...); err != nil {
		return nil, fmt.Errorf("list fixtures in window: %w", err)
	}
	return fixtureModelsToDomain(models), nil
}

func (r *FixtureRepository) CountInWindow(ctx context.Context, leagueID int64, season int, from, to time.Time) (int, error) {
	query, args, err := qb.Select("COUNT(*)").From("fixtures").
		Where(
			qb.Eq("league_id", leagueID),
			qb.Eq("season", season),
			qb.Expr("kickoff_at >= ?", from.UTC()),
			qb.Expr("kickoff_at < ?", to.UTC()),
		).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count fixtures in window query: %w", err)
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count fixtures in window: %w", err)
	}
	return count, nil
}

func (r *FixtureRepository) CountUpdatedSince(ctx context.Context, leagueID int64, season int, since time.Time) (int, error) {
	return countUpdatedSince(ctx, r.db, "fixtures", leagueID, season, since)
}

func (r *FixtureRepository) MaxUpdatedAt(ctx context.Context, leagueID int64, season int) (time.Time, bool, error) {
	return maxUpdatedAt(ctx, r.db, "fixtures", leagueID, season)
}

func fixtureModelsToDomain(rows []fixtureTableModel) []fixture.Fixture {
	out := make([]fixture.Fixture, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}

func sqlStringList(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, "'"+strings.ReplaceAll(v, "'", "''")+"'")
	}
	return strings.Join(quoted, ", ")
}
