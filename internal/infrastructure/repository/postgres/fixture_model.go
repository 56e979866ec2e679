package postgres

import (
	"database/sql"
	"time"

	"github.com/matchwatch/pipeline/internal/domain/fixture"
)

type fixtureTableModel struct {
	ID                     int64          `db:"id"`
	LeagueID               int64          `db:"league_id"`
	Season                 int            `db:"season"`
	KickoffAt              time.Time      `db:"kickoff_at"`
	VenueID                sql.NullInt64  `db:"venue_id"`
	Referee                string         `db:"referee"`
	Round                  string         `db:"round"`
	StatusShort            string         `db:"status_short"`
	StatusLong             string         `db:"status_long"`
	Elapsed                sql.NullInt64  `db:"elapsed"`
	HomeTeamID             int64          `db:"home_team_id"`
	AwayTeamID             int64          `db:"away_team_id"`
	GoalsHome              sql.NullInt64  `db:"goals_home"`
	GoalsAway              sql.NullInt64  `db:"goals_away"`
	ScoreJSON              []byte         `db:"score_json"`
	NeedsScoreVerification bool           `db:"needs_score_verification"`
	VerificationState      string         `db:"verification_state"`
	VerificationAttempts   int            `db:"verification_attempt_count"`
	VerificationLastAt     sql.NullTime   `db:"verification_last_attempt_at"`
	UpdatedAt              time.Time      `db:"updated_at"`
}

func (m fixtureTableModel) toDomain() fixture.Fixture {
	out := fixture.Fixture{
		ID:                       m.ID,
		LeagueID:                 m.LeagueID,
		Season:                   m.Season,
		KickoffAt:                m.KickoffAt,
		VenueID:                  nullInt64Ptr(m.VenueID),
		Referee:                  m.Referee,
		Round:                    m.Round,
		StatusShort:              m.StatusShort,
		StatusLong:               m.StatusLong,
		Elapsed:                  nullIntPtr(m.Elapsed),
		HomeTeamID:               m.HomeTeamID,
		AwayTeamID:               m.AwayTeamID,
		GoalsHome:                nullIntPtr(m.GoalsHome),
		GoalsAway:                nullIntPtr(m.GoalsAway),
		ScoreJSON:                m.ScoreJSON,
		NeedsScoreVerification:   m.NeedsScoreVerification,
		VerificationState:        m.VerificationState,
		VerificationAttemptCount: m.VerificationAttempts,
		UpdatedAt:                m.UpdatedAt,
	}
	if m.VerificationLastAt.Valid {
		v := m.VerificationLastAt.Time
		out.VerificationLastAttemptAt = &v
	}
	return out
}

func fixtureModelFromDomain(f fixture.Fixture) fixtureTableModel {
	m := fixtureTableModel{
		ID:                     f.ID,
		LeagueID:               f.LeagueID,
		Season:                 f.Season,
		KickoffAt:              f.KickoffAt.UTC(),
		VenueID:                nullableInt64(f.VenueID),
		Referee:                f.Referee,
		Round:                  f.Round,
		StatusShort:            fixture.NormalizeStatus(f.StatusShort),
		StatusLong:             f.StatusLong,
		Elapsed:                nullableInt(f.Elapsed),
		HomeTeamID:             f.HomeTeamID,
		AwayTeamID:             f.AwayTeamID,
		GoalsHome:              nullableInt(f.GoalsHome),
		GoalsAway:              nullableInt(f.GoalsAway),
		ScoreJSON:              emptyJSONWhenNil(f.ScoreJSON),
		NeedsScoreVerification: f.NeedsScoreVerification,
		VerificationState:      f.VerificationState,
		VerificationAttempts:   f.VerificationAttemptCount,
		UpdatedAt:              f.UpdatedAt.UTC(),
	}
	if f.VerificationLastAttemptAt != nil {
		m.VerificationLastAt = sql.NullTime{Time: f.VerificationLastAttemptAt.UTC(), Valid: true}
	}
	return m
}

type fixtureEventModel struct {
	FixtureID int64         `db:"fixture_id"`
	EventKey  string        `db:"event_key"`
	Minute    int           `db:"minute"`
	Extra     sql.NullInt64 `db:"extra"`
	TeamID    int64         `db:"team_id"`
	PlayerID  sql.NullInt64 `db:"player_id"`
	AssistID  sql.NullInt64 `db:"assist_id"`
	Type      string        `db:"type"`
	Detail    string        `db:"detail"`
	Comments  string        `db:"comments"`
	UpdatedAt time.Time     `db:"updated_at"`
}

type fixtureStatisticsModel struct {
	FixtureID int64     `db:"fixture_id"`
	TeamID    int64     `db:"team_id"`
	StatsJSON []byte    `db:"stats_json"`
	UpdatedAt time.Time `db:"updated_at"`
}

type fixtureLineupModel struct {
	FixtureID       int64         `db:"fixture_id"`
	TeamID          int64         `db:"team_id"`
	Formation       string        `db:"formation"`
	CoachID         sql.NullInt64 `db:"coach_id"`
	CoachName       string        `db:"coach_name"`
	StartXIJSON     []byte        `db:"start_xi_json"`
	SubstitutesJSON []byte        `db:"substitutes_json"`
	ColorsJSON      []byte        `db:"colors_json"`
	UpdatedAt       time.Time     `db:"updated_at"`
}

type fixturePlayerModel struct {
	FixtureID int64     `db:"fixture_id"`
	TeamID    int64     `db:"team_id"`
	PlayerID  int64     `db:"player_id"`
	StatsJSON []byte    `db:"stats_json"`
	UpdatedAt time.Time `db:"updated_at"`
}
