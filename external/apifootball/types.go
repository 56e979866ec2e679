package apifootball

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
)

// LeagueEntry is one element of the leagues response.
type LeagueEntry struct {
	League  LeagueInfo   `json:"league"`
	Country CountryInfo  `json:"country"`
	Seasons []SeasonInfo `json:"seasons"`
}

type LeagueInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Logo string `json:"logo"`
}

type CountryInfo struct {
	Name string `json:"name"`
	Code string `json:"code"`
	Flag string `json:"flag"`
}

type SeasonInfo struct {
	Year     int             `json:"year"`
	Start    string          `json:"start"`
	End      string          `json:"end"`
	Current  bool            `json:"current"`
	Coverage json.RawMessage `json:"coverage"`
}

// TeamEntry is one element of the teams response.
type TeamEntry struct {
	Team  TeamInfo  `json:"team"`
	Venue VenueInfo `json:"venue"`
}

type TeamInfo struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	Country  string `json:"country"`
	Founded  *int   `json:"founded"`
	National bool   `json:"national"`
	Logo     string `json:"logo"`
}

type VenueInfo struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Country  string `json:"country"`
	Capacity *int   `json:"capacity"`
	Surface  string `json:"surface"`
	Image    string `json:"image"`
}

// FixtureEntry is one element of the fixtures response.
type FixtureEntry struct {
	Fixture FixtureInfo       `json:"fixture"`
	League  FixtureLeagueInfo `json:"league"`
	Teams   FixtureTeams      `json:"teams"`
	Goals   GoalPair          `json:"goals"`
	Score   ScoreBreakdown    `json:"score"`
}

type FixtureInfo struct {
	ID        int64         `json:"id"`
	Referee   string        `json:"referee"`
	Timezone  string        `json:"timezone"`
	Date      string        `json:"date"`
	Timestamp int64         `json:"timestamp"`
	Periods   Periods       `json:"periods"`
	Venue     FixtureVenue  `json:"venue"`
	Status    FixtureStatus `json:"status"`
}

type Periods struct {
	First  *int64 `json:"first"`
	Second *int64 `json:"second"`
}

type FixtureVenue struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	City string `json:"city"`
}

type FixtureStatus struct {
	Long    string `json:"long"`
	Short   string `json:"short"`
	Elapsed *int   `json:"elapsed"`
}

type FixtureLeagueInfo struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Country string `json:"country"`
	Logo    string `json:"logo"`
	Flag    string `json:"flag"`
	Season  int    `json:"season"`
	Round   string `json:"round"`
}

type FixtureTeams struct {
	Home FixtureTeam `json:"home"`
	Away FixtureTeam `json:"away"`
}

type FixtureTeam struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Logo   string `json:"logo"`
	Winner *bool  `json:"winner"`
}

type GoalPair struct {
	Home *int `json:"home"`
	Away *int `json:"away"`
}

type ScoreBreakdown struct {
	Halftime  GoalPair `json:"halftime"`
	Fulltime  GoalPair `json:"fulltime"`
	Extratime GoalPair `json:"extratime"`
	Penalty   GoalPair `json:"penalty"`
}

// KickoffUTC resolves the kickoff instant, preferring the RFC3339 date and
// falling back to the epoch timestamp.
func (f FixtureInfo) KickoffUTC() *time.Time {
	if parsed := ParseProviderTime(f.Date); parsed != nil {
		return parsed
	}
	if f.Timestamp > 0 {
		v := time.Unix(f.Timestamp, 0).UTC()
		return &v
	}
	return nil
}

// VenueIDOrNil maps the provider's zero venue id to an absent venue.
func (f FixtureInfo) VenueIDOrNil() *int64 {
	if f.Venue.ID <= 0 {
		return nil
	}
	v := f.Venue.ID
	return &v
}

// EventEntry is one element of the fixtures/events response.
type EventEntry struct {
	Time     EventTime   `json:"time"`
	Team     FixtureTeam `json:"team"`
	Player   PlayerRef   `json:"player"`
	Assist   PlayerRef   `json:"assist"`
	Type     string      `json:"type"`
	Detail   string      `json:"detail"`
	Comments string      `json:"comments"`
}

type EventTime struct {
	Elapsed int  `json:"elapsed"`
	Extra   *int `json:"extra"`
}

type PlayerRef struct {
	ID   *int64 `json:"id"`
	Name string `json:"name"`
}

// TeamStatsEntry is one element of the fixtures/statistics response; the
// provider returns one per side.
type TeamStatsEntry struct {
	Team       FixtureTeam `json:"team"`
	Statistics []StatValue `json:"statistics"`
}

type StatValue struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// NumericStatValue coerces a statistic value: numbers pass through, strings
// like "55%" lose their suffix, null and free text report false.
func NumericStatValue(value any) (float64, bool) {
	switch typed := value.(type) {
	case nil:
		return 0, false
	case float64:
		return typed, true
	case int:
		return float64(typed), true
	case string:
		cleaned := strings.TrimSuffix(strings.TrimSpace(typed), "%")
		if cleaned == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// LineupEntry is one element of the fixtures/lineups response.
type LineupEntry struct {
	Team        LineupTeam   `json:"team"`
	Coach       CoachInfo    `json:"coach"`
	Formation   string       `json:"formation"`
	StartXI     []LineupSlot `json:"startXI"`
	Substitutes []LineupSlot `json:"substitutes"`
}

type LineupTeam struct {
	ID     int64           `json:"id"`
	Name   string          `json:"name"`
	Logo   string          `json:"logo"`
	Colors json.RawMessage `json:"colors"`
}

type CoachInfo struct {
	ID    *int64 `json:"id"`
	Name  string `json:"name"`
	Photo string `json:"photo"`
}

type LineupSlot struct {
	Player LineupPlayer `json:"player"`
}

type LineupPlayer struct {
	ID     *int64 `json:"id"`
	Name   string `json:"name"`
	Number *int   `json:"number"`
	Pos    string `json:"pos"`
	Grid   string `json:"grid"`
}

// FixturePlayersEntry is one element of the fixtures/players response.
type FixturePlayersEntry struct {
	Team    PlayersTeam        `json:"team"`
	Players []PlayerStatsEntry `json:"players"`
}

type PlayersTeam struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Logo   string `json:"logo"`
	Update string `json:"update"`
}

type PlayerStatsEntry struct {
	Player     PlayerSummary   `json:"player"`
	Statistics json.RawMessage `json:"statistics"`
}

type PlayerSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Photo string `json:"photo"`
}

// StandingsEntry is one element of the standings response. The table arrives
// nested under the league, grouped (conferences, relegation groups) as a
// slice of slices.
type StandingsEntry struct {
	League StandingsLeague `json:"league"`
}

type StandingsLeague struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Country   string          `json:"country"`
	Logo      string          `json:"logo"`
	Flag      string          `json:"flag"`
	Season    int             `json:"season"`
	Standings [][]StandingRow `json:"standings"`
}

type StandingRow struct {
	Rank        int             `json:"rank"`
	Team        FixtureTeam     `json:"team"`
	Points      int             `json:"points"`
	GoalsDiff   int             `json:"goalsDiff"`
	Group       string          `json:"group"`
	Form        string          `json:"form"`
	Status      string          `json:"status"`
	Description string          `json:"description"`
	All         json.RawMessage `json:"all"`
	Home        json.RawMessage `json:"home"`
	Away        json.RawMessage `json:"away"`
	Update      string          `json:"update"`
}

// InjuryEntry is one element of the injuries response.
type InjuryEntry struct {
	Player  InjuryPlayer      `json:"player"`
	Team    FixtureTeam       `json:"team"`
	Fixture InjuryFixture     `json:"fixture"`
	League  FixtureLeagueInfo `json:"league"`
}

type InjuryPlayer struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Photo  string `json:"photo"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type InjuryFixture struct {
	ID        int64  `json:"id"`
	Timezone  string `json:"timezone"`
	Date      string `json:"date"`
	Timestamp int64  `json:"timestamp"`
}

// TopScorerEntry is one element of the players/topscorers response, ordered
// by rank.
type TopScorerEntry struct {
	Player     PlayerSummary    `json:"player"`
	Statistics []TopScorerStats `json:"statistics"`
}

type TopScorerStats struct {
	Team    FixtureTeam       `json:"team"`
	League  FixtureLeagueInfo `json:"league"`
	Games   TopScorerGames    `json:"games"`
	Goals   TopScorerGoals    `json:"goals"`
	Penalty PenaltyStats      `json:"penalty"`
}

type TopScorerGames struct {
	Appearences *int   `json:"appearences"`
	Minutes     *int   `json:"minutes"`
	Position    string `json:"position"`
}

type TopScorerGoals struct {
	Total    *int `json:"total"`
	Assists  *int `json:"assists"`
	Conceded *int `json:"conceded"`
	Saves    *int `json:"saves"`
}

type PenaltyStats struct {
	Scored *int `json:"scored"`
	Missed *int `json:"missed"`
}

// TeamSeasonStats is the teams/statistics response, a single object rather
// than an array.
type TeamSeasonStats struct {
	League FixtureLeagueInfo `json:"league"`
	Team   FixtureTeam       `json:"team"`
	Form   string            `json:"form"`
}

func DecodeLeagues(raw json.RawMessage) ([]LeagueEntry, error) {
	return decodeSlice[LeagueEntry](raw, "leagues")
}

func DecodeTeams(raw json.RawMessage) ([]TeamEntry, error) {
	return decodeSlice[TeamEntry](raw, "teams")
}

func DecodeFixtures(raw json.RawMessage) ([]FixtureEntry, error) {
	return decodeSlice[FixtureEntry](raw, "fixtures")
}

func DecodeEvents(raw json.RawMessage) ([]EventEntry, error) {
	return decodeSlice[EventEntry](raw, "fixture events")
}

func DecodeTeamStats(raw json.RawMessage) ([]TeamStatsEntry, error) {
	return decodeSlice[TeamStatsEntry](raw, "fixture statistics")
}

func DecodeLineups(raw json.RawMessage) ([]LineupEntry, error) {
	return decodeSlice[LineupEntry](raw, "fixture lineups")
}

func DecodeFixturePlayers(raw json.RawMessage) ([]FixturePlayersEntry, error) {
	return decodeSlice[FixturePlayersEntry](raw, "fixture players")
}

func DecodeStandings(raw json.RawMessage) ([]StandingsEntry, error) {
	return decodeSlice[StandingsEntry](raw, "standings")
}

func DecodeInjuries(raw json.RawMessage) ([]InjuryEntry, error) {
	return decodeSlice[InjuryEntry](raw, "injuries")
}

func DecodeTopScorers(raw json.RawMessage) ([]TopScorerEntry, error) {
	return decodeSlice[TopScorerEntry](raw, "top scorers")
}

func DecodeCountries(raw json.RawMessage) ([]CountryInfo, error) {
	return decodeSlice[CountryInfo](raw, "countries")
}

func DecodeTimezones(raw json.RawMessage) ([]string, error) {
	return decodeSlice[string](raw, "timezones")
}

// DecodeTeamSeasonStats decodes the single-object teams/statistics response.
func DecodeTeamSeasonStats(raw json.RawMessage) (TeamSeasonStats, error) {
	var out TeamSeasonStats
	if len(raw) == 0 {
		return out, nil
	}
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return TeamSeasonStats{}, fmt.Errorf("decode team season statistics response: %w", err)
	}
	return out, nil
}

func decodeSlice[T any](raw json.RawMessage, label string) ([]T, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []T
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", label, err)
	}
	return out, nil
}

// ParseProviderTime parses the date formats the provider mixes across
// endpoints, normalised to UTC.
func ParseProviderTime(raw string) *time.Time {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}

	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			v := parsed.UTC()
			return &v
		}
	}
	return nil
}
