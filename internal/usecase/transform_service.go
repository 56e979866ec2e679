package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/matchwatch/pipeline/external/apifootball"
	"github.com/matchwatch/pipeline/internal/domain/catalog"
	"github.com/matchwatch/pipeline/internal/domain/fixture"
	"github.com/matchwatch/pipeline/internal/domain/injury"
	"github.com/matchwatch/pipeline/internal/domain/league"
	"github.com/matchwatch/pipeline/internal/domain/standings"
	"github.com/matchwatch/pipeline/internal/domain/team"
	"github.com/matchwatch/pipeline/internal/domain/teamstats"
	"github.com/matchwatch/pipeline/internal/domain/topscorers"
	"github.com/matchwatch/pipeline/internal/platform/logging"
)

// TransformService projects decoded provider payloads into CORE rows. Every
// writer is idempotent: replaying the same envelope converges on the same
// rows, so RAW archives can be re-applied at any time.
type TransformService struct {
	leagueRepo     league.Repository
	teamRepo       team.Repository
	catalogRepo    catalog.Repository
	fixtureRepo    fixture.Repository
	standingsRepo  standings.Repository
	injuryRepo     injury.Repository
	topScorersRepo topscorers.Repository
	teamStatsRepo  teamstats.Repository
	logger         *logging.Logger
	now            func() time.Time
}

func NewTransformService(
	leagueRepo league.Repository,
	teamRepo team.Repository,
	catalogRepo catalog.Repository,
	fixtureRepo fixture.Repository,
	standingsRepo standings.Repository,
	injuryRepo injury.Repository,
	topScorersRepo topscorers.Repository,
	teamStatsRepo teamstats.Repository,
	logger *logging.Logger,
) *TransformService {
	if logger == nil {
		logger = logging.Default()
	}
	return &TransformService{
		leagueRepo:     leagueRepo,
		teamRepo:       teamRepo,
		catalogRepo:    catalogRepo,
		fixtureRepo:    fixtureRepo,
		standingsRepo:  standingsRepo,
		injuryRepo:     injuryRepo,
		topScorersRepo: topScorersRepo,
		teamStatsRepo:  teamStatsRepo,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *TransformService) ApplyLeagues(ctx context.Context, entries []apifootball.LeagueEntry) (int, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.TransformService.ApplyLeagues")
	defer span.End()

	stamp := s.now().UTC()
	applied := 0
	for _, entry := range entries {
		if entry.League.ID == 0 {
			s.logger.WarnContext(ctx, "skipping league entry without id", "name", entry.League.Name)
			continue
		}
		var seasons []byte
		if len(entry.Seasons) > 0 {
			blob, err := sonic.Marshal(entry.Seasons)
			if err != nil {
				return applied, fmt.Errorf("marshal seasons for league %d: %w", entry.League.ID, err)
			}
			seasons = blob
		}
		row := league.League{
			ID:          entry.League.ID,
			Name:        entry.League.Name,
			Type:        league.NormalizeType(entry.League.Type),
			Logo:        entry.League.Logo,
			CountryName: entry.Country.Name,
			CountryCode: entry.Country.Code,
			CountryFlag: entry.Country.Flag,
			SeasonsJSON: seasons,
			UpdatedAt:   stamp,
		}
		if err := s.leagueRepo.Upsert(ctx, row); err != nil {
			return applied, fmt.Errorf("upsert league %d: %w", entry.League.ID, err)
		}
		applied++
	}
	return applied, nil
}

func (s *TransformService) ApplyTeams(ctx context.Context, entries []apifootball.TeamEntry) (int, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.TransformService.ApplyTeams")
	defer span.End()

	stamp := s.now().UTC()
	teams := make([]team.Team, 0, len(entries))
	venues := make([]team.Venue, 0, len(entries))
	seenVenues := make(map[int64]bool, len(entries))

	for _, entry := range entries {
		if entry.Team.ID == 0 {
			s.logger.WarnContext(ctx, "skipping team entry without id", "name", entry.Team.Name)
			continue
		}
		var venueID *int64
		if entry.Venue.ID > 0 {
			id := entry.Venue.ID
			venueID = &id
			if !seenVenues[id] {
				seenVenues[id] = true
				venues = append(venues, team.Venue{
					ID:        id,
					Name:      entry.Venue.Name,
					Address:   entry.Venue.Address,
					City:      entry.Venue.City,
					Country:   entry.Venue.Country,
					Capacity:  entry.Venue.Capacity,
					Surface:   entry.Venue.Surface,
					Image:     entry.Venue.Image,
					UpdatedAt: stamp,
				})
			}
		}
		teams = append(teams, team.Team{
			ID:        entry.Team.ID,
			Name:      entry.Team.Name,
			Code:      entry.Team.Code,
			Country:   entry.Team.Country,
			Founded:   entry.Team.Founded,
			National:  entry.Team.National,
			Logo:      entry.Team.Logo,
			VenueID:   venueID,
			UpdatedAt: stamp,
		})
	}

	// Venues land first so team rows never reference a ground that is not
	// there yet.
	if len(venues) > 0 {
		if err := s.teamRepo.UpsertVenues(ctx, venues); err != nil {
			return 0, fmt.Errorf("upsert venues: %w", err)
		}
	}
	if len(teams) > 0 {
		if err := s.teamRepo.UpsertTeams(ctx, teams); err != nil {
			return 0, fmt.Errorf("upsert teams: %w", err)
		}
	}
	return len(teams), nil
}

// ApplyFixtures upserts one fixture row per entry. Status regressions are
// handled inside the repository: a stored terminal status survives a stale
// NS/TBD envelope.
func (s *TransformService) ApplyFixtures(ctx context.Context, entries []apifootball.FixtureEntry) (int, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.TransformService.ApplyFixtures")
	defer span.End()

	stamp := s.now().UTC()
	applied := 0
	for _, entry := range entries {
		row, ok, err := fixtureRowFromEntry(entry, stamp)
		if err != nil {
			return applied, err
		}
		if !ok {
			s.logger.WarnContext(ctx, "skipping fixture entry missing identity",
				"fixture_id", entry.Fixture.ID, "league_id", entry.League.ID)
			continue
		}
		if err := s.fixtureRepo.Upsert(ctx, row); err != nil {
			return applied, fmt.Errorf("upsert fixture %d: %w", row.ID, err)
		}
		applied++
	}
	return applied, nil
}

func fixtureRowFromEntry(entry apifootball.FixtureEntry, stamp time.Time) (fixture.Fixture, bool, error) {
	kickoff := entry.Fixture.KickoffUTC()
	if entry.Fixture.ID == 0 || entry.League.ID == 0 || kickoff == nil ||
		entry.Teams.Home.ID == 0 || entry.Teams.Away.ID == 0 {
		return fixture.Fixture{}, false, nil
	}
	score, err := sonic.Marshal(entry.Score)
	if err != nil {
		return fixture.Fixture{}, false, fmt.Errorf("marshal score for fixture %d: %w", entry.Fixture.ID, err)
	}
	return fixture.Fixture{
		ID:          entry.Fixture.ID,
		LeagueID:    entry.League.ID,
		Season:      entry.League.Season,
		KickoffAt:   *kickoff,
		VenueID:     entry.Fixture.VenueIDOrNil(),
		Referee:     entry.Fixture.Referee,
		Round:       entry.League.Round,
		StatusShort: fixture.NormalizeStatus(entry.Fixture.Status.Short),
		StatusLong:  entry.Fixture.Status.Long,
		Elapsed:     entry.Fixture.Status.Elapsed,
		HomeTeamID:  entry.Teams.Home.ID,
		AwayTeamID:  entry.Teams.Away.ID,
		GoalsHome:   entry.Goals.Home,
		GoalsAway:   entry.Goals.Away,
		ScoreJSON:   score,
		UpdatedAt:   stamp,
	}, true, nil
}

// ApplyEvents writes a fixture's timeline. Identity is the deterministic
// event key, so replaying the same envelope never duplicates entries.
func (s *TransformService) ApplyEvents(ctx context.Context, fixtureID int64, entries []apifootball.EventEntry) (int, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.TransformService.ApplyEvents")
	defer span.End()

	if fixtureID == 0 {
		return 0, fmt.Errorf("%w: fixture id is required for events", ErrInvalidInput)
	}

	stamp := s.now().UTC()
	rows := make([]fixture.Event, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, fixture.Event{
			FixtureID: fixtureID,
			EventKey:  fixture.EventKey(entry.Time.Elapsed, entry.Time.Extra, entry.Team.ID, entry.Player.ID, entry.Type, entry.Detail),
			Minute:    entry.Time.Elapsed,
			Extra:     entry.Time.Extra,
			TeamID:    entry.Team.ID,
			PlayerID:  entry.Player.ID,
			AssistID:  entry.Assist.ID,
			Type:      entry.Type,
			Detail:    entry.Detail,
			Comments:  entry.Comments,
			UpdatedAt: stamp,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.fixtureRepo.UpsertEvents(ctx, rows); err != nil {
		return 0, fmt.Errorf("upsert events for fixture %d: %w", fixtureID, err)
	}
	return len(rows), nil
}

func (s *TransformService) ApplyFixtureStatistics(ctx context.Context, fixtureID int64, entries []apifootball.TeamStatsEntry) (int, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.TransformService.ApplyFixtureStatistics")
	defer span.End()

	if fixtureID == 0 {
		return 0, fmt.Errorf("%w: fixture id is required for statistics", ErrInvalidInput)
	}

	stamp := s.now().UTC()
	rows := make([]fixture.Statistics, 0, len(entries))
	for _, entry := range entries {
		if entry.Team.ID == 0 {
			s.logger.WarnContext(ctx, "skipping statistics entry without team", "fixture_id", fixtureID)
			continue
		}
		blob, err := sonic.Marshal(entry.Statistics)
		if err != nil {
			return 0, fmt.Errorf("marshal statistics for fixture %d team %d: %w", fixtureID, entry.Team.ID, err)
		}
		rows = append(rows, fixture.Statistics{
			FixtureID: fixtureID,
			TeamID:    entry.Team.ID,
			StatsJSON: blob,
			UpdatedAt: stamp,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.fixtureRepo.UpsertStatistics(ctx, rows); err != nil {
		return 0, fmt.Errorf("upsert statistics for fixture %d: %w", fixtureID, err)
	}
	return len(rows), nil
}

func (s *TransformService) ApplyLineups(ctx context.Context, fixtureID int64, entries []apifootball.LineupEntry) (int, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.TransformService.ApplyLineups")
	defer span.End()

	if fixtureID == 0 {
		return 0, fmt.Errorf("%w: fixture id is required for lineups", ErrInvalidInput)
	}

	stamp := s.now().UTC()
	rows := make([]fixture.Lineup, 0, len(entries))
	for _, entry := range entries {
		if entry.Team.ID == 0 {
			s.logger.WarnContext(ctx, "skipping lineup entry without team", "fixture_id", fixtureID)
			continue
		}
		startXI, err := marshalSlotBlob(entry.StartXI)
		if err != nil {
			return 0, fmt.Errorf("marshal startXI for fixture %d team %d: %w", fixtureID, entry.Team.ID, err)
		}
		substitutes, err := marshalSlotBlob(entry.Substitutes)
		if err != nil {
			return 0, fmt.Errorf("marshal substitutes for fixture %d team %d: %w", fixtureID, entry.Team.ID, err)
		}
		rows = append(rows, fixture.Lineup{
			FixtureID:       fixtureID,
			TeamID:          entry.Team.ID,
			Formation:       entry.Formation,
			CoachID:         entry.Coach.ID,
			CoachName:       entry.Coach.Name,
			StartXIJSON:     startXI,
			SubstitutesJSON: substitutes,
			ColorsJSON:      rawBlob(entry.Team.Colors),
			UpdatedAt:       stamp,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.fixtureRepo.UpsertLineups(ctx, rows); err != nil {
		return 0, fmt.Errorf("upsert lineups for fixture %d: %w", fixtureID, err)
	}
	return len(rows), nil
}

func (s *TransformService) ApplyFixturePlayers(ctx context.Context, fixtureID int64, entries []apifootball.FixturePlayersEntry) (int, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.TransformService.ApplyFixturePlayers")
	defer span.End()

	if fixtureID == 0 {
		return 0, fmt.Errorf("%w: fixture id is required for player statistics", ErrInvalidInput)
	}

	stamp := s.now().UTC()
	var rows []fixture.PlayerEntry
	for _, entry := range entries {
		if entry.Team.ID == 0 {
			continue
		}
		for _, ps := range entry.Players {
			if ps.Player.ID == 0 {
				continue
			}
			rows = append(rows, fixture.PlayerEntry{
				FixtureID: fixtureID,
				TeamID:    entry.Team.ID,
				PlayerID:  ps.Player.ID,
				StatsJSON: rawBlob(ps.Statistics),
				UpdatedAt: stamp,
			})
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.fixtureRepo.UpsertPlayerEntries(ctx, rows); err != nil {
		return 0, fmt.Errorf("upsert player entries for fixture %d: %w", fixtureID, err)
	}
	return len(rows), nil
}

// ApplyStandings flattens the provider's grouped table and replaces the
// pair's rows in one transaction. An empty response leaves the stored table
// in place.
func (s *TransformService) ApplyStandings(ctx context.Context, leagueID int64, season int, entries []apifootball.StandingsEntry) (int, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.TransformService.ApplyStandings")
	defer span.End()

	if leagueID == 0 || season == 0 {
		return 0, fmt.Errorf("%w: league and season are required for standings", ErrInvalidInput)
	}

	stamp := s.now().UTC()
	var rows []standings.Standing
	for _, entry := range entries {
		for _, group := range entry.League.Standings {
			for _, item := range group {
				if item.Team.ID == 0 {
					continue
				}
				rows = append(rows, standings.Standing{
					LeagueID:    leagueID,
					Season:      season,
					TeamID:      item.Team.ID,
					Rank:        item.Rank,
					Points:      item.Points,
					GoalsDiff:   item.GoalsDiff,
					Group:       item.Group,
					Form:        item.Form,
					Status:      item.Status,
					Description: item.Description,
					AllJSON:     rawBlob(item.All),
					HomeJSON:    rawBlob(item.Home),
					AwayJSON:    rawBlob(item.Away),
					UpdatedAt:   stamp,
				})
			}
		}
	}
	if len(rows) == 0 {
		s.logger.InfoContext(ctx, "standings response empty, keeping stored table",
			"league_id", leagueID, "season", season)
		return 0, nil
	}
	if err := s.standingsRepo.ReplaceForLeagueSeason(ctx, leagueID, season, rows); err != nil {
		return 0, fmt.Errorf("replace standings for league %d season %d: %w", leagueID, season, err)
	}
	return len(rows), nil
}

func (s *TransformService) ApplyInjuries(ctx context.Context, leagueID int64, season int, entries []apifootball.InjuryEntry) (int, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.TransformService.ApplyInjuries")
	defer span.End()

	if leagueID == 0 || season == 0 {
		return 0, fmt.Errorf("%w: league and season are required for injuries", ErrInvalidInput)
	}

	stamp := s.now().UTC()
	rows := make([]injury.Injury, 0, len(entries))
	for _, entry := range entries {
		if entry.Player.ID == 0 || entry.Team.ID == 0 {
			s.logger.WarnContext(ctx, "skipping injury entry missing identity",
				"league_id", leagueID, "player", entry.Player.Name)
			continue
		}
		// Identity hashes only payload-carried fields: a missing fixture
		// date stays zero so a replay on a later day mints the same key.
		var when time.Time
		if parsed := apifootball.ParseProviderTime(entry.Fixture.Date); parsed != nil {
			when = *parsed
		} else if entry.Fixture.Timestamp > 0 {
			when = time.Unix(entry.Fixture.Timestamp, 0).UTC()
		}
		var fixtureID *int64
		if entry.Fixture.ID > 0 {
			id := entry.Fixture.ID
			fixtureID = &id
		}
		date := when
		if date.IsZero() {
			date = stamp
		}
		rows = append(rows, injury.Injury{
			LeagueID:   leagueID,
			Season:     season,
			InjuryKey:  injury.Key(entry.Team.ID, entry.Player.ID, entry.Player.Type, entry.Player.Reason, when),
			FixtureID:  fixtureID,
			TeamID:     entry.Team.ID,
			PlayerID:   entry.Player.ID,
			PlayerName: entry.Player.Name,
			Type:       entry.Player.Type,
			Reason:     entry.Player.Reason,
			Date:       date,
			UpdatedAt:  stamp,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.injuryRepo.UpsertMany(ctx, rows); err != nil {
		return 0, fmt.Errorf("upsert injuries for league %d season %d: %w", leagueID, season, err)
	}
	return len(rows), nil
}

// ApplyTopScorers writes the leaderboard in response order; rank is the
// position in the array, which is how the provider sorts it.
func (s *TransformService) ApplyTopScorers(ctx context.Context, leagueID int64, season int, entries []apifootball.TopScorerEntry) (int, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.TransformService.ApplyTopScorers")
	defer span.End()

	if leagueID == 0 || season == 0 {
		return 0, fmt.Errorf("%w: league and season are required for top scorers", ErrInvalidInput)
	}

	stamp := s.now().UTC()
	rows := make([]topscorers.TopScorer, 0, len(entries))
	for i, entry := range entries {
		if entry.Player.ID == 0 {
			continue
		}
		row := topscorers.TopScorer{
			LeagueID:   leagueID,
			Season:     season,
			PlayerID:   entry.Player.ID,
			Rank:       i + 1,
			PlayerName: entry.Player.Name,
			UpdatedAt:  stamp,
		}
		if len(entry.Statistics) > 0 {
			stat := entry.Statistics[0]
			row.TeamID = stat.Team.ID
			if stat.Goals.Total != nil {
				row.Goals = *stat.Goals.Total
			}
			row.Assists = stat.Goals.Assists
			row.Penalties = stat.Penalty.Scored
			blob, err := sonic.Marshal(entry.Statistics)
			if err != nil {
				return 0, fmt.Errorf("marshal top scorer stats for player %d: %w", entry.Player.ID, err)
			}
			row.StatsJSON = blob
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.topScorersRepo.UpsertMany(ctx, rows); err != nil {
		return 0, fmt.Errorf("upsert top scorers for league %d season %d: %w", leagueID, season, err)
	}
	return len(rows), nil
}

// ApplyTeamSeasonStats stores one team's season profile. The raw response
// object is kept whole as the profile blob; requestedTeamID backstops
// payloads that omit the team block.
func (s *TransformService) ApplyTeamSeasonStats(ctx context.Context, leagueID int64, season int, requestedTeamID int64, raw json.RawMessage) (int, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.TransformService.ApplyTeamSeasonStats")
	defer span.End()

	if leagueID == 0 || season == 0 {
		return 0, fmt.Errorf("%w: league and season are required for team statistics", ErrInvalidInput)
	}

	parsed, err := apifootball.DecodeTeamSeasonStats(raw)
	if err != nil {
		return 0, err
	}
	teamID := parsed.Team.ID
	if teamID == 0 {
		teamID = requestedTeamID
	}
	if teamID == 0 {
		return 0, fmt.Errorf("%w: team season statistics without a team id", ErrInvalidInput)
	}

	row := teamstats.TeamStatistics{
		LeagueID:    leagueID,
		Season:      season,
		TeamID:      teamID,
		Form:        parsed.Form,
		ProfileJSON: rawBlob(raw),
		UpdatedAt:   s.now().UTC(),
	}
	if err := s.teamStatsRepo.Upsert(ctx, row); err != nil {
		return 0, fmt.Errorf("upsert team season statistics for team %d: %w", teamID, err)
	}
	return 1, nil
}

func (s *TransformService) ApplyCountries(ctx context.Context, entries []apifootball.CountryInfo) (int, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.TransformService.ApplyCountries")
	defer span.End()

	rows := make([]catalog.Country, 0, len(entries))
	for _, entry := range entries {
		if entry.Name == "" && entry.Code == "" {
			continue
		}
		rows = append(rows, catalog.Country{
			Code: entry.Code,
			Name: entry.Name,
			Flag: entry.Flag,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.catalogRepo.UpsertCountries(ctx, rows); err != nil {
		return 0, fmt.Errorf("upsert countries: %w", err)
	}
	return len(rows), nil
}

func (s *TransformService) ApplyTimezones(ctx context.Context, zones []string) (int, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.TransformService.ApplyTimezones")
	defer span.End()

	rows := make([]catalog.Timezone, 0, len(zones))
	for _, zone := range zones {
		if zone == "" {
			continue
		}
		rows = append(rows, catalog.Timezone{Name: zone})
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.catalogRepo.UpsertTimezones(ctx, rows); err != nil {
		return 0, fmt.Errorf("upsert timezones: %w", err)
	}
	return len(rows), nil
}

func marshalSlotBlob(slots []apifootball.LineupSlot) ([]byte, error) {
	if len(slots) == 0 {
		return nil, nil
	}
	return sonic.Marshal(slots)
}

func rawBlob(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
