package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/matchwatch/pipeline/external/apifootball"
	"github.com/matchwatch/pipeline/internal/config"
	"github.com/matchwatch/pipeline/internal/domain/league"
	"github.com/matchwatch/pipeline/internal/domain/team"
	"github.com/matchwatch/pipeline/internal/domain/tracking"
	"github.com/matchwatch/pipeline/internal/platform/cache"
	"github.com/matchwatch/pipeline/internal/platform/logging"
)

// ResolverService guarantees referenced leagues and teams exist before
// fixture rows land, so foreign keys never dangle. Known ids sit behind a
// TTL cache; misses fall through to the store and, last, to the provider.
type ResolverService struct {
	gateway      UpstreamGateway
	transform    *TransformService
	leagueRepo   league.Repository
	teamRepo     team.Repository
	trackingRepo tracking.Repository
	known        *cache.Store
	logger       *logging.Logger
	now          func() time.Time
}

func NewResolverService(
	gateway UpstreamGateway,
	transform *TransformService,
	leagueRepo league.Repository,
	teamRepo team.Repository,
	trackingRepo tracking.Repository,
	logger *logging.Logger,
) *ResolverService {
	if logger == nil {
		logger = logging.Default()
	}
	return &ResolverService{
		gateway:      gateway,
		transform:    transform,
		leagueRepo:   leagueRepo,
		teamRepo:     teamRepo,
		trackingRepo: trackingRepo,
		known:        cache.NewStore(30 * time.Minute),
		logger:       logger,
		now:          time.Now,
	}
}

// EnsureLeague makes sure the league row exists, fetching the catalogue
// entry by id when the store has never seen it.
func (s *ResolverService) EnsureLeague(ctx context.Context, leagueID int64) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.ResolverService.EnsureLeague")
	defer span.End()

	if leagueID == 0 {
		return fmt.Errorf("%w: league id is required", ErrInvalidInput)
	}
	key := fmt.Sprintf("league/%d", leagueID)
	if _, ok := s.known.Get(ctx, key); ok {
		return nil
	}

	_, found, err := s.leagueRepo.GetByID(ctx, leagueID)
	if err != nil {
		return fmt.Errorf("look up league %d: %w", leagueID, err)
	}
	if found {
		s.known.Set(ctx, key, true)
		return nil
	}

	res, err := s.gateway.Get(ctx, "leagues", map[string]string{"id": strconv.FormatInt(leagueID, 10)})
	if err != nil {
		return fmt.Errorf("fetch league %d: %w", leagueID, err)
	}
	if !res.OK() {
		return fmt.Errorf("%w: leagues fetch for %d returned %s", ErrDependencyUnavailable, leagueID, res.Outcome)
	}
	entries, err := apifootball.DecodeLeagues(envelopeResponse(res))
	if err != nil {
		return err
	}
	applied, err := s.transform.ApplyLeagues(ctx, entries)
	if err != nil {
		return err
	}
	if applied == 0 {
		return fmt.Errorf("%w: league %d is not in the provider catalogue", ErrNotFound, leagueID)
	}

	s.known.Set(ctx, key, true)
	return nil
}

// EnsureTeams runs the bulk team bootstrap for a tracked pair once; later
// calls return on the persisted completion marker.
func (s *ResolverService) EnsureTeams(ctx context.Context, lg config.TrackedLeague) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.ResolverService.EnsureTeams")
	defer span.End()

	if lg.ID == 0 || lg.Season == 0 {
		return fmt.Errorf("%w: league and season are required for team bootstrap", ErrInvalidInput)
	}

	progress, found, err := s.trackingRepo.GetTeamBootstrap(ctx, lg.ID, lg.Season)
	if err != nil {
		return fmt.Errorf("look up team bootstrap for league %d season %d: %w", lg.ID, lg.Season, err)
	}
	if found && progress.Completed {
		return nil
	}

	res, err := s.gateway.Get(ctx, "teams", map[string]string{
		"league": strconv.FormatInt(lg.ID, 10),
		"season": strconv.Itoa(lg.Season),
	})
	if err != nil {
		return fmt.Errorf("fetch teams for league %d season %d: %w", lg.ID, lg.Season, err)
	}
	if !res.OK() {
		return fmt.Errorf("%w: teams fetch for league %d returned %s", ErrDependencyUnavailable, lg.ID, res.Outcome)
	}
	entries, err := apifootball.DecodeTeams(envelopeResponse(res))
	if err != nil {
		return err
	}
	applied, err := s.transform.ApplyTeams(ctx, entries)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Team.ID != 0 {
			s.known.Set(ctx, fmt.Sprintf("team/%d", entry.Team.ID), true)
		}
	}

	if err := s.trackingRepo.MarkTeamBootstrapCompleted(ctx, lg.ID, lg.Season, s.now().UTC()); err != nil {
		return fmt.Errorf("mark team bootstrap for league %d season %d: %w", lg.ID, lg.Season, err)
	}
	s.logger.InfoContext(ctx, "team bootstrap completed",
		"league_id", lg.ID, "season", lg.Season, "teams", applied)
	return nil
}

// EnsureFixtureDependencies resolves the teams a fixture batch references
// and opportunistically inserts venue stubs from the payloads. It returns
// the team ids that could not be resolved even by the per-team fallback;
// callers skip fixtures referencing them rather than failing the batch.
func (s *ResolverService) EnsureFixtureDependencies(ctx context.Context, entries []apifootball.FixtureEntry) (map[int64]bool, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ResolverService.EnsureFixtureDependencies")
	defer span.End()

	if len(entries) == 0 {
		return nil, nil
	}

	if err := s.insertMissingVenues(ctx, entries); err != nil {
		return nil, err
	}

	referenced := make(map[int64]bool)
	for _, entry := range entries {
		if entry.Teams.Home.ID != 0 {
			referenced[entry.Teams.Home.ID] = true
		}
		if entry.Teams.Away.ID != 0 {
			referenced[entry.Teams.Away.ID] = true
		}
	}

	unknown := make([]int64, 0, len(referenced))
	for id := range referenced {
		if _, ok := s.known.Get(ctx, fmt.Sprintf("team/%d", id)); !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) == 0 {
		return nil, nil
	}
	sort.Slice(unknown, func(i, j int) bool { return unknown[i] < unknown[j] })

	existing, err := s.teamRepo.ExistingTeamIDs(ctx, unknown)
	if err != nil {
		return nil, fmt.Errorf("check existing teams: %w", err)
	}

	unresolved := make(map[int64]bool)
	for _, id := range unknown {
		if existing[id] {
			s.known.Set(ctx, fmt.Sprintf("team/%d", id), true)
			continue
		}
		if err := s.fetchTeamByID(ctx, id); err != nil {
			if abortingError(err) {
				return unresolved, err
			}
			unresolved[id] = true
			s.logger.WarnContext(ctx, "team fallback fetch failed", "team_id", id, "error", err)
		}
	}
	return unresolved, nil
}

func (s *ResolverService) fetchTeamByID(ctx context.Context, teamID int64) error {
	res, err := s.gateway.Get(ctx, "teams", map[string]string{"id": strconv.FormatInt(teamID, 10)})
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("%w: team fetch for %d returned %s", ErrDependencyUnavailable, teamID, res.Outcome)
	}
	entries, err := apifootball.DecodeTeams(envelopeResponse(res))
	if err != nil {
		return err
	}
	applied, err := s.transform.ApplyTeams(ctx, entries)
	if err != nil {
		return err
	}
	if applied == 0 {
		return fmt.Errorf("%w: team %d is not known upstream", ErrNotFound, teamID)
	}
	s.known.Set(ctx, fmt.Sprintf("team/%d", teamID), true)
	return nil
}

// insertMissingVenues writes name/city stubs for venues the fixtures
// mention but the store has never seen. Present rows are left alone so the
// richer /teams payloads are never blanked by a stub.
func (s *ResolverService) insertMissingVenues(ctx context.Context, entries []apifootball.FixtureEntry) error {
	stubs := make(map[int64]team.Venue)
	for _, entry := range entries {
		id := entry.Fixture.Venue.ID
		if id <= 0 {
			continue
		}
		if _, ok := stubs[id]; !ok {
			stubs[id] = team.Venue{
				ID:        id,
				Name:      entry.Fixture.Venue.Name,
				City:      entry.Fixture.Venue.City,
				UpdatedAt: s.now().UTC(),
			}
		}
	}
	if len(stubs) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(stubs))
	for id := range stubs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	existing, err := s.teamRepo.ExistingVenueIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("check existing venues: %w", err)
	}
	missing := make([]team.Venue, 0, len(ids))
	for _, id := range ids {
		if !existing[id] {
			missing = append(missing, stubs[id])
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if err := s.teamRepo.UpsertVenues(ctx, missing); err != nil {
		return fmt.Errorf("insert venue stubs: %w", err)
	}
	return nil
}
