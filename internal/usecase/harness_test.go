package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/matchwatch/pipeline/external/apifootball"
	"github.com/matchwatch/pipeline/internal/config"
	"github.com/matchwatch/pipeline/internal/domain/fixture"
	"github.com/matchwatch/pipeline/internal/domain/league"
	"github.com/matchwatch/pipeline/internal/domain/rawdata"
	"github.com/matchwatch/pipeline/internal/domain/team"
	"github.com/matchwatch/pipeline/internal/infrastructure/repository/memory"
	"github.com/matchwatch/pipeline/internal/platform/logging"
)

var testNow = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

type gatewayCall struct {
	Endpoint string
	Params   map[string]string
}

// scriptedGateway routes upstream calls to per-endpoint handlers and records
// every call for assertions.
type scriptedGateway struct {
	mu       sync.Mutex
	handlers map[string]func(params map[string]string) (apifootball.Result, error)
	calls    []gatewayCall
}

func newScriptedGateway() *scriptedGateway {
	return &scriptedGateway{
		handlers: make(map[string]func(map[string]string) (apifootball.Result, error)),
	}
}

func (g *scriptedGateway) on(endpoint string, handler func(params map[string]string) (apifootball.Result, error)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers[endpoint] = handler
}

// respond scripts a fixed OK envelope for an endpoint.
func (g *scriptedGateway) respond(endpoint string, payload any) {
	g.on(endpoint, func(map[string]string) (apifootball.Result, error) {
		return okResult(payload), nil
	})
}

func (g *scriptedGateway) fail(endpoint string, err error) {
	g.on(endpoint, func(map[string]string) (apifootball.Result, error) {
		return apifootball.Result{}, err
	})
}

func (g *scriptedGateway) Get(_ context.Context, endpoint string, params map[string]string) (apifootball.Result, error) {
	g.mu.Lock()
	copied := make(map[string]string, len(params))
	for k, v := range params {
		copied[k] = v
	}
	g.calls = append(g.calls, gatewayCall{Endpoint: endpoint, Params: copied})
	handler := g.handlers[endpoint]
	g.mu.Unlock()

	if handler == nil {
		return apifootball.Result{}, fmt.Errorf("no scripted response for %s", endpoint)
	}
	return handler(params)
}

func (g *scriptedGateway) callsTo(endpoint string) []gatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []gatewayCall
	for _, call := range g.calls {
		if call.Endpoint == endpoint {
			out = append(out, call)
		}
	}
	return out
}

func okResult(payload any) apifootball.Result {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return apifootball.Result{
		Outcome:    rawdata.OutcomeOK,
		StatusCode: http.StatusOK,
		Envelope:   &apifootball.Envelope{Response: raw},
	}
}

// testEnv wires the full ingest graph over in-memory repositories with a
// scripted gateway and a pinned clock.
type testEnv struct {
	cfg     *config.Config
	gateway *scriptedGateway

	leagues   *memory.LeagueRepository
	teams     *memory.TeamRepository
	catalog   *memory.CatalogRepository
	fixtures  *memory.FixtureRepository
	standings *memory.StandingsRepository
	injuries  *memory.InjuryRepository
	scorers   *memory.TopScorersRepository
	teamStats *memory.TeamStatsRepository
	raw       *memory.RawDataRepository
	coverage  *memory.CoverageRepository
	tracking  *memory.TrackingRepository

	transform *TransformService
	resolver  *ResolverService
	scope     *ScopeService
	ingest    *IngestService

	now time.Time
}

func newTestEnv(cfg config.Config) *testEnv {
	env := &testEnv{
		cfg:       &cfg,
		gateway:   newScriptedGateway(),
		leagues:   memory.NewLeagueRepository(),
		teams:     memory.NewTeamRepository(),
		catalog:   memory.NewCatalogRepository(),
		fixtures:  memory.NewFixtureRepository(),
		standings: memory.NewStandingsRepository(),
		injuries:  memory.NewInjuryRepository(),
		scorers:   memory.NewTopScorersRepository(),
		teamStats: memory.NewTeamStatsRepository(),
		raw:       memory.NewRawDataRepository(),
		coverage:  memory.NewCoverageRepository(),
		tracking:  memory.NewTrackingRepository(),
		now:       testNow,
	}

	logger := logging.NewNop()
	env.transform = NewTransformService(env.leagues, env.teams, env.catalog, env.fixtures,
		env.standings, env.injuries, env.scorers, env.teamStats, logger)
	env.resolver = NewResolverService(env.gateway, env.transform, env.leagues, env.teams, env.tracking, logger)
	env.scope = NewScopeService(cfg.ScopePolicy, env.leagues, logger)
	env.ingest = NewIngestService(env.cfg, env.gateway, env.transform, env.resolver, env.scope,
		env.fixtures, env.standings, logger)

	clock := func() time.Time { return env.now }
	env.transform.now = clock
	env.resolver.now = clock
	env.ingest.now = clock
	return env
}

func (env *testEnv) reconciler() *ReconcileService {
	s := NewReconcileService(env.cfg, env.fixtures, env.ingest, logging.NewNop())
	s.now = func() time.Time { return env.now }
	return s
}

func (env *testEnv) verifier(quota QuotaReader) *VerifierService {
	s := NewVerifierService(env.cfg, env.fixtures, env.ingest, quota, logging.NewNop())
	s.now = func() time.Time { return env.now }
	return s
}

func (env *testEnv) backfiller() *BackfillService {
	s := NewBackfillService(env.cfg, env.tracking, env.scope, env.ingest, logging.NewNop())
	s.now = func() time.Time { return env.now }
	return s
}

func (env *testEnv) rotator() *StandingsRefreshService {
	s := NewStandingsRefreshService(env.cfg, env.tracking, env.scope, env.ingest, logging.NewNop())
	s.now = func() time.Time { return env.now }
	return s
}

func (env *testEnv) coverageService() *CoverageService {
	s := NewCoverageService(env.cfg, env.fixtures, env.standings, env.injuries, env.scorers,
		env.teamStats, env.raw, env.coverage, env.scope, logging.NewNop())
	s.now = func() time.Time { return env.now }
	return s
}

// seedLeague stores a league row so scope decisions and the resolver see it
// without an upstream fetch.
func (env *testEnv) seedLeague(id int64, name, leagueType string) {
	_ = env.leagues.Upsert(context.Background(), league.League{
		ID:        id,
		Name:      name,
		Type:      leagueType,
		UpdatedAt: env.now,
	})
}

func (env *testEnv) seedTeams(ids ...int64) {
	rows := make([]team.Team, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, team.Team{ID: id, Name: fmt.Sprintf("Team %d", id), UpdatedAt: env.now})
	}
	_ = env.teams.UpsertTeams(context.Background(), rows)
}

// preparePair seeds everything PrepareLeague would otherwise fetch.
func (env *testEnv) preparePair(lg config.TrackedLeague, leagueType string, teamIDs ...int64) {
	env.seedLeague(lg.ID, fmt.Sprintf("League %d", lg.ID), leagueType)
	env.seedTeams(teamIDs...)
	_ = env.tracking.MarkTeamBootstrapCompleted(context.Background(), lg.ID, lg.Season, env.now)
}

func trackedConfig(pairs ...config.TrackedLeague) config.Config {
	var cfg config.Config
	cfg.Tracking.Leagues = pairs
	return cfg
}

func fixtureEntry(id, leagueID int64, season int, status string, kickoff time.Time, home, away int64) apifootball.FixtureEntry {
	return apifootball.FixtureEntry{
		Fixture: apifootball.FixtureInfo{
			ID:     id,
			Date:   kickoff.UTC().Format(time.RFC3339),
			Status: apifootball.FixtureStatus{Short: status},
		},
		League: apifootball.FixtureLeagueInfo{ID: leagueID, Season: season},
		Teams: apifootball.FixtureTeams{
			Home: apifootball.FixtureTeam{ID: home},
			Away: apifootball.FixtureTeam{ID: away},
		},
	}
}

func withGoals(entry apifootball.FixtureEntry, home, away int) apifootball.FixtureEntry {
	entry.Goals = apifootball.GoalPair{Home: &home, Away: &away}
	return entry
}

func standingsPayload(leagueID int64, season int, teamIDs ...int64) []apifootball.StandingsEntry {
	rows := make([]apifootball.StandingRow, 0, len(teamIDs))
	for i, id := range teamIDs {
		rows = append(rows, apifootball.StandingRow{
			Rank:   i + 1,
			Team:   apifootball.FixtureTeam{ID: id},
			Points: 3 * (len(teamIDs) - i),
		})
	}
	return []apifootball.StandingsEntry{{
		League: apifootball.StandingsLeague{
			ID:        leagueID,
			Season:    season,
			Standings: [][]apifootball.StandingRow{rows},
		},
	}}
}

// seedStoredFixture writes a fixture row directly, bypassing the transform.
func (env *testEnv) seedStoredFixture(f fixture.Fixture) {
	if f.LeagueID == 0 {
		f.LeagueID = 39
	}
	if f.Season == 0 {
		f.Season = 2025
	}
	if f.HomeTeamID == 0 {
		f.HomeTeamID = 33
	}
	if f.AwayTeamID == 0 {
		f.AwayTeamID = 40
	}
	_ = env.fixtures.Upsert(context.Background(), f)
}

type staticQuota struct {
	remaining int
	known     bool
}

func (q staticQuota) DailyRemaining() (int, bool) { return q.remaining, q.known }
