package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/matchwatch/pipeline/external/apifootball"
	"github.com/matchwatch/pipeline/internal/config"
	"github.com/matchwatch/pipeline/internal/domain/fixture"
	"github.com/matchwatch/pipeline/internal/domain/standings"
	"github.com/matchwatch/pipeline/internal/platform/logging"
	"github.com/matchwatch/pipeline/internal/platform/ratelimit"
	"github.com/panjf2000/ants/v2"
)

// Upstream endpoints the dispatcher understands, in canonical form.
const (
	EndpointLeagues           = "leagues"
	EndpointTeams             = "teams"
	EndpointFixtures          = "fixtures"
	EndpointFixtureEvents     = "fixtures/events"
	EndpointFixtureStatistics = "fixtures/statistics"
	EndpointFixtureLineups    = "fixtures/lineups"
	EndpointFixturePlayers    = "fixtures/players"
	EndpointStandings         = "standings"
	EndpointInjuries          = "injuries"
	EndpointTopScorers        = "players/topscorers"
	EndpointTeamStatistics    = "teams/statistics"
	EndpointCountries         = "countries"
	EndpointTimezone          = "timezone"
)

const (
	// fixtureIDsPerBatch is the provider's cap on ids in one fixtures call.
	fixtureIDsPerBatch = 20

	detailWorkerCount     = 4
	defaultDetailBatch    = 50
	defaultDaysAhead      = 1
	defaultDaysBehind     = 2
	defaultTeamStatsBatch = 20
)

// UpstreamGateway is the single fetch surface the services call; the
// api-football client implements it. Every call passes the rate governor
// and lands in the RAW archive before a Result comes back.
type UpstreamGateway interface {
	Get(ctx context.Context, endpoint string, params map[string]string) (apifootball.Result, error)
}

// IngestReport summarises one job run for the journal and operator feed.
type IngestReport struct {
	Job      string `json:"job"`
	Endpoint string `json:"endpoint"`
	Leagues  int    `json:"leagues"`
	Calls    int    `json:"calls"`
	Applied  int    `json:"applied"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
}

// IngestService runs configured jobs against the upstream: it resolves
// params per tracked league, gates on scope, fetches through the governed
// client, and hands decoded payloads to the transform engine.
type IngestService struct {
	cfg           *config.Config
	gateway       UpstreamGateway
	transform     *TransformService
	resolver      *ResolverService
	scope         *ScopeService
	fixtureRepo   fixture.Repository
	standingsRepo standings.Repository
	logger        *logging.Logger
	now           func() time.Time
}

func NewIngestService(
	cfg *config.Config,
	gateway UpstreamGateway,
	transform *TransformService,
	resolver *ResolverService,
	scope *ScopeService,
	fixtureRepo fixture.Repository,
	standingsRepo standings.Repository,
	logger *logging.Logger,
) *IngestService {
	if logger == nil {
		logger = logging.Default()
	}
	return &IngestService{
		cfg:           cfg,
		gateway:       gateway,
		transform:     transform,
		resolver:      resolver,
		scope:         scope,
		fixtureRepo:   fixtureRepo,
		standingsRepo: standingsRepo,
		logger:        logger,
		now:           time.Now,
	}
}

// RunStaticJob executes one unscoped bootstrap job: countries, timezones,
// or the full league catalogue.
func (s *IngestService) RunStaticJob(ctx context.Context, job config.JobConfig) (IngestReport, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.IngestService.RunStaticJob")
	defer span.End()

	endpoint := config.NormalizeEndpoint(job.Endpoint)
	if endpoint == "" {
		return IngestReport{}, fmt.Errorf("%w: job %q has no endpoint", ErrInvalidInput, job.Name)
	}
	report := IngestReport{Job: job.Name, Endpoint: endpoint, Calls: 1}

	params := config.ResolveParams(job.Params, s.now(), config.TrackedLeague{})
	res, err := s.gateway.Get(ctx, endpoint, params)
	if err != nil {
		return report, err
	}
	if !res.OK() {
		return report, outcomeError(endpoint, res)
	}
	applied, err := s.applyEnvelope(ctx, endpoint, config.TrackedLeague{}, params, res)
	if err != nil {
		return report, err
	}
	report.Applied = applied
	return report, nil
}

// RunDailyJob executes one recurring job across its tracked leagues. A
// league failing does not stop the others; the emergency stop and context
// cancellation abort the whole run.
func (s *IngestService) RunDailyJob(ctx context.Context, job config.JobConfig) (IngestReport, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.IngestService.RunDailyJob")
	defer span.End()

	endpoint := config.NormalizeEndpoint(job.Endpoint)
	if endpoint == "" {
		return IngestReport{}, fmt.Errorf("%w: job %q has no endpoint", ErrInvalidInput, job.Name)
	}
	leagues := s.cfg.LeaguesForJob(job)
	report := IngestReport{Job: job.Name, Endpoint: endpoint, Leagues: len(leagues)}

	for _, lg := range leagues {
		decision, err := s.scope.Decide(ctx, endpoint, lg.ID, lg.Season)
		if err != nil {
			report.Failed++
			s.logger.ErrorContext(ctx, "scope decision failed",
				"job", job.Name, "league_id", lg.ID, "season", lg.Season, "error", err)
			continue
		}
		if !decision.InScope {
			report.Skipped++
			s.logger.InfoContext(ctx, "league out of scope",
				"job", job.Name, "endpoint", endpoint, "league_id", lg.ID, "season", lg.Season, "reason", decision.Reason)
			continue
		}

		calls, applied, err := s.runLeagueEndpoint(ctx, job, endpoint, lg)
		report.Calls += calls
		report.Applied += applied
		if err != nil {
			if abortingError(err) {
				return report, err
			}
			report.Failed++
			s.logger.ErrorContext(ctx, "league ingest failed",
				"job", job.Name, "endpoint", endpoint, "league_id", lg.ID, "season", lg.Season, "error", err)
		}
	}
	return report, nil
}

func (s *IngestService) runLeagueEndpoint(ctx context.Context, job config.JobConfig, endpoint string, lg config.TrackedLeague) (int, int, error) {
	switch endpoint {
	case EndpointFixtures:
		if err := s.PrepareLeague(ctx, lg); err != nil {
			return 0, 0, err
		}
		return s.fetchAndApply(ctx, endpoint, s.pairParams(job, lg), lg)
	case EndpointFixtureEvents, EndpointFixtureStatistics, EndpointFixtureLineups, EndpointFixturePlayers:
		return s.runFixtureDetail(ctx, job, endpoint, lg)
	case EndpointTeamStatistics:
		return s.runTeamSeasonStats(ctx, job, lg)
	case EndpointLeagues:
		params := config.ResolveParams(job.Params, s.now(), lg)
		if len(params) == 0 {
			params["id"] = strconv.FormatInt(lg.ID, 10)
		}
		return s.fetchAndApply(ctx, endpoint, params, lg)
	case EndpointTeams, EndpointStandings, EndpointInjuries, EndpointTopScorers:
		return s.fetchAndApply(ctx, endpoint, s.pairParams(job, lg), lg)
	default:
		return 0, 0, fmt.Errorf("%w: unsupported endpoint %q", ErrInvalidInput, endpoint)
	}
}

// PrepareLeague resolves the fixture dependencies for a tracked pair: the
// league row itself and the bulk team bootstrap.
func (s *IngestService) PrepareLeague(ctx context.Context, lg config.TrackedLeague) error {
	if err := s.resolver.EnsureLeague(ctx, lg.ID); err != nil {
		return err
	}
	return s.resolver.EnsureTeams(ctx, lg)
}

// FetchFixtureRange ingests the pair's fixtures with kickoff inside the
// closed-open UTC day range [from, to).
func (s *IngestService) FetchFixtureRange(ctx context.Context, lg config.TrackedLeague, from, to time.Time) (int, int, error) {
	params := map[string]string{
		"league": strconv.FormatInt(lg.ID, 10),
		"season": strconv.Itoa(lg.Season),
		"from":   from.UTC().Format("2006-01-02"),
		"to":     to.UTC().AddDate(0, 0, -1).Format("2006-01-02"),
	}
	return s.fetchAndApply(ctx, EndpointFixtures, params, lg)
}

// RefreshStandings fetches and replaces the standings table for one pair.
func (s *IngestService) RefreshStandings(ctx context.Context, lg config.TrackedLeague) (int, int, error) {
	params := map[string]string{
		"league": strconv.FormatInt(lg.ID, 10),
		"season": strconv.Itoa(lg.Season),
	}
	return s.fetchAndApply(ctx, EndpointStandings, params, lg)
}

func (s *IngestService) fetchAndApply(ctx context.Context, endpoint string, params map[string]string, lg config.TrackedLeague) (int, int, error) {
	res, err := s.gateway.Get(ctx, endpoint, params)
	if err != nil {
		return 1, 0, err
	}
	if !res.OK() {
		return 1, 0, outcomeError(endpoint, res)
	}
	applied, err := s.applyEnvelope(ctx, endpoint, lg, params, res)
	return 1, applied, err
}

// applyEnvelope decodes one OK result by endpoint family and hands it to
// the transform engine.
func (s *IngestService) applyEnvelope(ctx context.Context, endpoint string, lg config.TrackedLeague, params map[string]string, res apifootball.Result) (int, error) {
	raw := envelopeResponse(res)
	switch endpoint {
	case EndpointCountries:
		entries, err := apifootball.DecodeCountries(raw)
		if err != nil {
			return 0, err
		}
		return s.transform.ApplyCountries(ctx, entries)
	case EndpointTimezone:
		zones, err := apifootball.DecodeTimezones(raw)
		if err != nil {
			return 0, err
		}
		return s.transform.ApplyTimezones(ctx, zones)
	case EndpointLeagues:
		entries, err := apifootball.DecodeLeagues(raw)
		if err != nil {
			return 0, err
		}
		return s.transform.ApplyLeagues(ctx, entries)
	case EndpointTeams:
		entries, err := apifootball.DecodeTeams(raw)
		if err != nil {
			return 0, err
		}
		return s.transform.ApplyTeams(ctx, entries)
	case EndpointFixtures:
		entries, err := apifootball.DecodeFixtures(raw)
		if err != nil {
			return 0, err
		}
		return s.ApplyFixtureEntries(ctx, entries)
	case EndpointStandings:
		entries, err := apifootball.DecodeStandings(raw)
		if err != nil {
			return 0, err
		}
		return s.transform.ApplyStandings(ctx, lg.ID, lg.Season, entries)
	case EndpointInjuries:
		entries, err := apifootball.DecodeInjuries(raw)
		if err != nil {
			return 0, err
		}
		return s.transform.ApplyInjuries(ctx, lg.ID, lg.Season, entries)
	case EndpointTopScorers:
		entries, err := apifootball.DecodeTopScorers(raw)
		if err != nil {
			return 0, err
		}
		return s.transform.ApplyTopScorers(ctx, lg.ID, lg.Season, entries)
	case EndpointTeamStatistics:
		return s.transform.ApplyTeamSeasonStats(ctx, lg.ID, lg.Season, paramInt64(params, "team"), raw)
	case EndpointFixtureEvents:
		entries, err := apifootball.DecodeEvents(raw)
		if err != nil {
			return 0, err
		}
		return s.transform.ApplyEvents(ctx, paramInt64(params, "fixture"), entries)
	case EndpointFixtureStatistics:
		entries, err := apifootball.DecodeTeamStats(raw)
		if err != nil {
			return 0, err
		}
		return s.transform.ApplyFixtureStatistics(ctx, paramInt64(params, "fixture"), entries)
	case EndpointFixtureLineups:
		entries, err := apifootball.DecodeLineups(raw)
		if err != nil {
			return 0, err
		}
		return s.transform.ApplyLineups(ctx, paramInt64(params, "fixture"), entries)
	case EndpointFixturePlayers:
		entries, err := apifootball.DecodeFixturePlayers(raw)
		if err != nil {
			return 0, err
		}
		return s.transform.ApplyFixturePlayers(ctx, paramInt64(params, "fixture"), entries)
	default:
		return 0, fmt.Errorf("%w: unsupported endpoint %q", ErrInvalidInput, endpoint)
	}
}

// ApplyFixtureEntries resolves team dependencies and upserts a fixture
// batch, skipping entries whose teams could not be resolved.
func (s *IngestService) ApplyFixtureEntries(ctx context.Context, entries []apifootball.FixtureEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	unresolved, err := s.resolver.EnsureFixtureDependencies(ctx, entries)
	if err != nil {
		return 0, err
	}
	if len(unresolved) > 0 {
		filtered := make([]apifootball.FixtureEntry, 0, len(entries))
		skipped := 0
		for _, entry := range entries {
			if unresolved[entry.Teams.Home.ID] || unresolved[entry.Teams.Away.ID] {
				skipped++
				continue
			}
			filtered = append(filtered, entry)
		}
		s.logger.WarnContext(ctx, "skipping fixtures with unresolved teams", "count", skipped)
		entries = filtered
	}
	return s.transform.ApplyFixtures(ctx, entries)
}

// runFixtureDetail walks recently relevant fixtures for the pair and fetches
// the per-fixture endpoint for each through a bounded worker pool. The
// governor still serialises the upstream calls; the pool just overlaps
// decode and upsert work with the waiting.
func (s *IngestService) runFixtureDetail(ctx context.Context, job config.JobConfig, endpoint string, lg config.TrackedLeague) (int, int, error) {
	batch := job.Mode.BatchSize
	if batch <= 0 {
		batch = defaultDetailBatch
	}
	ahead := job.Mode.DaysAhead
	if ahead <= 0 {
		ahead = defaultDaysAhead
	}
	behind := job.Mode.DaysBehind
	if behind <= 0 {
		behind = defaultDaysBehind
	}

	now := s.now().UTC()
	fixtures, err := s.fixtureRepo.ListInWindow(ctx, lg.ID, lg.Season, now.AddDate(0, 0, -behind), now.AddDate(0, 0, ahead), batch)
	if err != nil {
		return 0, 0, fmt.Errorf("list fixtures for detail fan-out: %w", err)
	}
	if len(fixtures) == 0 {
		return 0, 0, nil
	}

	pool, err := ants.NewPool(detailWorkerCount)
	if err != nil {
		return 0, 0, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	type detailResult struct {
		applied int
		err     error
	}
	results := make(chan detailResult, len(fixtures))

	var workers sync.WaitGroup
	for _, fix := range fixtures {
		fixtureID := fix.ID
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()

			params := map[string]string{"fixture": strconv.FormatInt(fixtureID, 10)}
			res, err := s.gateway.Get(ctx, endpoint, params)
			if err != nil {
				results <- detailResult{err: err}
				return
			}
			if !res.OK() {
				results <- detailResult{err: outcomeError(endpoint, res)}
				return
			}
			applied, err := s.applyEnvelope(ctx, endpoint, lg, params, res)
			results <- detailResult{applied: applied, err: err}
		}); err != nil {
			workers.Done()
			return 0, 0, fmt.Errorf("submit detail fetch: %w", err)
		}
	}
	workers.Wait()
	close(results)

	applied := 0
	failures := 0
	var abort error
	for row := range results {
		applied += row.applied
		if row.err == nil {
			continue
		}
		failures++
		if abort == nil && abortingError(row.err) {
			abort = row.err
			continue
		}
		s.logger.WarnContext(ctx, "fixture detail fetch failed", "endpoint", endpoint, "error", row.err)
	}

	calls := len(fixtures)
	if abort != nil {
		return calls, applied, abort
	}
	if failures == len(fixtures) {
		return calls, applied, fmt.Errorf("%w: all %d detail fetches for %s failed", ErrDependencyUnavailable, failures, endpoint)
	}
	return calls, applied, nil
}

// runTeamSeasonStats fans out one teams/statistics call per team in the
// pair's standings table. Without standings there is nothing to iterate; the
// rotation fills them in first.
func (s *IngestService) runTeamSeasonStats(ctx context.Context, job config.JobConfig, lg config.TrackedLeague) (int, int, error) {
	rows, err := s.standingsRepo.ListByLeagueSeason(ctx, lg.ID, lg.Season)
	if err != nil {
		return 0, 0, fmt.Errorf("list standings for team statistics: %w", err)
	}
	if len(rows) == 0 {
		s.logger.InfoContext(ctx, "no standings rows yet, skipping team statistics",
			"league_id", lg.ID, "season", lg.Season)
		return 0, 0, nil
	}

	batch := job.Mode.BatchSize
	if batch <= 0 {
		batch = defaultTeamStatsBatch
	}
	seen := make(map[int64]bool, len(rows))
	teamIDs := make([]int64, 0, len(rows))
	for _, row := range rows {
		if row.TeamID != 0 && !seen[row.TeamID] {
			seen[row.TeamID] = true
			teamIDs = append(teamIDs, row.TeamID)
		}
	}
	if len(teamIDs) > batch {
		teamIDs = teamIDs[:batch]
	}

	calls, applied := 0, 0
	for _, teamID := range teamIDs {
		params := map[string]string{
			"league": strconv.FormatInt(lg.ID, 10),
			"season": strconv.Itoa(lg.Season),
			"team":   strconv.FormatInt(teamID, 10),
		}
		c, a, err := s.fetchAndApply(ctx, EndpointTeamStatistics, params, lg)
		calls += c
		applied += a
		if err != nil {
			if abortingError(err) {
				return calls, applied, err
			}
			s.logger.WarnContext(ctx, "team season statistics fetch failed",
				"league_id", lg.ID, "team_id", teamID, "error", err)
		}
	}
	return calls, applied, nil
}

// fetchFixturesByIDs batch-fetches fixtures in the id chunks the provider
// accepts on one call. Partial results come back alongside the error that
// stopped the walk.
func (s *IngestService) fetchFixturesByIDs(ctx context.Context, ids []int64) ([]apifootball.FixtureEntry, int, error) {
	var entries []apifootball.FixtureEntry
	calls := 0
	for start := 0; start < len(ids); start += fixtureIDsPerBatch {
		end := start + fixtureIDsPerBatch
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		parts := make([]string, len(chunk))
		for i, id := range chunk {
			parts[i] = strconv.FormatInt(id, 10)
		}

		calls++
		res, err := s.gateway.Get(ctx, EndpointFixtures, map[string]string{"ids": strings.Join(parts, "-")})
		if err != nil {
			return entries, calls, err
		}
		if !res.OK() {
			return entries, calls, outcomeError(EndpointFixtures, res)
		}
		decoded, err := apifootball.DecodeFixtures(envelopeResponse(res))
		if err != nil {
			return entries, calls, err
		}
		entries = append(entries, decoded...)
	}
	return entries, calls, nil
}

func (s *IngestService) pairParams(job config.JobConfig, lg config.TrackedLeague) map[string]string {
	params := config.ResolveParams(job.Params, s.now(), lg)
	if _, ok := params["league"]; !ok {
		params["league"] = strconv.FormatInt(lg.ID, 10)
	}
	if _, ok := params["season"]; !ok {
		params["season"] = strconv.Itoa(lg.Season)
	}
	return params
}

func envelopeResponse(res apifootball.Result) json.RawMessage {
	if res.Envelope == nil {
		return nil
	}
	return res.Envelope.Response
}

func outcomeError(endpoint string, res apifootball.Result) error {
	return fmt.Errorf("%w: %s returned %s (status %d)", ErrDependencyUnavailable, endpoint, res.Outcome, res.StatusCode)
}

// abortingError reports failures that must stop a whole run rather than a
// single item: the daily emergency stop and context cancellation.
func abortingError(err error) bool {
	return errors.Is(err, ratelimit.ErrEmergencyStop) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func paramInt64(params map[string]string, key string) int64 {
	value, err := strconv.ParseInt(params[key], 10, 64)
	if err != nil {
		return 0
	}
	return value
}
