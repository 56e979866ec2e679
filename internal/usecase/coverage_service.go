package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/matchwatch/pipeline/internal/config"
	"github.com/matchwatch/pipeline/internal/domain/coverage"
	"github.com/matchwatch/pipeline/internal/domain/fixture"
	"github.com/matchwatch/pipeline/internal/domain/rawdata"
	"github.com/matchwatch/pipeline/internal/platform/logging"
)

// Overall coverage weights. When no expected count is configured the count
// dimension drops out and the rest renormalise to 60/40.
const (
	coverageWeightCount     = 0.5
	coverageWeightFreshness = 0.3
	coverageWeightPipeline  = 0.2
)

// coreCounter is the slice of a CORE repository the calculator reads:
// row counts and the newest write instant for a tracked pair.
type coreCounter interface {
	CountUpdatedSince(ctx context.Context, leagueID int64, season int, since time.Time) (int, error)
	MaxUpdatedAt(ctx context.Context, leagueID int64, season int) (time.Time, bool, error)
}

// CoverageReport summarises one recompute sweep.
type CoverageReport struct {
	Rows    int `json:"rows"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// CoverageService recomputes per-(league, season, endpoint) coverage from
// CORE write times and the RAW archive, and replaces the stored rows.
type CoverageService struct {
	cfg          *config.Config
	counters     map[string]coreCounter
	fixtureRepo  fixture.Repository
	rawRepo      rawdata.Repository
	coverageRepo coverage.Repository
	scope        *ScopeService
	logger       *logging.Logger
	now          func() time.Time
}

func NewCoverageService(
	cfg *config.Config,
	fixtureRepo fixture.Repository,
	standingsCounter coreCounter,
	injuryCounter coreCounter,
	topScorersCounter coreCounter,
	teamStatsCounter coreCounter,
	rawRepo rawdata.Repository,
	coverageRepo coverage.Repository,
	scope *ScopeService,
	logger *logging.Logger,
) *CoverageService {
	if logger == nil {
		logger = logging.Default()
	}
	counters := map[string]coreCounter{
		EndpointFixtures:       fixtureRepo,
		EndpointStandings:      standingsCounter,
		EndpointInjuries:       injuryCounter,
		EndpointTopScorers:     topScorersCounter,
		EndpointTeamStatistics: teamStatsCounter,
	}
	return &CoverageService{
		cfg:          cfg,
		counters:     counters,
		fixtureRepo:  fixtureRepo,
		rawRepo:      rawRepo,
		coverageRepo: coverageRepo,
		scope:        scope,
		logger:       logger,
		now:          time.Now,
	}
}

// RecomputeAll sweeps every tracked pair against every configured coverage
// target and replaces the stored rows.
func (s *CoverageService) RecomputeAll(ctx context.Context) (CoverageReport, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.CoverageService.RecomputeAll")
	defer span.End()

	report := CoverageReport{}
	now := s.now().UTC()
	for _, lg := range s.cfg.Tracking.Leagues {
		for _, target := range s.cfg.Coverage.Targets {
			endpoint := config.NormalizeEndpoint(target.Endpoint)
			if _, ok := s.counters[endpoint]; !ok {
				report.Skipped++
				continue
			}
			status, err := s.computePair(ctx, lg, target, now)
			if err != nil {
				report.Failed++
				s.logger.ErrorContext(ctx, "coverage compute failed",
					"league_id", lg.ID, "season", lg.Season, "endpoint", endpoint, "error", err)
				continue
			}
			if err := s.coverageRepo.Replace(ctx, status); err != nil {
				report.Failed++
				s.logger.ErrorContext(ctx, "coverage write failed",
					"league_id", lg.ID, "season", lg.Season, "endpoint", endpoint, "error", err)
				continue
			}
			report.Rows++
		}
	}
	return report, nil
}

// Recompute refreshes one pair for one endpoint, typically right after an
// ingest write.
func (s *CoverageService) Recompute(ctx context.Context, lg config.TrackedLeague, endpoint string) (coverage.Status, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.CoverageService.Recompute")
	defer span.End()

	endpoint = config.NormalizeEndpoint(endpoint)
	if _, ok := s.counters[endpoint]; !ok {
		return coverage.Status{}, fmt.Errorf("%w: no coverage counter for endpoint %s", ErrInvalidInput, endpoint)
	}
	status, err := s.computePair(ctx, lg, s.cfg.FindCoverageTarget(endpoint), s.now().UTC())
	if err != nil {
		return coverage.Status{}, err
	}
	if err := s.coverageRepo.Replace(ctx, status); err != nil {
		return coverage.Status{}, fmt.Errorf("replace coverage row: %w", err)
	}
	return status, nil
}

func (s *CoverageService) computePair(ctx context.Context, lg config.TrackedLeague, target config.CoverageTarget, now time.Time) (coverage.Status, error) {
	endpoint := config.NormalizeEndpoint(target.Endpoint)
	counter := s.counters[endpoint]

	status := coverage.Status{
		LeagueID:   lg.ID,
		Season:     lg.Season,
		Endpoint:   endpoint,
		ComputedAt: now,
	}
	flags := coverage.Flags{}

	if decision, err := s.scope.Decide(ctx, endpoint, lg.ID, lg.Season); err == nil && !decision.InScope {
		flags.OutOfScope = true
		flags.ScopeReason = decision.Reason
	}

	actual, err := counter.CountUpdatedSince(ctx, lg.ID, lg.Season, time.Time{})
	if err != nil {
		return coverage.Status{}, fmt.Errorf("count rows: %w", err)
	}
	status.ActualCount = actual

	maxLag := target.MaxLagMinutes
	if maxLag <= 0 {
		maxLag = 1440
	}

	freshness := 0.0
	newest, hasRows, err := counter.MaxUpdatedAt(ctx, lg.ID, lg.Season)
	if err != nil {
		return coverage.Status{}, fmt.Errorf("max updated at: %w", err)
	}
	if hasRows {
		lag := now.Sub(newest).Minutes()
		if lag < 0 {
			lag = 0
		}
		status.LagMinutes = &lag
		freshness = clampPercent(100 * (1 - lag/float64(maxLag)))
	}

	if endpoint == EndpointFixtures && actual > 0 {
		windowFrom := now.Add(-time.Duration(maxLag) * time.Minute)
		windowTo := now.Add(24 * time.Hour)
		scheduled, err := s.fixtureRepo.CountInWindow(ctx, lg.ID, lg.Season, windowFrom, windowTo)
		if err != nil {
			return coverage.Status{}, fmt.Errorf("count fixtures in window: %w", err)
		}
		if scheduled == 0 {
			// An empty calendar means lag is expected, not a failure.
			flags.NoMatchesScheduled = true
			freshness = 100
		}
	}
	status.FreshnessCoverage = freshness

	windowHours := s.cfg.Coverage.WindowHours
	if windowHours <= 0 {
		windowHours = 24
	}
	since := now.Add(-time.Duration(windowHours) * time.Hour)
	rawCount, err := s.rawRepo.CountRequests(ctx, endpoint, lg.ID, lg.Season, since)
	if err != nil {
		return coverage.Status{}, fmt.Errorf("count raw requests: %w", err)
	}
	pipeline := 100.0
	if rawCount > 0 {
		coreCount, err := counter.CountUpdatedSince(ctx, lg.ID, lg.Season, since)
		if err != nil {
			return coverage.Status{}, fmt.Errorf("count recent rows: %w", err)
		}
		pipeline = clampPercent(100 * float64(coreCount) / float64(rawCount))
	}
	status.PipelineCoverage = pipeline

	if target.ExpectedCount != nil && *target.ExpectedCount > 0 {
		status.ExpectedCount = target.ExpectedCount
		count := clampPercent(100 * float64(actual) / float64(*target.ExpectedCount))
		status.CountCoverage = &count
	}

	if status.CountCoverage != nil {
		status.Overall = coverageWeightCount*(*status.CountCoverage) +
			coverageWeightFreshness*freshness +
			coverageWeightPipeline*pipeline
	} else {
		renorm := coverageWeightFreshness + coverageWeightPipeline
		status.Overall = (coverageWeightFreshness*freshness + coverageWeightPipeline*pipeline) / renorm
	}
	status.Overall = clampPercent(status.Overall)

	if flags != (coverage.Flags{}) {
		blob, err := sonic.Marshal(flags)
		if err != nil {
			return coverage.Status{}, fmt.Errorf("marshal coverage flags: %w", err)
		}
		status.FlagsJSON = blob
	}
	return status, nil
}

func clampPercent(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
