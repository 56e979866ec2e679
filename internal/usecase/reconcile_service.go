package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/matchwatch/pipeline/internal/config"
	"github.com/matchwatch/pipeline/internal/domain/fixture"
	"github.com/matchwatch/pipeline/internal/platform/logging"
)

const (
	defaultAutoFinishThresholdHours = 3
	defaultNSTBDThresholdHours      = 24
	defaultSafetyLagHours           = 2
	defaultAutoFinishLimit          = 200
	defaultStaleLiveMinutes         = 15
	defaultStaleLiveLimit           = 100
)

// ReconcileReport summarises one reconcile sub-job run.
type ReconcileReport struct {
	Job        string `json:"job"`
	Kind       string `json:"kind"`
	Candidates int    `json:"candidates"`
	Calls      int    `json:"calls"`
	Refreshed  int    `json:"refreshed"`
	Forced     int    `json:"forced"`
	DryRun     bool   `json:"dry_run,omitempty"`
}

// ReconcileService closes the gap between stored fixtures and upstream
// reality: finishing matches the provider went quiet on and re-fetching
// live rows that stopped moving.
type ReconcileService struct {
	cfg         *config.Config
	fixtureRepo fixture.Repository
	ingest      *IngestService
	logger      *logging.Logger
	now         func() time.Time
}

func NewReconcileService(
	cfg *config.Config,
	fixtureRepo fixture.Repository,
	ingest *IngestService,
	logger *logging.Logger,
) *ReconcileService {
	if logger == nil {
		logger = logging.Default()
	}
	return &ReconcileService{
		cfg:         cfg,
		fixtureRepo: fixtureRepo,
		ingest:      ingest,
		logger:      logger,
		now:         time.Now,
	}
}

// RunAutoFinish finalises fixtures stuck in live or schedulable statuses
// long past kickoff. Candidates need both a stale kickoff and a stale
// updated_at. With try_fetch_first the run asks upstream for the truth in
// id batches and only force-finishes fixtures the provider did not return;
// otherwise every candidate is forced and flagged for score verification.
// The ns_tbd_finalise kind is the same sweep restricted to NS/TBD on a
// longer threshold.
func (s *ReconcileService) RunAutoFinish(ctx context.Context, job config.JobConfig) (ReconcileReport, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ReconcileService.RunAutoFinish")
	defer span.End()

	kind := job.Kind
	if kind == "" {
		kind = config.ReconcileAutoFinish
	}
	report := ReconcileReport{Job: job.Name, Kind: kind, DryRun: job.Mode.DryRun}

	statuses := append(fixture.LiveStatuses(), fixture.SchedulableStatuses()...)
	thresholdDefault := defaultAutoFinishThresholdHours
	if kind == config.ReconcileNSTBD {
		statuses = fixture.SchedulableStatuses()
		thresholdDefault = defaultNSTBDThresholdHours
	}
	threshold := job.Mode.ThresholdHours
	if threshold <= 0 {
		threshold = thresholdDefault
	}
	safety := job.Mode.SafetyLagHours
	if safety <= 0 {
		safety = defaultSafetyLagHours
	}
	limit := job.Mode.MaxFixturesPerRun
	if limit <= 0 {
		limit = defaultAutoFinishLimit
	}

	now := s.now().UTC()
	candidates, err := s.fixtureRepo.ListAutoFinishCandidates(ctx, statuses,
		now.Add(-time.Duration(threshold)*time.Hour),
		now.Add(-time.Duration(safety)*time.Hour),
		job.Filters.TrackedLeagues, limit)
	if err != nil {
		return report, fmt.Errorf("list auto-finish candidates: %w", err)
	}
	report.Candidates = len(candidates)
	if len(candidates) == 0 {
		return report, nil
	}

	ids := make([]int64, len(candidates))
	for i, f := range candidates {
		ids[i] = f.ID
	}

	if job.Mode.DryRun {
		s.logger.InfoContext(ctx, "auto-finish dry run",
			"job", job.Name, "kind", kind, "candidates", len(ids))
		return report, nil
	}

	remaining := ids
	if job.Mode.TryFetchFirst {
		entries, calls, err := s.ingest.fetchFixturesByIDs(ctx, ids)
		report.Calls = calls
		if err != nil {
			if abortingError(err) {
				return report, err
			}
			s.logger.WarnContext(ctx, "refresh before force-finish failed, forcing the rest",
				"job", job.Name, "error", err)
		}
		if len(entries) > 0 {
			applied, err := s.ingest.ApplyFixtureEntries(ctx, entries)
			if err != nil {
				return report, err
			}
			report.Refreshed = applied
		}
		fetched := make(map[int64]bool, len(entries))
		for _, entry := range entries {
			fetched[entry.Fixture.ID] = true
		}
		remaining = remaining[:0]
		for _, id := range ids {
			if !fetched[id] {
				remaining = append(remaining, id)
			}
		}
	}

	if len(remaining) > 0 {
		forced, err := s.fixtureRepo.ForceFinish(ctx, remaining, now)
		if err != nil {
			return report, fmt.Errorf("force finish %d fixtures: %w", len(remaining), err)
		}
		report.Forced = forced
	}
	return report, nil
}

// RunStaleLiveRefresh re-fetches live fixtures whose rows stopped updating,
// covering drift the auto-finish window cannot reach yet. Nothing is ever
// forced here.
func (s *ReconcileService) RunStaleLiveRefresh(ctx context.Context, job config.JobConfig) (ReconcileReport, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ReconcileService.RunStaleLiveRefresh")
	defer span.End()

	report := ReconcileReport{Job: job.Name, Kind: config.ReconcileStaleLive}

	staleAfter := job.Mode.StaleAfterMinutes
	if staleAfter <= 0 {
		staleAfter = defaultStaleLiveMinutes
	}
	limit := job.Mode.MaxFixturesPerRun
	if limit <= 0 {
		limit = defaultStaleLiveLimit
	}

	now := s.now().UTC()
	rows, err := s.fixtureRepo.ListStaleLive(ctx,
		now.Add(-time.Duration(staleAfter)*time.Minute),
		job.Filters.TrackedLeagues, limit)
	if err != nil {
		return report, fmt.Errorf("list stale live fixtures: %w", err)
	}
	report.Candidates = len(rows)
	if len(rows) == 0 {
		return report, nil
	}

	ids := make([]int64, len(rows))
	for i, f := range rows {
		ids[i] = f.ID
	}

	entries, calls, fetchErr := s.ingest.fetchFixturesByIDs(ctx, ids)
	report.Calls = calls
	if fetchErr != nil && abortingError(fetchErr) {
		return report, fetchErr
	}
	if len(entries) > 0 {
		applied, err := s.ingest.ApplyFixtureEntries(ctx, entries)
		if err != nil {
			return report, err
		}
		report.Refreshed = applied
	}
	if fetchErr != nil {
		return report, fetchErr
	}
	return report, nil
}
