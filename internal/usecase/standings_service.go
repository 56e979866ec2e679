package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/matchwatch/pipeline/internal/config"
	"github.com/matchwatch/pipeline/internal/domain/tracking"
	"github.com/matchwatch/pipeline/internal/platform/logging"
)

const defaultStandingsPairsPerRun = 2

// StandingsReport summarises one rotation step.
type StandingsReport struct {
	Job       string `json:"job"`
	Pairs     int    `json:"pairs"`
	Calls     int    `json:"calls"`
	Applied   int    `json:"applied"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	LapClosed bool   `json:"lap_closed,omitempty"`
}

// StandingsRefreshService paces standings fetches across the tracked pairs
// so one firing never burns the whole quota budget: each run advances a
// persisted cursor by pairs_per_run and wraps into a new lap at the end.
type StandingsRefreshService struct {
	cfg          *config.Config
	trackingRepo tracking.Repository
	scope        *ScopeService
	ingest       *IngestService
	logger       *logging.Logger
	now          func() time.Time
}

func NewStandingsRefreshService(
	cfg *config.Config,
	trackingRepo tracking.Repository,
	scope *ScopeService,
	ingest *IngestService,
	logger *logging.Logger,
) *StandingsRefreshService {
	if logger == nil {
		logger = logging.Default()
	}
	return &StandingsRefreshService{
		cfg:          cfg,
		trackingRepo: trackingRepo,
		scope:        scope,
		ingest:       ingest,
		logger:       logger,
		now:          time.Now,
	}
}

// RunRotation refreshes the next pairs_per_run tracked pairs and advances
// the cursor. Out-of-scope pairs still consume a rotation slot, so cup
// competitions cannot stall the lap.
func (s *StandingsRefreshService) RunRotation(ctx context.Context, job config.JobConfig) (StandingsReport, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.StandingsRefreshService.RunRotation")
	defer span.End()

	report := StandingsReport{Job: job.Name}
	pairs := s.cfg.LeaguesForJob(job)
	if len(pairs) == 0 {
		return report, nil
	}

	progress, found, err := s.trackingRepo.GetStandingsRefresh(ctx, job.Name)
	if err != nil {
		return report, fmt.Errorf("load standings rotation for %q: %w", job.Name, err)
	}
	if !found {
		progress = tracking.StandingsRefreshProgress{JobID: job.Name}
	}
	progress.TotalPairs = len(pairs)
	if progress.Cursor >= len(pairs) {
		// The tracked set shrank since the last run; restart the lap.
		progress.Cursor = 0
	}

	perRun := job.Mode.PairsPerRun
	if perRun <= 0 {
		perRun = defaultStandingsPairsPerRun
	}
	if perRun > len(pairs) {
		perRun = len(pairs)
	}

	for step := 0; step < perRun; step++ {
		lg := pairs[progress.Cursor]

		decision, err := s.scope.Decide(ctx, EndpointStandings, lg.ID, lg.Season)
		if err != nil {
			report.Failed++
			s.logger.ErrorContext(ctx, "scope decision failed",
				"job", job.Name, "league_id", lg.ID, "season", lg.Season, "error", err)
		} else if !decision.InScope {
			report.Skipped++
			s.logger.InfoContext(ctx, "standings pair out of scope",
				"job", job.Name, "league_id", lg.ID, "season", lg.Season, "reason", decision.Reason)
		} else {
			calls, applied, err := s.ingest.RefreshStandings(ctx, lg)
			report.Calls += calls
			report.Applied += applied
			if err != nil {
				if abortingError(err) {
					s.saveProgress(ctx, &progress)
					return report, err
				}
				report.Failed++
				s.logger.ErrorContext(ctx, "standings refresh failed",
					"job", job.Name, "league_id", lg.ID, "season", lg.Season, "error", err)
			}
		}
		report.Pairs++

		progress.Cursor++
		if progress.Cursor >= len(pairs) {
			progress.Cursor = 0
			progress.LapCount++
			at := s.now().UTC()
			progress.LastFullPassAt = &at
			report.LapClosed = true
		}
	}

	s.saveProgress(ctx, &progress)
	return report, nil
}

func (s *StandingsRefreshService) saveProgress(ctx context.Context, progress *tracking.StandingsRefreshProgress) {
	progress.UpdatedAt = s.now().UTC()
	if err := s.trackingRepo.UpsertStandingsRefresh(ctx, *progress); err != nil {
		s.logger.ErrorContext(ctx, "persist standings rotation failed",
			"job", progress.JobID, "error", err)
	}
}
