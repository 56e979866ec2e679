package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/matchwatch/pipeline/internal/config"
	"github.com/matchwatch/pipeline/internal/domain/tracking"
	"github.com/matchwatch/pipeline/internal/platform/logging"
)

const (
	defaultBackfillWindowDays = 30
	defaultBackfillMaxTasks   = 3
	defaultBackfillMaxWindows = 4
)

// BackfillReport summarises one backfill run.
type BackfillReport struct {
	Job       string `json:"job"`
	Tasks     int    `json:"tasks"`
	Windows   int    `json:"windows"`
	Calls     int    `json:"calls"`
	Applied   int    `json:"applied"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}

type backfillWindow struct {
	From time.Time
	To   time.Time
}

// BackfillService walks historical windows for tracked pairs with a
// persisted cursor, so a restart resumes exactly where the last run
// stopped. Errors park the cursor; only a successful window advances it.
type BackfillService struct {
	cfg          *config.Config
	trackingRepo tracking.Repository
	scope        *ScopeService
	ingest       *IngestService
	logger       *logging.Logger
	now          func() time.Time
}

func NewBackfillService(
	cfg *config.Config,
	trackingRepo tracking.Repository,
	scope *ScopeService,
	ingest *IngestService,
	logger *logging.Logger,
) *BackfillService {
	if logger == nil {
		logger = logging.Default()
	}
	return &BackfillService{
		cfg:          cfg,
		trackingRepo: trackingRepo,
		scope:        scope,
		ingest:       ingest,
		logger:       logger,
		now:          time.Now,
	}
}

// RunBackfillJob seeds missing progress rows for the job's tracked pairs,
// then processes up to max_tasks_per_run incomplete tasks.
func (s *BackfillService) RunBackfillJob(ctx context.Context, job config.JobConfig) (BackfillReport, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.BackfillService.RunBackfillJob")
	defer span.End()

	endpoint := config.NormalizeEndpoint(job.Endpoint)
	if endpoint == "" {
		return BackfillReport{}, fmt.Errorf("%w: backfill job %q has no endpoint", ErrInvalidInput, job.Name)
	}
	if endpoint != EndpointFixtures && endpoint != EndpointStandings {
		return BackfillReport{}, fmt.Errorf("%w: backfill does not support endpoint %q", ErrInvalidInput, endpoint)
	}

	report := BackfillReport{Job: job.Name}
	leagues := s.cfg.LeaguesForJob(job)
	byPair := make(map[string]config.TrackedLeague, len(leagues))
	for _, lg := range leagues {
		byPair[pairKey(lg.ID, lg.Season)] = lg
		if err := s.seedTask(ctx, job.Name, lg); err != nil {
			return report, err
		}
	}

	maxTasks := job.Mode.MaxTasksPerRun
	if maxTasks <= 0 {
		maxTasks = defaultBackfillMaxTasks
	}
	tasks, err := s.trackingRepo.ListIncompleteBackfill(ctx, job.Name, maxTasks)
	if err != nil {
		return report, fmt.Errorf("list incomplete backfill tasks: %w", err)
	}
	report.Tasks = len(tasks)

	for _, task := range tasks {
		lg, tracked := byPair[pairKey(task.LeagueID, task.Season)]
		if !tracked {
			s.logger.WarnContext(ctx, "backfill task no longer tracked",
				"job", job.Name, "league_id", task.LeagueID, "season", task.Season)
			continue
		}
		decision, err := s.scope.Decide(ctx, endpoint, task.LeagueID, task.Season)
		if err != nil {
			report.Failed++
			s.logger.ErrorContext(ctx, "scope decision failed",
				"job", job.Name, "league_id", task.LeagueID, "error", err)
			continue
		}
		if !decision.InScope {
			s.logger.InfoContext(ctx, "backfill pair out of scope",
				"job", job.Name, "endpoint", endpoint, "league_id", task.LeagueID, "season", task.Season, "reason", decision.Reason)
			continue
		}

		if endpoint == EndpointStandings {
			err = s.runStandingsTask(ctx, lg, &task, &report)
		} else {
			err = s.runFixtureTask(ctx, job, lg, &task, &report)
		}
		if err != nil {
			if abortingError(err) {
				return report, err
			}
			report.Failed++
			s.logger.ErrorContext(ctx, "backfill task failed",
				"job", job.Name, "league_id", task.LeagueID, "season", task.Season, "error", err)
		}
	}
	return report, nil
}

// Status returns every configured backfill job's progress rows, keyed by
// job name.
func (s *BackfillService) Status(ctx context.Context) (map[string][]tracking.BackfillProgress, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.BackfillService.Status")
	defer span.End()

	out := make(map[string][]tracking.BackfillProgress, len(s.cfg.Jobs.Backfill))
	for _, job := range s.cfg.Jobs.Backfill {
		rows, err := s.trackingRepo.ListBackfill(ctx, job.Name)
		if err != nil {
			return nil, fmt.Errorf("list backfill progress for %q: %w", job.Name, err)
		}
		out[job.Name] = rows
	}
	return out, nil
}

func (s *BackfillService) seedTask(ctx context.Context, jobID string, lg config.TrackedLeague) error {
	_, found, err := s.trackingRepo.GetBackfill(ctx, jobID, lg.ID, lg.Season)
	if err != nil {
		return fmt.Errorf("look up backfill task %s/%d/%d: %w", jobID, lg.ID, lg.Season, err)
	}
	if found {
		return nil
	}
	progress := tracking.BackfillProgress{
		JobID:     jobID,
		LeagueID:  lg.ID,
		Season:    lg.Season,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.trackingRepo.UpsertBackfill(ctx, progress); err != nil {
		return fmt.Errorf("seed backfill task %s/%d/%d: %w", jobID, lg.ID, lg.Season, err)
	}
	return nil
}

func (s *BackfillService) runFixtureTask(ctx context.Context, job config.JobConfig, lg config.TrackedLeague, task *tracking.BackfillProgress, report *BackfillReport) error {
	windows := seasonWindows(task.Season, job.Mode.WindowDays)
	if task.NextWindowIndex >= len(windows) {
		task.Completed = true
		task.LastError = ""
		report.Completed++
		s.saveProgress(ctx, task)
		return nil
	}

	if err := s.ingest.PrepareLeague(ctx, lg); err != nil {
		s.recordError(ctx, task, err)
		return err
	}

	maxWindows := job.Mode.MaxWindowsPerTask
	if maxWindows <= 0 {
		maxWindows = defaultBackfillMaxWindows
	}
	for processed := 0; processed < maxWindows && task.NextWindowIndex < len(windows); processed++ {
		window := windows[task.NextWindowIndex]
		calls, applied, err := s.ingest.FetchFixtureRange(ctx, lg, window.From, window.To)
		report.Calls += calls
		report.Applied += applied
		if err != nil {
			s.recordError(ctx, task, err)
			return err
		}

		task.NextWindowIndex++
		task.LastError = ""
		report.Windows++
		if task.NextWindowIndex >= len(windows) {
			task.Completed = true
			report.Completed++
		}
		s.saveProgress(ctx, task)
	}
	return nil
}

func (s *BackfillService) runStandingsTask(ctx context.Context, lg config.TrackedLeague, task *tracking.BackfillProgress, report *BackfillReport) error {
	calls, applied, err := s.ingest.RefreshStandings(ctx, lg)
	report.Calls += calls
	report.Applied += applied
	if err != nil {
		s.recordError(ctx, task, err)
		return err
	}
	task.Completed = true
	task.LastError = ""
	report.Completed++
	s.saveProgress(ctx, task)
	return nil
}

func (s *BackfillService) saveProgress(ctx context.Context, task *tracking.BackfillProgress) {
	at := s.now().UTC()
	task.LastRunAt = &at
	task.UpdatedAt = at
	if err := s.trackingRepo.UpsertBackfill(ctx, *task); err != nil {
		s.logger.ErrorContext(ctx, "persist backfill progress failed",
			"job", task.JobID, "league_id", task.LeagueID, "season", task.Season, "error", err)
	}
}

func (s *BackfillService) recordError(ctx context.Context, task *tracking.BackfillProgress, cause error) {
	task.LastError = cause.Error()
	s.saveProgress(ctx, task)
}

// seasonWindows splits the European season span, July 1 of the season year
// to July 1 of the next, into closed-open day ranges of windowDays.
func seasonWindows(season, windowDays int) []backfillWindow {
	if windowDays <= 0 {
		windowDays = defaultBackfillWindowDays
	}
	start := time.Date(season, time.July, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)

	var out []backfillWindow
	for from := start; from.Before(end); from = from.AddDate(0, 0, windowDays) {
		to := from.AddDate(0, 0, windowDays)
		if to.After(end) {
			to = end
		}
		out = append(out, backfillWindow{From: from, To: to})
	}
	return out
}

func pairKey(leagueID int64, season int) string {
	return fmt.Sprintf("%d/%d", leagueID, season)
}
