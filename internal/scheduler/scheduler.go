package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/matchwatch/pipeline/internal/config"
	"github.com/matchwatch/pipeline/internal/platform/logging"
	"github.com/matchwatch/pipeline/internal/usecase"
)

// Job groups as they appear in config and the journal.
const (
	GroupStatic    = "static"
	GroupDaily     = "daily"
	GroupBackfill  = "backfill"
	GroupReconcile = "reconcile"
	GroupCoverage  = "coverage"
)

// Run outcomes recorded in the journal.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Runners gathers the services the scheduler dispatches to. Each config
// group maps onto exactly one runner method, so a new job type is a new
// field here, not a subclass anywhere.
type Runners struct {
	Ingest           *usecase.IngestService
	Backfill         *usecase.BackfillService
	Reconcile        *usecase.ReconcileService
	Verifier         *usecase.VerifierService
	StandingsRefresh *usecase.StandingsRefreshService
	Coverage         *usecase.CoverageService
}

// JobStatus is one scheduled job's live state for the operator channel.
type JobStatus struct {
	Name    string    `json:"name"`
	Group   string    `json:"group"`
	Trigger string    `json:"trigger"`
	LastRun time.Time `json:"last_run"`
	NextRun time.Time `json:"next_run"`
	Runs    int       `json:"runs"`
}

// Scheduler owns the cooperative job loop: every enabled job fires on its
// cron or interval trigger, singleton mode keeps a slow run from
// overlapping itself, and the base context threads cancellation into every
// suspension point downstream.
type Scheduler struct {
	cfg      *config.Config
	runners  Runners
	journal  *Journal
	logger   *logging.Logger
	cron     *gocron.Scheduler
	triggers map[string]string

	baseCtx context.Context
	cancel  context.CancelFunc
}

func New(cfg *config.Config, runners Runners, journal *Journal, logger *logging.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if journal == nil {
		journal = NewJournal(0, nil)
	}

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load scheduler timezone: %w", err)
	}

	cron := gocron.NewScheduler(loc)
	cron.SingletonModeAll()

	s := &Scheduler{
		cfg:      cfg,
		runners:  runners,
		journal:  journal,
		logger:   logger,
		cron:     cron,
		triggers: make(map[string]string),
	}
	if err := s.register(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) register() error {
	groups := []struct {
		name string
		jobs []config.JobConfig
	}{
		{GroupStatic, s.cfg.Jobs.Static},
		{GroupDaily, s.cfg.Jobs.Daily},
		{GroupBackfill, s.cfg.Jobs.Backfill},
		{GroupReconcile, s.cfg.Jobs.Reconcile},
		{GroupCoverage, s.cfg.Jobs.Coverage},
	}

	for _, group := range groups {
		for _, job := range group.jobs {
			if !job.IsEnabled() {
				s.logger.Info("job disabled", "group", group.name, "job", job.Name)
				continue
			}
			if err := s.schedule(group.name, job); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Scheduler) schedule(group string, job config.JobConfig) error {
	run := s.runFunc(group, job)

	var err error
	switch job.Interval.Type {
	case config.IntervalTypeCron:
		_, err = s.cron.Cron(job.Interval.Cron).Tag(job.Name, group).Do(run)
	case config.IntervalTypeInterval:
		_, err = s.cron.Every(time.Duration(job.Interval.Seconds) * time.Second).Tag(job.Name, group).Do(run)
	default:
		return fmt.Errorf("job %q: unknown interval type %q", job.Name, job.Interval.Type)
	}
	if err != nil {
		return fmt.Errorf("schedule job %q: %w", job.Name, err)
	}
	s.triggers[job.Name] = triggerLabel(job)

	s.logger.Info("job scheduled",
		"group", group, "job", job.Name, "trigger", triggerLabel(job))
	return nil
}

// runFunc wraps one job's dispatch with journal accounting. Failures are
// logged and recorded, never propagated into the loop: the next trigger
// always fires.
func (s *Scheduler) runFunc(group string, job config.JobConfig) func() {
	return func() {
		ctx := s.baseCtx
		if ctx == nil {
			ctx = context.Background()
		}
		if ctx.Err() != nil {
			return
		}

		started := time.Now().UTC()
		detail, err := s.dispatch(ctx, group, job)

		rec := RunRecord{
			Job:        job.Name,
			Group:      group,
			Trigger:    triggerLabel(job),
			StartedAt:  started,
			DurationMS: time.Since(started).Milliseconds(),
			Outcome:    OutcomeOK,
			Detail:     detail,
		}
		if err != nil {
			rec.Outcome = OutcomeFailed
			rec.Error = err.Error()
			s.logger.ErrorContext(ctx, "job run failed",
				"group", group, "job", job.Name, "duration_ms", rec.DurationMS, "error", err)
		} else {
			s.logger.InfoContext(ctx, "job run finished",
				"group", group, "job", job.Name, "duration_ms", rec.DurationMS)
		}
		s.journal.Record(rec)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, group string, job config.JobConfig) (any, error) {
	switch group {
	case GroupStatic:
		switch config.NormalizeEndpoint(job.Endpoint) {
		case usecase.EndpointCountries, usecase.EndpointTimezone:
			return s.runners.Ingest.RunStaticJob(ctx, job)
		default:
			return s.runners.Ingest.RunDailyJob(ctx, job)
		}
	case GroupDaily:
		if config.NormalizeEndpoint(job.Endpoint) == usecase.EndpointStandings {
			return s.runners.StandingsRefresh.RunRotation(ctx, job)
		}
		return s.runners.Ingest.RunDailyJob(ctx, job)
	case GroupBackfill:
		return s.runners.Backfill.RunBackfillJob(ctx, job)
	case GroupReconcile:
		switch job.Kind {
		case config.ReconcileVerifier:
			return s.runners.Verifier.RunVerifier(ctx, job)
		case config.ReconcileStaleLive:
			return s.runners.Reconcile.RunStaleLiveRefresh(ctx, job)
		default:
			return s.runners.Reconcile.RunAutoFinish(ctx, job)
		}
	case GroupCoverage:
		return s.runners.Coverage.RecomputeAll(ctx)
	default:
		return nil, fmt.Errorf("unknown job group %q", group)
	}
}

// Start begins firing triggers. ctx cancellation reaches each in-flight run
// at its next suspension point; call Stop to also halt the trigger loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.cron.StartAsync()
	s.logger.Info("scheduler started",
		"jobs", len(s.cron.Jobs()), "timezone", s.cfg.Scheduler.Timezone)
}

// Stop stops firing new jobs, cancels in-flight runs, and blocks until the
// running jobs return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
}

// Jobs reports the live trigger state for the operator channel.
func (s *Scheduler) Jobs() []JobStatus {
	jobs := s.cron.Jobs()
	out := make([]JobStatus, 0, len(jobs))
	for _, job := range jobs {
		tags := job.Tags()
		status := JobStatus{
			LastRun: job.LastRun(),
			NextRun: job.NextRun(),
			Runs:    job.RunCount(),
		}
		if len(tags) > 0 {
			status.Name = tags[0]
		}
		if len(tags) > 1 {
			status.Group = tags[1]
		}
		status.Trigger = s.triggers[status.Name]
		out = append(out, status)
	}
	return out
}

// Journal exposes the run history ring.
func (s *Scheduler) Journal() *Journal {
	return s.journal
}

func triggerLabel(job config.JobConfig) string {
	if job.Interval.Type == config.IntervalTypeCron {
		return "cron " + job.Interval.Cron
	}
	return fmt.Sprintf("every %ds", job.Interval.Seconds)
}
