package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchwatch/pipeline/internal/config"
	"github.com/matchwatch/pipeline/internal/infrastructure/repository/memory"
	"github.com/matchwatch/pipeline/internal/platform/logging"
	"github.com/matchwatch/pipeline/internal/usecase"
)

func schedulerConfig() *config.Config {
	disabled := false
	var cfg config.Config
	cfg.Jobs.Daily = []config.JobConfig{
		{
			Name:     "daily-fixtures",
			Endpoint: "fixtures",
			Interval: config.IntervalConfig{Type: config.IntervalTypeCron, Cron: "0 6 * * *"},
		},
		{
			Name:     "daily-injuries",
			Enabled:  &disabled,
			Endpoint: "injuries",
			Interval: config.IntervalConfig{Type: config.IntervalTypeCron, Cron: "0 7 * * *"},
		},
	}
	cfg.Jobs.Reconcile = []config.JobConfig{
		{
			Name:     "reconcile-auto-finish",
			Kind:     config.ReconcileAutoFinish,
			Interval: config.IntervalConfig{Type: config.IntervalTypeInterval, Seconds: 900},
		},
	}
	return &cfg
}

func coverageRunners(cfg *config.Config) Runners {
	logger := logging.NewNop()
	fixtures := memory.NewFixtureRepository()
	scope := usecase.NewScopeService(cfg.ScopePolicy, memory.NewLeagueRepository(), logger)
	coverage := usecase.NewCoverageService(cfg, fixtures,
		memory.NewStandingsRepository(), memory.NewInjuryRepository(),
		memory.NewTopScorersRepository(), memory.NewTeamStatsRepository(),
		memory.NewRawDataRepository(), memory.NewCoverageRepository(), scope, logger)
	return Runners{Coverage: coverage}
}

func TestNewRegistersEnabledJobs(t *testing.T) {
	cfg := schedulerConfig()
	s, err := New(cfg, Runners{}, NewJournal(10, nil), logging.NewNop())
	require.NoError(t, err)

	jobs := s.Jobs()
	require.Len(t, jobs, 2)

	byName := make(map[string]JobStatus, len(jobs))
	for _, job := range jobs {
		byName[job.Name] = job
	}

	daily, ok := byName["daily-fixtures"]
	require.True(t, ok)
	assert.Equal(t, GroupDaily, daily.Group)
	assert.Equal(t, "cron 0 6 * * *", daily.Trigger)

	reconcile, ok := byName["reconcile-auto-finish"]
	require.True(t, ok)
	assert.Equal(t, GroupReconcile, reconcile.Group)
	assert.Equal(t, "every 900s", reconcile.Trigger)

	// The disabled job never reaches the trigger loop.
	_, ok = byName["daily-injuries"]
	assert.False(t, ok)
}

func TestNewRejectsUnknownIntervalType(t *testing.T) {
	var cfg config.Config
	cfg.Jobs.Daily = []config.JobConfig{{
		Name:     "daily-fixtures",
		Endpoint: "fixtures",
		Interval: config.IntervalConfig{Type: "hourly"},
	}}

	_, err := New(&cfg, Runners{}, nil, logging.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown interval type")
}

func TestRunFuncRecordsFailedOutcome(t *testing.T) {
	var cfg config.Config
	journal := NewJournal(10, nil)
	s, err := New(&cfg, Runners{}, journal, logging.NewNop())
	require.NoError(t, err)

	s.runFunc("bogus", config.JobConfig{Name: "mystery"})()

	recent := journal.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, OutcomeFailed, recent[0].Outcome)
	assert.Equal(t, "mystery", recent[0].Job)
	assert.Contains(t, recent[0].Error, "unknown job group")
}

func TestRunFuncRecordsCoverageRun(t *testing.T) {
	var cfg config.Config
	journal := NewJournal(10, nil)
	s, err := New(&cfg, coverageRunners(&cfg), journal, logging.NewNop())
	require.NoError(t, err)

	s.runFunc(GroupCoverage, config.JobConfig{Name: "coverage-recompute"})()

	recent := journal.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, OutcomeOK, recent[0].Outcome)

	detail, ok := recent[0].Detail.(usecase.CoverageReport)
	require.True(t, ok)
	assert.Equal(t, 0, detail.Rows)
}
