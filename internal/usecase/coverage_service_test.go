package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchwatch/pipeline/internal/config"
	"github.com/matchwatch/pipeline/internal/domain/coverage"
	"github.com/matchwatch/pipeline/internal/domain/fixture"
	"github.com/matchwatch/pipeline/internal/domain/league"
	"github.com/matchwatch/pipeline/internal/domain/rawdata"
)

func coverageConfig(targets ...config.CoverageTarget) config.Config {
	cfg := trackedConfig(config.TrackedLeague{ID: 39, Season: 2025})
	cfg.Coverage.Targets = targets
	return cfg
}

func (env *testEnv) appendRawRequest(endpoint string, leagueID int64, season int, fetchedAt time.Time) {
	_, _ = env.raw.Append(context.Background(), rawdata.Record{
		Endpoint:  endpoint,
		LeagueID:  &leagueID,
		Season:    &season,
		Outcome:   rawdata.OutcomeOK,
		FetchedAt: fetchedAt,
	})
}

func TestRecomputeAllBlendsFreshnessAndPipeline(t *testing.T) {
	env := newTestEnv(coverageConfig(config.CoverageTarget{Endpoint: "fixtures", MaxLagMinutes: 120}))
	env.seedStoredFixture(fixture.Fixture{
		ID:          7101,
		KickoffAt:   testNow.Add(2 * time.Hour),
		StatusShort: fixture.StatusNotStarted,
		UpdatedAt:   testNow.Add(-10 * time.Minute),
	})

	report, err := env.coverageService().RecomputeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rows)
	assert.Equal(t, 0, report.Skipped)

	status, found := env.coverage.Get(39, 2025, "fixtures")
	require.True(t, found)
	require.NotNil(t, status.LagMinutes)
	assert.InDelta(t, 10, *status.LagMinutes, 0.01)
	// 10 minutes of lag against a 120 minute budget.
	assert.InDelta(t, 91.67, status.FreshnessCoverage, 0.01)
	// No raw traffic in the window reads as a healthy pipeline.
	assert.InDelta(t, 100, status.PipelineCoverage, 0.01)
	// No expected count, so freshness and pipeline renormalise to 60/40.
	assert.InDelta(t, 95, status.Overall, 0.01)
	assert.Nil(t, status.CountCoverage)
	assert.Empty(t, status.FlagsJSON)
}

func TestRecomputeAllFlagsEmptyCalendarInsteadOfStaleness(t *testing.T) {
	env := newTestEnv(coverageConfig(config.CoverageTarget{Endpoint: "fixtures", MaxLagMinutes: 120}))
	// The only stored fixture is long past; nothing sits in the
	// [now-maxLag, now+24h) window.
	env.seedStoredFixture(fixture.Fixture{
		ID:          7101,
		KickoffAt:   testNow.Add(-30 * 24 * time.Hour),
		StatusShort: fixture.StatusFullTime,
		UpdatedAt:   testNow.Add(-20 * 24 * time.Hour),
	})

	_, err := env.coverageService().RecomputeAll(context.Background())
	require.NoError(t, err)

	status, found := env.coverage.Get(39, 2025, "fixtures")
	require.True(t, found)
	assert.InDelta(t, 100, status.FreshnessCoverage, 0.01)
	require.NotEmpty(t, status.FlagsJSON)

	var flags coverage.Flags
	require.NoError(t, json.Unmarshal(status.FlagsJSON, &flags))
	assert.True(t, flags.NoMatchesScheduled)
}

func TestRecomputeAllCountDimensionUsesExpectedCount(t *testing.T) {
	expected := 4
	env := newTestEnv(coverageConfig(config.CoverageTarget{
		Endpoint:      "fixtures",
		MaxLagMinutes: 120,
		ExpectedCount: &expected,
	}))
	env.seedStoredFixture(fixture.Fixture{
		ID: 7101, KickoffAt: testNow.Add(time.Hour), StatusShort: fixture.StatusNotStarted, UpdatedAt: testNow,
	})
	env.seedStoredFixture(fixture.Fixture{
		ID: 7102, KickoffAt: testNow.Add(2 * time.Hour), StatusShort: fixture.StatusNotStarted, UpdatedAt: testNow,
	})

	_, err := env.coverageService().RecomputeAll(context.Background())
	require.NoError(t, err)

	status, found := env.coverage.Get(39, 2025, "fixtures")
	require.True(t, found)
	assert.Equal(t, 2, status.ActualCount)
	require.NotNil(t, status.CountCoverage)
	assert.InDelta(t, 50, *status.CountCoverage, 0.01)
	// 0.5*50 + 0.3*100 + 0.2*100 with zero lag.
	assert.InDelta(t, 75, status.Overall, 0.01)
}

func TestRecomputeAllPipelineRatioComparesRawToCore(t *testing.T) {
	env := newTestEnv(coverageConfig(config.CoverageTarget{Endpoint: "fixtures", MaxLagMinutes: 120}))
	env.seedStoredFixture(fixture.Fixture{
		ID: 7101, KickoffAt: testNow.Add(time.Hour), StatusShort: fixture.StatusNotStarted, UpdatedAt: testNow,
	})
	env.appendRawRequest("fixtures", 39, 2025, testNow.Add(-2*time.Hour))
	env.appendRawRequest("fixtures", 39, 2025, testNow.Add(-1*time.Hour))

	_, err := env.coverageService().RecomputeAll(context.Background())
	require.NoError(t, err)

	status, found := env.coverage.Get(39, 2025, "fixtures")
	require.True(t, found)
	// Two archived requests, one core row written in the same window.
	assert.InDelta(t, 50, status.PipelineCoverage, 0.01)
	assert.InDelta(t, 80, status.Overall, 0.01)
}

func TestRecomputeAllSkipsTargetsWithoutCounter(t *testing.T) {
	env := newTestEnv(coverageConfig(config.CoverageTarget{Endpoint: "fixtures/events"}))

	report, err := env.coverageService().RecomputeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Rows)
	assert.Equal(t, 1, report.Skipped)
}

func TestRecomputeAllMarksOutOfScopePairs(t *testing.T) {
	cfg := coverageConfig(config.CoverageTarget{Endpoint: "standings", MaxLagMinutes: 1440})
	cfg.ScopePolicy.TypeDefaults = map[string]config.TypeScopeConfig{
		league.TypeCup: {Disabled: []string{"standings"}},
	}
	env := newTestEnv(cfg)
	env.seedLeague(39, "FA Cup", league.TypeCup)

	_, err := env.coverageService().RecomputeAll(context.Background())
	require.NoError(t, err)

	status, found := env.coverage.Get(39, 2025, "standings")
	require.True(t, found)
	require.NotEmpty(t, status.FlagsJSON)

	var flags coverage.Flags
	require.NoError(t, json.Unmarshal(status.FlagsJSON, &flags))
	assert.True(t, flags.OutOfScope)
	assert.Equal(t, "type_Cup_disabled", flags.ScopeReason)
}
