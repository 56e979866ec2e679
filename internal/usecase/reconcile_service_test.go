package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchwatch/pipeline/external/apifootball"
	"github.com/matchwatch/pipeline/internal/config"
	"github.com/matchwatch/pipeline/internal/domain/fixture"
)

func TestRunAutoFinishForcesStuckLiveFixture(t *testing.T) {
	env := newTestEnv(trackedConfig())
	env.seedStoredFixture(fixture.Fixture{
		ID:          7101,
		KickoffAt:   testNow.Add(-6 * time.Hour),
		StatusShort: fixture.StatusFirstHalf,
		UpdatedAt:   testNow.Add(-3 * time.Hour),
	})

	report, err := env.reconciler().RunAutoFinish(context.Background(), config.JobConfig{
		Name: "reconcile-auto-finish",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Candidates)
	assert.Equal(t, 1, report.Forced)
	assert.Equal(t, 0, report.Calls)

	stored, _, err := env.fixtures.GetByID(context.Background(), 7101)
	require.NoError(t, err)
	assert.Equal(t, fixture.StatusFullTime, stored.StatusShort)
	assert.True(t, stored.NeedsScoreVerification)
	assert.Equal(t, fixture.VerificationPending, stored.VerificationState)
}

func TestRunAutoFinishTryFetchFirstRefreshesReturnedRows(t *testing.T) {
	env := newTestEnv(trackedConfig())
	env.seedTeams(33, 40)
	env.seedStoredFixture(fixture.Fixture{
		ID:          7101,
		KickoffAt:   testNow.Add(-6 * time.Hour),
		StatusShort: fixture.StatusSecondHalf,
		UpdatedAt:   testNow.Add(-4 * time.Hour),
	})
	env.seedStoredFixture(fixture.Fixture{
		ID:          7102,
		KickoffAt:   testNow.Add(-5 * time.Hour),
		StatusShort: fixture.StatusFirstHalf,
		UpdatedAt:   testNow.Add(-4 * time.Hour),
	})

	// Upstream only answers for 7101, with the final score.
	env.gateway.respond("fixtures", []apifootball.FixtureEntry{
		withGoals(fixtureEntry(7101, 39, 2025, "FT", testNow.Add(-6*time.Hour), 33, 40), 2, 1),
	})

	report, err := env.reconciler().RunAutoFinish(context.Background(), config.JobConfig{
		Name: "reconcile-auto-finish",
		Mode: config.ModeConfig{TryFetchFirst: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 1, report.Calls)
	assert.Equal(t, 1, report.Refreshed)
	assert.Equal(t, 1, report.Forced)

	ctx := context.Background()
	refreshed, _, err := env.fixtures.GetByID(ctx, 7101)
	require.NoError(t, err)
	assert.Equal(t, fixture.StatusFullTime, refreshed.StatusShort)
	assert.False(t, refreshed.NeedsScoreVerification)
	require.NotNil(t, refreshed.GoalsHome)
	assert.Equal(t, 2, *refreshed.GoalsHome)

	forced, _, err := env.fixtures.GetByID(ctx, 7102)
	require.NoError(t, err)
	assert.Equal(t, fixture.StatusFullTime, forced.StatusShort)
	assert.True(t, forced.NeedsScoreVerification)
}

func TestRunAutoFinishDryRunTouchesNothing(t *testing.T) {
	env := newTestEnv(trackedConfig())
	env.seedStoredFixture(fixture.Fixture{
		ID:          7101,
		KickoffAt:   testNow.Add(-8 * time.Hour),
		StatusShort: fixture.StatusHalfTime,
		UpdatedAt:   testNow.Add(-5 * time.Hour),
	})

	report, err := env.reconciler().RunAutoFinish(context.Background(), config.JobConfig{
		Name: "reconcile-auto-finish",
		Mode: config.ModeConfig{DryRun: true, TryFetchFirst: true},
	})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Candidates)
	assert.Equal(t, 0, report.Calls)
	assert.Equal(t, 0, report.Forced)

	stored, _, err := env.fixtures.GetByID(context.Background(), 7101)
	require.NoError(t, err)
	assert.Equal(t, fixture.StatusHalfTime, stored.StatusShort)
}

func TestRunAutoFinishNSTBDKindOnlySweepsSchedulable(t *testing.T) {
	env := newTestEnv(trackedConfig())
	env.seedStoredFixture(fixture.Fixture{
		ID:          7101,
		KickoffAt:   testNow.Add(-30 * time.Hour),
		StatusShort: fixture.StatusNotStarted,
		UpdatedAt:   testNow.Add(-3 * time.Hour),
	})
	// Live fixtures belong to the shorter auto-finish sweep, not this one.
	env.seedStoredFixture(fixture.Fixture{
		ID:          7102,
		KickoffAt:   testNow.Add(-30 * time.Hour),
		StatusShort: fixture.StatusFirstHalf,
		UpdatedAt:   testNow.Add(-3 * time.Hour),
	})
	// Recent NS fixtures are under the 24h threshold.
	env.seedStoredFixture(fixture.Fixture{
		ID:          7103,
		KickoffAt:   testNow.Add(-10 * time.Hour),
		StatusShort: fixture.StatusNotStarted,
		UpdatedAt:   testNow.Add(-3 * time.Hour),
	})

	report, err := env.reconciler().RunAutoFinish(context.Background(), config.JobConfig{
		Name: "reconcile-ns-tbd",
		Kind: config.ReconcileNSTBD,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Candidates)
	assert.Equal(t, 1, report.Forced)

	ctx := context.Background()
	forced, _, err := env.fixtures.GetByID(ctx, 7101)
	require.NoError(t, err)
	assert.Equal(t, fixture.StatusFullTime, forced.StatusShort)

	untouched, _, err := env.fixtures.GetByID(ctx, 7102)
	require.NoError(t, err)
	assert.Equal(t, fixture.StatusFirstHalf, untouched.StatusShort)
}

func TestRunStaleLiveRefreshNeverForces(t *testing.T) {
	env := newTestEnv(trackedConfig())
	env.seedTeams(33, 40)
	env.seedStoredFixture(fixture.Fixture{
		ID:          7101,
		KickoffAt:   testNow.Add(-time.Hour),
		StatusShort: fixture.StatusFirstHalf,
		UpdatedAt:   testNow.Add(-30 * time.Minute),
	})
	env.gateway.respond("fixtures", []apifootball.FixtureEntry{
		withGoals(fixtureEntry(7101, 39, 2025, "2H", testNow.Add(-time.Hour), 33, 40), 1, 0),
	})

	report, err := env.reconciler().RunStaleLiveRefresh(context.Background(), config.JobConfig{
		Name: "reconcile-stale-live",
		Kind: config.ReconcileStaleLive,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Candidates)
	assert.Equal(t, 1, report.Refreshed)
	assert.Equal(t, 0, report.Forced)

	stored, _, err := env.fixtures.GetByID(context.Background(), 7101)
	require.NoError(t, err)
	assert.Equal(t, fixture.StatusSecondHalf, stored.StatusShort)
	require.NotNil(t, stored.GoalsHome)
	assert.Equal(t, 1, *stored.GoalsHome)
}
