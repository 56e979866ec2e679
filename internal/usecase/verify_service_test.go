package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchwatch/pipeline/external/apifootball"
	"github.com/matchwatch/pipeline/internal/config"
	"github.com/matchwatch/pipeline/internal/domain/fixture"
)

func seedFlaggedFixture(env *testEnv, id int64, attempts int) {
	env.seedStoredFixture(fixture.Fixture{
		ID:                       id,
		KickoffAt:                testNow.Add(-8 * time.Hour),
		StatusShort:              fixture.StatusFullTime,
		NeedsScoreVerification:   true,
		VerificationState:        fixture.VerificationPending,
		VerificationAttemptCount: attempts,
		UpdatedAt:                testNow.Add(-5 * time.Hour),
	})
}

func TestRunVerifierMarksReturnedFixturesVerified(t *testing.T) {
	env := newTestEnv(trackedConfig())
	env.seedTeams(33, 40)
	seedFlaggedFixture(env, 7101, 0)
	env.gateway.respond("fixtures", []apifootball.FixtureEntry{
		withGoals(fixtureEntry(7101, 39, 2025, "FT", testNow.Add(-8*time.Hour), 33, 40), 3, 1),
	})

	report, err := env.verifier(staticQuota{}).RunVerifier(context.Background(), config.JobConfig{
		Name: "reconcile-verifier",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Candidates)
	assert.Equal(t, 1, report.Verified)
	assert.Equal(t, 0, report.NotFound)

	stored, _, err := env.fixtures.GetByID(context.Background(), 7101)
	require.NoError(t, err)
	assert.Equal(t, fixture.VerificationVerified, stored.VerificationState)
	assert.False(t, stored.NeedsScoreVerification)
	require.NotNil(t, stored.GoalsHome)
	assert.Equal(t, 3, *stored.GoalsHome)
}

func TestRunVerifierKeepsRescheduledFixturesPending(t *testing.T) {
	env := newTestEnv(trackedConfig())
	env.seedTeams(33, 40)
	seedFlaggedFixture(env, 7101, 0)
	// The refetch says the match was rescheduled rather than finished.
	env.gateway.respond("fixtures", []apifootball.FixtureEntry{
		fixtureEntry(7101, 39, 2025, "NS", testNow.Add(72*time.Hour), 33, 40),
	})

	report, err := env.verifier(staticQuota{}).RunVerifier(context.Background(), config.JobConfig{
		Name: "reconcile-verifier",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Verified)
	assert.Equal(t, 1, report.Retried)

	stored, _, err := env.fixtures.GetByID(context.Background(), 7101)
	require.NoError(t, err)
	assert.Equal(t, fixture.VerificationPending, stored.VerificationState)
	assert.True(t, stored.NeedsScoreVerification)
	assert.Equal(t, 1, stored.VerificationAttemptCount)
}

func TestRunVerifierMarksMissingFixturesNotFound(t *testing.T) {
	env := newTestEnv(trackedConfig())
	seedFlaggedFixture(env, 7101, 0)
	// The provider answers the id batch but omits the fixture: that answer
	// is authoritative.
	env.gateway.respond("fixtures", []apifootball.FixtureEntry{})

	report, err := env.verifier(staticQuota{}).RunVerifier(context.Background(), config.JobConfig{
		Name: "reconcile-verifier",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.NotFound)

	stored, _, err := env.fixtures.GetByID(context.Background(), 7101)
	require.NoError(t, err)
	assert.Equal(t, fixture.VerificationNotFound, stored.VerificationState)
	assert.False(t, stored.NeedsScoreVerification)
}

func TestRunVerifierRetriesAfterTransientFailure(t *testing.T) {
	env := newTestEnv(trackedConfig())
	seedFlaggedFixture(env, 7101, 0)
	cause := errors.New("upstream timeout")
	env.gateway.fail("fixtures", cause)

	report, err := env.verifier(staticQuota{}).RunVerifier(context.Background(), config.JobConfig{
		Name: "reconcile-verifier",
	})
	require.ErrorIs(t, err, cause)
	assert.Equal(t, 1, report.Retried)

	stored, _, err := env.fixtures.GetByID(context.Background(), 7101)
	require.NoError(t, err)
	assert.Equal(t, fixture.VerificationPending, stored.VerificationState)
	assert.True(t, stored.NeedsScoreVerification)
	assert.Equal(t, 1, stored.VerificationAttemptCount)
	require.NotNil(t, stored.VerificationLastAttemptAt)
}

func TestRunVerifierBlocksAfterMaxAttempts(t *testing.T) {
	env := newTestEnv(trackedConfig())
	seedFlaggedFixture(env, 7101, 4)
	env.gateway.fail("fixtures", errors.New("upstream timeout"))

	report, err := env.verifier(staticQuota{}).RunVerifier(context.Background(), config.JobConfig{
		Name: "reconcile-verifier",
	})
	require.Error(t, err)
	assert.Equal(t, 1, report.Blocked)

	stored, _, err := env.fixtures.GetByID(context.Background(), 7101)
	require.NoError(t, err)
	assert.Equal(t, fixture.VerificationBlocked, stored.VerificationState)
	assert.False(t, stored.NeedsScoreVerification)
}

func TestRunVerifierHonoursQuotaGuard(t *testing.T) {
	env := newTestEnv(trackedConfig())
	seedFlaggedFixture(env, 7101, 0)

	report, err := env.verifier(staticQuota{remaining: 50, known: true}).RunVerifier(
		context.Background(), config.JobConfig{
			Name: "reconcile-verifier",
			Mode: config.ModeConfig{MinDailyQuota: 100},
		})
	require.NoError(t, err)
	assert.True(t, report.QuotaGuarded)
	assert.Equal(t, 0, report.Calls)
	assert.Empty(t, env.gateway.callsTo("fixtures"))
}

func TestRunVerifierCooldownSkipsRecentAttempts(t *testing.T) {
	env := newTestEnv(trackedConfig())
	recent := testNow.Add(-10 * time.Minute)
	env.seedStoredFixture(fixture.Fixture{
		ID:                        7101,
		KickoffAt:                 testNow.Add(-8 * time.Hour),
		StatusShort:               fixture.StatusFullTime,
		NeedsScoreVerification:    true,
		VerificationState:         fixture.VerificationPending,
		VerificationAttemptCount:  1,
		VerificationLastAttemptAt: &recent,
		UpdatedAt:                 recent,
	})

	report, err := env.verifier(staticQuota{}).RunVerifier(context.Background(), config.JobConfig{
		Name: "reconcile-verifier",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Candidates)
	assert.Empty(t, env.gateway.callsTo("fixtures"))
}
