package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func absentTelemetry() Telemetry {
	return Telemetry{
		DailyLimit:      -1,
		DailyRemaining:  -1,
		MinuteLimit:     -1,
		MinuteRemaining: -1,
	}
}

func TestGovernorStartsEmpty(t *testing.T) {
	t.Parallel()

	g := NewGovernor(Config{PerMinute: 300})

	usage := g.Snapshot()
	require.Equal(t, 300, usage.MinuteCapacity)
	require.InDelta(t, 0, usage.MinuteTokens, 1)
}

func TestGovernorFirstAcquireWaitsForRefill(t *testing.T) {
	t.Parallel()

	// Capacity 300 refills at 5 tokens/second, so the first token after a
	// cold start costs about 200ms.
	g := NewGovernor(Config{PerMinute: 300})

	started := time.Now()
	err := g.Acquire(context.Background())
	elapsed := time.Since(started)

	require.NoError(t, err)
	require.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	require.Less(t, elapsed, 5*time.Second)
}

func TestGovernorAcquireCancellable(t *testing.T) {
	t.Parallel()

	g := NewGovernor(Config{PerMinute: 60})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	started := time.Now()
	err := g.Acquire(ctx)

	require.Error(t, err)
	require.Less(t, time.Since(started), time.Second)
}

func TestGovernorClampsDownNeverUp(t *testing.T) {
	t.Parallel()

	g := NewGovernor(Config{PerMinute: 300})

	base := time.Now()
	future := base.Add(50 * time.Second)
	g.now = func() time.Time { return future }

	// 50s of refill at 5 tokens/second puts the local estimate near 250.
	require.InDelta(t, 250, g.limiter.TokensAt(future), 5)

	tel := absentTelemetry()
	tel.MinuteLimit = 300
	tel.MinuteRemaining = 10
	g.Observe(tel)
	require.LessOrEqual(t, g.limiter.TokensAt(future), 10.0)

	// An optimistic header must not restore burst.
	tel = absentTelemetry()
	tel.MinuteRemaining = 200
	g.Observe(tel)
	require.LessOrEqual(t, g.limiter.TokensAt(future), 10.0)

	// The clamped bucket still serves exactly what the provider reported.
	require.True(t, g.limiter.AllowN(future, 10))
	require.False(t, g.limiter.AllowN(future, 1))
}

func TestGovernorRateLimitedDrainsBucket(t *testing.T) {
	t.Parallel()

	g := NewGovernor(Config{PerMinute: 300})

	base := time.Now()
	future := base.Add(20 * time.Second)
	g.now = func() time.Time { return future }
	require.Greater(t, g.limiter.TokensAt(future), 50.0)

	tel := absentTelemetry()
	tel.RateLimited = true
	g.Observe(tel)

	require.LessOrEqual(t, g.limiter.TokensAt(future), 1.0)
}

func TestGovernorEmergencyStop(t *testing.T) {
	t.Parallel()

	g := NewGovernor(Config{PerMinute: 600, DailyLimit: 100000, EmergencyStopThreshold: 7500})

	tel := absentTelemetry()
	tel.DailyRemaining = 7499
	g.Observe(tel)

	err := g.Acquire(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrEmergencyStop))
	require.True(t, g.Snapshot().EmergencyStopped)

	// Quota reset observed: the interlock releases.
	tel = absentTelemetry()
	tel.DailyRemaining = 80000
	g.Observe(tel)

	require.False(t, g.Snapshot().EmergencyStopped)
	require.NoError(t, g.Acquire(context.Background()))
}

func TestGovernorDecrementsDailyEstimateLocally(t *testing.T) {
	t.Parallel()

	g := NewGovernor(Config{PerMinute: 600, DailyLimit: 100, EmergencyStopThreshold: 100})

	// 100 is not yet below the threshold, so the first acquire passes and
	// spends the local estimate down to 99.
	require.NoError(t, g.Acquire(context.Background()))

	err := g.Acquire(context.Background())
	require.True(t, errors.Is(err, ErrEmergencyStop))
}

func TestGovernorSnapshotReportsObservations(t *testing.T) {
	t.Parallel()

	g := NewGovernor(Config{PerMinute: 30, EmergencyStopThreshold: 10})

	tel := absentTelemetry()
	tel.DailyLimit = 75000
	tel.DailyRemaining = 42000
	tel.MinuteLimit = 30
	g.Observe(tel)

	usage := g.Snapshot()
	require.Equal(t, 75000, usage.DailyLimit)
	require.Equal(t, 42000, usage.DailyRemaining)
	require.True(t, usage.DailyKnown)
	require.Equal(t, 30, usage.MinuteLimitObserved)
	require.False(t, usage.EmergencyStopped)
	require.False(t, usage.LastObservedAt.IsZero())
}
