package usecase

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchwatch/pipeline/external/apifootball"
	"github.com/matchwatch/pipeline/internal/config"
	"github.com/matchwatch/pipeline/internal/domain/league"
	"github.com/matchwatch/pipeline/internal/domain/tracking"
)

func rotationPairs() []config.TrackedLeague {
	return []config.TrackedLeague{
		{ID: 39, Season: 2025},
		{ID: 140, Season: 2025},
		{ID: 61, Season: 2025},
	}
}

func TestRunRotationAdvancesCursorAndClosesLap(t *testing.T) {
	pairs := rotationPairs()
	env := newTestEnv(trackedConfig(pairs...))
	for _, lg := range pairs {
		env.preparePair(lg, league.TypeLeague, lg.ID*10, lg.ID*10+1)
	}
	env.gateway.on("standings", func(params map[string]string) (apifootball.Result, error) {
		id, _ := strconv.ParseInt(params["league"], 10, 64)
		return okResult(standingsPayload(id, 2025, id*10, id*10+1)), nil
	})

	job := config.JobConfig{Name: "daily-standings", Endpoint: "standings"}
	svc := env.rotator()

	report, err := svc.RunRotation(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pairs)
	assert.Equal(t, 2, report.Calls)
	assert.False(t, report.LapClosed)

	progress, found, err := env.tracking.GetStandingsRefresh(context.Background(), job.Name)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, progress.Cursor)
	assert.Equal(t, 0, progress.LapCount)
	assert.Equal(t, 3, progress.TotalPairs)

	report, err = svc.RunRotation(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pairs)
	assert.True(t, report.LapClosed)

	progress, _, err = env.tracking.GetStandingsRefresh(context.Background(), job.Name)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.Cursor)
	assert.Equal(t, 1, progress.LapCount)
	require.NotNil(t, progress.LastFullPassAt)
	assert.Equal(t, testNow, progress.LastFullPassAt.UTC())

	// Calls land on the rotation order: 39, 140 then wrap 61, 39.
	calls := env.gateway.callsTo("standings")
	require.Len(t, calls, 4)
	assert.Equal(t, "39", calls[0].Params["league"])
	assert.Equal(t, "140", calls[1].Params["league"])
	assert.Equal(t, "61", calls[2].Params["league"])
	assert.Equal(t, "39", calls[3].Params["league"])
}

func TestRunRotationOutOfScopePairStillConsumesSlot(t *testing.T) {
	pairs := []config.TrackedLeague{
		{ID: 45, Season: 2025},
		{ID: 39, Season: 2025},
	}
	cfg := trackedConfig(pairs...)
	cfg.ScopePolicy.TypeDefaults = map[string]config.TypeScopeConfig{
		league.TypeCup: {Disabled: []string{"standings"}},
	}
	env := newTestEnv(cfg)
	env.preparePair(pairs[0], league.TypeCup, 450, 451)
	env.preparePair(pairs[1], league.TypeLeague, 33, 40)
	env.gateway.respond("standings", standingsPayload(39, 2025, 33, 40))

	report, err := env.rotator().RunRotation(context.Background(), config.JobConfig{
		Name:     "daily-standings",
		Endpoint: "standings",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pairs)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Calls)
	assert.True(t, report.LapClosed)

	calls := env.gateway.callsTo("standings")
	require.Len(t, calls, 1)
	assert.Equal(t, "39", calls[0].Params["league"])
}

func TestRunRotationRestartsWhenTrackedSetShrinks(t *testing.T) {
	pairs := rotationPairs()[:1]
	env := newTestEnv(trackedConfig(pairs...))
	env.preparePair(pairs[0], league.TypeLeague, 33, 40)
	env.gateway.respond("standings", standingsPayload(39, 2025, 33, 40))

	// A stale cursor from a larger tracked set wraps back to the start.
	require.NoError(t, env.tracking.UpsertStandingsRefresh(context.Background(),
		tracking.StandingsRefreshProgress{JobID: "daily-standings", Cursor: 5, TotalPairs: 6}))

	report, err := env.rotator().RunRotation(context.Background(), config.JobConfig{
		Name:     "daily-standings",
		Endpoint: "standings",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pairs)
	assert.Equal(t, 1, report.Calls)
	assert.True(t, report.LapClosed)
}
