package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchwatch/pipeline/external/apifootball"
	"github.com/matchwatch/pipeline/internal/config"
	"github.com/matchwatch/pipeline/internal/domain/league"
)

func leaguePayload(id int64, name, leagueType string) []apifootball.LeagueEntry {
	return []apifootball.LeagueEntry{{
		League:  apifootball.LeagueInfo{ID: id, Name: name, Type: leagueType},
		Country: apifootball.CountryInfo{Name: "England", Code: "GB"},
	}}
}

func teamPayload(entries ...apifootball.TeamEntry) []apifootball.TeamEntry {
	return entries
}

func TestEnsureLeagueFetchesCatalogueEntryOnce(t *testing.T) {
	env := newTestEnv(trackedConfig())
	env.gateway.respond("leagues", leaguePayload(39, "Premier League", "League"))
	ctx := context.Background()

	require.NoError(t, env.resolver.EnsureLeague(ctx, 39))
	stored, found, err := env.leagues.GetByID(ctx, 39)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Premier League", stored.Name)
	assert.Equal(t, league.TypeLeague, stored.Type)

	calls := env.gateway.callsTo("leagues")
	require.Len(t, calls, 1)
	assert.Equal(t, "39", calls[0].Params["id"])

	// Cached after the first resolution.
	require.NoError(t, env.resolver.EnsureLeague(ctx, 39))
	assert.Len(t, env.gateway.callsTo("leagues"), 1)
}

func TestEnsureLeagueSkipsFetchWhenStored(t *testing.T) {
	env := newTestEnv(trackedConfig())
	env.seedLeague(140, "La Liga", league.TypeLeague)

	require.NoError(t, env.resolver.EnsureLeague(context.Background(), 140))
	assert.Empty(t, env.gateway.callsTo("leagues"))
}

func TestEnsureLeagueUnknownUpstream(t *testing.T) {
	env := newTestEnv(trackedConfig())
	env.gateway.respond("leagues", []apifootball.LeagueEntry{})

	err := env.resolver.EnsureLeague(context.Background(), 9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEnsureTeamsBootstrapsOnce(t *testing.T) {
	pair := config.TrackedLeague{ID: 39, Season: 2025}
	env := newTestEnv(trackedConfig(pair))
	env.gateway.respond("teams", teamPayload(
		apifootball.TeamEntry{
			Team:  apifootball.TeamInfo{ID: 33, Name: "Manchester United"},
			Venue: apifootball.VenueInfo{ID: 556, Name: "Old Trafford", City: "Manchester"},
		},
		apifootball.TeamEntry{
			Team:  apifootball.TeamInfo{ID: 40, Name: "Liverpool"},
			Venue: apifootball.VenueInfo{ID: 550, Name: "Anfield", City: "Liverpool"},
		},
	))
	ctx := context.Background()

	require.NoError(t, env.resolver.EnsureTeams(ctx, pair))
	assert.Equal(t, 2, env.teams.TeamCount())
	assert.Equal(t, 2, env.teams.VenueCount())

	progress, found, err := env.tracking.GetTeamBootstrap(ctx, 39, 2025)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, progress.Completed)

	// The persisted marker short-circuits every later call.
	require.NoError(t, env.resolver.EnsureTeams(ctx, pair))
	assert.Len(t, env.gateway.callsTo("teams"), 1)
}

func TestEnsureTeamsRequiresPair(t *testing.T) {
	env := newTestEnv(trackedConfig())

	err := env.resolver.EnsureTeams(context.Background(), config.TrackedLeague{ID: 39})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestEnsureFixtureDependenciesInsertsVenueStubs(t *testing.T) {
	env := newTestEnv(trackedConfig())
	env.seedTeams(33, 40)

	entry := fixtureEntry(7101, 39, 2025, "NS", testNow.Add(2*time.Hour), 33, 40)
	entry.Fixture.Venue = apifootball.FixtureVenue{ID: 556, Name: "Old Trafford", City: "Manchester"}

	unresolved, err := env.resolver.EnsureFixtureDependencies(context.Background(),
		[]apifootball.FixtureEntry{entry})
	require.NoError(t, err)
	assert.Empty(t, unresolved)
	assert.Equal(t, 1, env.teams.VenueCount())
	assert.Empty(t, env.gateway.calls)
}

func TestEnsureFixtureDependenciesFallsBackToTeamFetch(t *testing.T) {
	env := newTestEnv(trackedConfig())
	env.seedTeams(33)
	env.gateway.respond("teams", teamPayload(apifootball.TeamEntry{
		Team: apifootball.TeamInfo{ID: 999, Name: "Newly Promoted"},
	}))

	entry := fixtureEntry(7101, 39, 2025, "NS", testNow.Add(2*time.Hour), 33, 999)
	unresolved, err := env.resolver.EnsureFixtureDependencies(context.Background(),
		[]apifootball.FixtureEntry{entry})
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	calls := env.gateway.callsTo("teams")
	require.Len(t, calls, 1)
	assert.Equal(t, "999", calls[0].Params["id"])

	_, found, err := env.teams.GetTeamByID(context.Background(), 999)
	require.NoError(t, err)
	assert.True(t, found)
}
