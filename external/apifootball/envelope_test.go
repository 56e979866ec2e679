package apifootball

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelopeHappyPath(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"get": "fixtures",
		"parameters": {"league": "39", "season": "2025"},
		"errors": [],
		"results": 1,
		"paging": {"current": 1, "total": 1},
		"response": [{"fixture": {"id": 710556}}]
	}`)

	envelope, err := ParseEnvelope(raw)
	require.NoError(t, err)

	assert.Equal(t, "fixtures", envelope.Get)
	assert.Equal(t, "39", envelope.Parameters["league"])
	assert.True(t, envelope.Errors.Empty())
	assert.Equal(t, 1, envelope.Results)
	assert.Equal(t, 1, envelope.Paging.Total)
	assert.NotEmpty(t, envelope.Response)
}

func TestParseEnvelopeEmptyParametersArray(t *testing.T) {
	t.Parallel()

	envelope, err := ParseEnvelope([]byte(`{"get":"timezone","parameters":[],"errors":[],"results":425,"paging":{"current":1,"total":1},"response":["Africa/Abidjan"]}`))
	require.NoError(t, err)
	assert.Empty(t, envelope.Parameters)
	assert.Equal(t, 425, envelope.Results)
}

func TestParseEnvelopeRejectsForeignJSON(t *testing.T) {
	t.Parallel()

	_, err := ParseEnvelope([]byte(`{"message":"Not Found"}`))
	require.Error(t, err)

	_, err = ParseEnvelope([]byte(`<html>bad gateway</html>`))
	require.Error(t, err)
}

func TestEnvelopeErrorsObjectShape(t *testing.T) {
	t.Parallel()

	envelope, err := ParseEnvelope([]byte(`{"get":"fixtures","parameters":[],"errors":{"token":"Error/Missing application key.","plan":"Feature not available."},"results":0,"paging":{"current":1,"total":1},"response":[]}`))
	require.NoError(t, err)

	require.Len(t, envelope.Errors, 2)
	assert.False(t, envelope.Errors.Empty())
	assert.False(t, envelope.Errors.RateLimited())
	// Keys come back sorted for stable archiving.
	assert.Equal(t, "plan", envelope.Errors[0].Key)
	assert.Equal(t, "token", envelope.Errors[1].Key)
}

func TestEnvelopeErrorsListOfObjects(t *testing.T) {
	t.Parallel()

	var errs EnvelopeErrors
	require.NoError(t, errs.UnmarshalJSON([]byte(`[{"bug":"unexpected"},{"requests":"limit reached"}]`)))
	require.Len(t, errs, 2)
	assert.True(t, errs.RateLimited())
}

func TestEnvelopeErrorsRateLimitKeys(t *testing.T) {
	t.Parallel()

	var minute EnvelopeErrors
	require.NoError(t, minute.UnmarshalJSON([]byte(`{"rateLimit":"Too many requests per minute"}`)))
	assert.True(t, minute.RateLimited())

	var daily EnvelopeErrors
	require.NoError(t, daily.UnmarshalJSON([]byte(`{"requests":"You have reached the request limit for the day"}`)))
	assert.True(t, daily.RateLimited())

	var other EnvelopeErrors
	require.NoError(t, other.UnmarshalJSON([]byte(`{"league":"must be a number"}`)))
	assert.False(t, other.RateLimited())
}

func TestEnvelopeErrorsMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	var errs EnvelopeErrors
	require.NoError(t, errs.UnmarshalJSON([]byte(`{"token":"missing"}`)))

	out, err := errs.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"missing"}`, string(out))
}

func TestDecodeFixturesEntry(t *testing.T) {
	t.Parallel()

	raw := []byte(`[{
		"fixture": {
			"id": 710556,
			"referee": "Anthony Taylor",
			"timezone": "UTC",
			"date": "2026-03-15T15:00:00+00:00",
			"timestamp": 1773932400,
			"periods": {"first": 1773932400, "second": null},
			"venue": {"id": 0, "name": "", "city": ""},
			"status": {"long": "Match Finished", "short": "FT", "elapsed": 90}
		},
		"league": {"id": 39, "name": "Premier League", "country": "England", "season": 2025, "round": "Regular Season - 29"},
		"teams": {"home": {"id": 33, "name": "Manchester United", "winner": true}, "away": {"id": 34, "name": "Newcastle", "winner": false}},
		"goals": {"home": 3, "away": 1},
		"score": {"halftime": {"home": 1, "away": 0}, "fulltime": {"home": 3, "away": 1}, "extratime": {"home": null, "away": null}, "penalty": {"home": null, "away": null}}
	}]`)

	entries, err := DecodeFixtures(raw)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, int64(710556), entry.Fixture.ID)
	assert.Equal(t, "FT", entry.Fixture.Status.Short)
	require.NotNil(t, entry.Fixture.Status.Elapsed)
	assert.Equal(t, 90, *entry.Fixture.Status.Elapsed)

	kickoff := entry.Fixture.KickoffUTC()
	require.NotNil(t, kickoff)
	assert.Equal(t, time.Date(2026, time.March, 15, 15, 0, 0, 0, time.UTC), *kickoff)

	// Venue id zero means the provider does not know the venue.
	assert.Nil(t, entry.Fixture.VenueIDOrNil())

	require.NotNil(t, entry.Goals.Home)
	assert.Equal(t, 3, *entry.Goals.Home)
	assert.Equal(t, int64(33), entry.Teams.Home.ID)
	assert.Equal(t, 2025, entry.League.Season)
}

func TestDecodeStandingsNestedGroups(t *testing.T) {
	t.Parallel()

	raw := []byte(`[{
		"league": {
			"id": 39, "name": "Premier League", "country": "England", "season": 2025,
			"standings": [
				[{"rank": 1, "team": {"id": 50, "name": "Manchester City"}, "points": 70, "goalsDiff": 40, "group": "Premier League", "form": "WWWDW", "status": "same", "description": "Champions League", "all": {"played": 29, "win": 22}, "home": {}, "away": {}, "update": "2026-03-15T00:00:00+00:00"}],
				[{"rank": 1, "team": {"id": 51, "name": "Brighton"}, "points": 55, "goalsDiff": 12, "group": "Group B", "all": {}, "home": {}, "away": {}}]
			]
		}
	}]`)

	entries, err := DecodeStandings(raw)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Len(t, entries[0].League.Standings, 2)

	first := entries[0].League.Standings[0][0]
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, int64(50), first.Team.ID)
	assert.Equal(t, 70, first.Points)
	assert.JSONEq(t, `{"played": 29, "win": 22}`, string(first.All))
}

func TestDecodeTimezones(t *testing.T) {
	t.Parallel()

	zones, err := DecodeTimezones([]byte(`["Africa/Abidjan","Europe/London"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Africa/Abidjan", "Europe/London"}, zones)
}

func TestDecodeTeamSeasonStatsSingleObject(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"league": {"id": 39, "season": 2025},
		"team": {"id": 33, "name": "Manchester United"},
		"form": "WDLWW"
	}`)

	stats, err := DecodeTeamSeasonStats(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(33), stats.Team.ID)
	assert.Equal(t, "WDLWW", stats.Form)
}

func TestNumericStatValue(t *testing.T) {
	t.Parallel()

	v, ok := NumericStatValue("55%")
	require.True(t, ok)
	assert.InDelta(t, 55, v, 0.001)

	v, ok = NumericStatValue(float64(12))
	require.True(t, ok)
	assert.InDelta(t, 12, v, 0.001)

	_, ok = NumericStatValue(nil)
	assert.False(t, ok)

	_, ok = NumericStatValue("n/a")
	assert.False(t, ok)
}

func TestParseProviderTimeFormats(t *testing.T) {
	t.Parallel()

	offset := ParseProviderTime("2026-03-15T18:30:00+03:00")
	require.NotNil(t, offset)
	assert.Equal(t, time.Date(2026, time.March, 15, 15, 30, 0, 0, time.UTC), *offset)

	space := ParseProviderTime("2026-03-15 18:30:00")
	require.NotNil(t, space)

	dateOnly := ParseProviderTime("2026-03-15")
	require.NotNil(t, dateOnly)
	assert.Equal(t, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC), *dateOnly)

	assert.Nil(t, ParseProviderTime(""))
	assert.Nil(t, ParseProviderTime("soon"))
}
