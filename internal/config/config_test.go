package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDocument = `
app:
  env: dev
  service_name: matchwatch-pipeline
  log_level: debug
database:
  url: postgres://localhost:5432/matchwatch?sslmode=disable
  max_open_conns: 20
  conn_max_lifetime: 45m
upstream:
  base_url: https://v3.football.api-sports.io
  api_key: file-key
  timeout: 20s
  max_retries: 4
rate_limits:
  per_minute: 300
  daily_limit: 75000
  emergency_stop_threshold: 7500
tracking:
  leagues:
    - id: 39
      season: 2025
      name: Premier League
    - id: 140
      season: 2025
      name: La Liga
scope_policy:
  baseline_endpoints: [fixtures, fixtures/events, injuries]
  type_defaults:
    cup:
      disabled: [injuries]
  overrides:
    - league: 140
      season: 2025
      endpoint: injuries
      enabled: false
coverage:
  window_hours: 24
  targets:
    - endpoint: fixtures
      max_lag_minutes: 120
jobs:
  static:
    - name: leagues-weekly
      endpoint: leagues
      interval:
        type: cron
        cron: "0 4 * * 1"
  daily:
    - name: fixtures-daily
      endpoint: fixtures
      params:
        date: "{today_utc}"
      interval:
        type: cron
        cron: "30 2 * * *"
  backfill:
    - name: fixtures-backfill
      endpoint: fixtures
      interval:
        type: interval
        seconds: 900
      mode:
        window_days: 14
        max_tasks_per_run: 2
        max_windows_per_task: 4
  reconcile:
    - name: auto-finish
      kind: auto_finish
      interval:
        type: cron
        cron: "0 * * * *"
      mode:
        threshold_hours: 4
        try_fetch_first: true
scheduler:
  timezone: UTC
operator:
  http_addr: ":8090"
`

func TestLoadValidDocument(t *testing.T) {
	cfg, err := Load(strings.NewReader(validDocument))
	require.NoError(t, err)

	assert.Equal(t, EnvDev, cfg.App.Env)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.Equal(t, 45*time.Minute, cfg.Database.ConnMaxLifetime.Std())
	assert.Equal(t, 20*time.Second, cfg.Upstream.Timeout.Std())
	assert.Equal(t, 4, cfg.Upstream.MaxRetries)
	assert.Equal(t, 300, cfg.RateLimits.PerMinute)
	assert.Equal(t, 75000, cfg.RateLimits.DailyLimit)
	assert.Equal(t, 7500, cfg.RateLimits.EmergencyStopThreshold)

	require.Len(t, cfg.Tracking.Leagues, 2)
	assert.Equal(t, int64(39), cfg.Tracking.Leagues[0].ID)
	assert.Equal(t, 2025, cfg.Tracking.Leagues[0].Season)

	require.Len(t, cfg.Jobs.Daily, 1)
	assert.Equal(t, "fixtures-daily", cfg.Jobs.Daily[0].Name)
	assert.True(t, cfg.Jobs.Daily[0].IsEnabled())

	require.Len(t, cfg.Jobs.Reconcile, 1)
	assert.Equal(t, ReconcileAutoFinish, cfg.Jobs.Reconcile[0].Kind)
	assert.True(t, cfg.Jobs.Reconcile[0].Mode.TryFetchFirst)
}

func TestLoadAppliesDefaults(t *testing.T) {
	doc := `
upstream:
  api_key: k
tracking:
  leagues:
    - id: 39
      season: 2025
`
	cfg, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, EnvDev, cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "https://v3.football.api-sports.io", cfg.Upstream.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Upstream.Timeout.Std())
	assert.Equal(t, 300, cfg.RateLimits.PerMinute)
	assert.Equal(t, 24, cfg.Coverage.WindowHours)
	assert.Equal(t, "UTC", cfg.Scheduler.Timezone)
	assert.Equal(t, ":8090", cfg.Operator.HTTPAddr)
	assert.Contains(t, cfg.ScopePolicy.BaselineEndpoints, "fixtures/events")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	doc := `
upstream:
  api_key: k
  retrys: 3
`
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrys")
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	doc := strings.Replace(validDocument, "timeout: 20s", "timeout: fast", 1)
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse duration")
}

func TestLoadRejectsBadCron(t *testing.T) {
	doc := strings.Replace(validDocument, `cron: "30 2 * * *"`, `cron: "99 2 * * *"`, 1)
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse cron")
}

func TestLoadRejectsDuplicateJobNames(t *testing.T) {
	doc := strings.Replace(validDocument, "name: leagues-weekly", "name: fixtures-daily", 1)
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate job name")
}

func TestLoadRejectsUntrackedLeagueFilter(t *testing.T) {
	doc := validDocument + `
`
	doc = strings.Replace(doc, `      params:
        date: "{today_utc}"`, `      params:
        date: "{today_utc}"
      filters:
        tracked_leagues: [999]`, 1)
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "untracked league 999")
}

func TestLoadRejectsUnknownReconcileKind(t *testing.T) {
	doc := strings.Replace(validDocument, "kind: auto_finish", "kind: self_heal", 1)
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestLoadRejectsUnknownTemplate(t *testing.T) {
	doc := strings.Replace(validDocument, `date: "{today_utc}"`, `date: "{next_week}"`, 1)
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown template")
}

func TestLoadRejectsDuplicateTrackedPair(t *testing.T) {
	doc := strings.Replace(validDocument, `    - id: 140
      season: 2025
      name: La Liga`, `    - id: 39
      season: 2025
      name: Premier League Again`, 1)
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate league/season")
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://override:5432/other")
	t.Setenv("APIFOOTBALL_API_KEY", "env-key")
	t.Setenv("SCHEDULER_TIMEZONE", "Europe/London")
	t.Setenv("BACKFILL_MAX_TASKS_PER_RUN", "7")

	cfg, err := Load(strings.NewReader(validDocument))
	require.NoError(t, err)

	assert.Equal(t, "postgres://override:5432/other", cfg.Database.URL)
	assert.Equal(t, "env-key", cfg.Upstream.APIKey)
	assert.Equal(t, "Europe/London", cfg.Scheduler.Timezone)
	require.Len(t, cfg.Jobs.Backfill, 1)
	assert.Equal(t, 7, cfg.Jobs.Backfill[0].Mode.MaxTasksPerRun)
}

func TestAPIKeyRequiredOnlyWithEnabledJobs(t *testing.T) {
	doc := strings.Replace(validDocument, "api_key: file-key", "api_key: \"\"", 1)
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key is required")

	allOff := doc
	for _, name := range []string{"leagues-weekly", "fixtures-daily", "fixtures-backfill", "auto-finish"} {
		allOff = strings.Replace(allOff, "name: "+name, "name: "+name+"\n      enabled: false", 1)
	}
	_, err = Load(strings.NewReader(allOff))
	require.NoError(t, err)
}

func TestLeaguesForJobInheritance(t *testing.T) {
	cfg, err := Load(strings.NewReader(validDocument))
	require.NoError(t, err)

	all := cfg.LeaguesForJob(cfg.Jobs.Daily[0])
	require.Len(t, all, 2)

	filtered := cfg.LeaguesForJob(JobConfig{Filters: FilterConfig{TrackedLeagues: []int64{140}}})
	require.Len(t, filtered, 1)
	assert.Equal(t, int64(140), filtered[0].ID)
}

func TestStaticJobInheritsDailyFilter(t *testing.T) {
	doc := strings.Replace(validDocument, `      params:
        date: "{today_utc}"`, `      params:
        date: "{today_utc}"
      filters:
        tracked_leagues: [39]`, 1)
	cfg, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	require.Len(t, cfg.Jobs.Static, 1)
	assert.Equal(t, []int64{39}, cfg.Jobs.Static[0].Filters.TrackedLeagues)
}

func TestSeasonInference(t *testing.T) {
	doc := strings.Replace(validDocument, `    - name: leagues-weekly
      endpoint: leagues`, `    - name: standings-static
      endpoint: standings
      params:
        season: "{season}"
        league: "{league_id}"`, 1)
	cfg, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 2025, cfg.Jobs.Static[0].Season)

	mixed := strings.Replace(doc, `    - id: 140
      season: 2025`, `    - id: 140
      season: 2024`, 1)
	_, err = Load(strings.NewReader(mixed))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "season is ambiguous")
}

func TestResolveParams(t *testing.T) {
	now := time.Date(2026, time.March, 15, 23, 50, 0, 0, time.UTC)
	league := TrackedLeague{ID: 39, Season: 2025}

	out := ResolveParams(map[string]string{
		"date":   "{today_utc}",
		"from":   "{yesterday_utc}",
		"to":     "{tomorrow_utc}",
		"league": "{league_id}",
		"season": "{season}",
		"status": "NS",
	}, now, league)

	assert.Equal(t, "2026-03-15", out["date"])
	assert.Equal(t, "2026-03-14", out["from"])
	assert.Equal(t, "2026-03-16", out["to"])
	assert.Equal(t, "39", out["league"])
	assert.Equal(t, "2025", out["season"])
	assert.Equal(t, "NS", out["status"])
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "fixtures/events", NormalizeEndpoint("/Fixtures/Events/"))
	assert.Equal(t, "fixtures", NormalizeEndpoint("  fixtures "))
}

func TestFindCoverageTargetFallsBack(t *testing.T) {
	cfg, err := Load(strings.NewReader(validDocument))
	require.NoError(t, err)

	hit := cfg.FindCoverageTarget("fixtures")
	assert.Equal(t, 120, hit.MaxLagMinutes)

	miss := cfg.FindCoverageTarget("standings")
	assert.Equal(t, 1440, miss.MaxLagMinutes)
	assert.Nil(t, miss.ExpectedCount)
}
