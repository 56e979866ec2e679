package config

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/matchwatch/pipeline/internal/platform/logging"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

// Trigger shapes for job intervals.
const (
	IntervalTypeCron     = "cron"
	IntervalTypeInterval = "interval"
)

// Reconcile job kinds, a closed set.
const (
	ReconcileAutoFinish  = "auto_finish"
	ReconcileVerifier    = "verifier"
	ReconcileStaleLive   = "stale_live_refresh"
	ReconcileNSTBD       = "ns_tbd_finalise"
)

// Duration decodes YAML strings like "15s" or "2h" via time.ParseDuration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the validated, immutable snapshot the process boots from.
type Config struct {
	App           AppConfig           `yaml:"app"`
	Database      DatabaseConfig      `yaml:"database"`
	Upstream      UpstreamConfig      `yaml:"upstream"`
	RateLimits    RateLimitsConfig    `yaml:"rate_limits"`
	Tracking      TrackingConfig      `yaml:"tracking"`
	ScopePolicy   ScopePolicyConfig   `yaml:"scope_policy"`
	Coverage      CoverageConfig      `yaml:"coverage"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Operator      OperatorConfig      `yaml:"operator"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type AppConfig struct {
	Env            string `yaml:"env"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	LogLevel       string `yaml:"log_level"`
}

type DatabaseConfig struct {
	URL             string   `yaml:"url"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	MigrationsDir   string   `yaml:"migrations_dir"`
}

type UpstreamConfig struct {
	BaseURL        string   `yaml:"base_url"`
	APIKey         string   `yaml:"api_key"`
	Timeout        Duration `yaml:"timeout"`
	MaxRetries     int      `yaml:"max_retries"`
	BackoffBase    Duration `yaml:"backoff_base"`
	BackoffCeiling Duration `yaml:"backoff_ceiling"`
}

type RateLimitsConfig struct {
	PerMinute              int `yaml:"per_minute"`
	DailyLimit             int `yaml:"daily_limit"`
	EmergencyStopThreshold int `yaml:"emergency_stop_threshold"`
}

type TrackingConfig struct {
	Leagues []TrackedLeague `yaml:"leagues"`
}

type TrackedLeague struct {
	ID     int64  `yaml:"id"`
	Season int    `yaml:"season"`
	Name   string `yaml:"name"`
}

type ScopePolicyConfig struct {
	BaselineEndpoints []string                   `yaml:"baseline_endpoints"`
	TypeDefaults      map[string]TypeScopeConfig `yaml:"type_defaults"`
	Overrides         []ScopeOverride            `yaml:"overrides"`
}

type TypeScopeConfig struct {
	Disabled []string `yaml:"disabled"`
}

type ScopeOverride struct {
	League   int64  `yaml:"league"`
	Season   int    `yaml:"season"`
	Endpoint string `yaml:"endpoint"`
	Enabled  bool   `yaml:"enabled"`
}

type CoverageConfig struct {
	WindowHours int              `yaml:"window_hours"`
	Targets     []CoverageTarget `yaml:"targets"`
}

type CoverageTarget struct {
	Endpoint      string `yaml:"endpoint"`
	MaxLagMinutes int    `yaml:"max_lag_minutes"`
	ExpectedCount *int   `yaml:"expected_count"`
}

type JobsConfig struct {
	Static    []JobConfig `yaml:"static"`
	Daily     []JobConfig `yaml:"daily"`
	Backfill  []JobConfig `yaml:"backfill"`
	Reconcile []JobConfig `yaml:"reconcile"`
	Coverage  []JobConfig `yaml:"coverage"`
}

type JobConfig struct {
	Name     string            `yaml:"name"`
	Enabled  *bool             `yaml:"enabled"`
	Endpoint string            `yaml:"endpoint"`
	Kind     string            `yaml:"kind"`
	Season   int               `yaml:"season"`
	Params   map[string]string `yaml:"params"`
	Interval IntervalConfig    `yaml:"interval"`
	Filters  FilterConfig      `yaml:"filters"`
	Mode     ModeConfig        `yaml:"mode"`
}

// IsEnabled defaults to true when the knob is omitted.
func (j JobConfig) IsEnabled() bool {
	return j.Enabled == nil || *j.Enabled
}

type IntervalConfig struct {
	Type    string `yaml:"type"`
	Cron    string `yaml:"cron"`
	Seconds int    `yaml:"seconds"`
}

type FilterConfig struct {
	TrackedLeagues []int64 `yaml:"tracked_leagues"`
}

// ModeConfig gathers job-local knobs. Zero values fall back to defaults in
// the owning runner.
type ModeConfig struct {
	BatchSize         int  `yaml:"batch_size"`
	WindowDays        int  `yaml:"window_days"`
	MaxTasksPerRun    int  `yaml:"max_tasks_per_run"`
	MaxWindowsPerTask int  `yaml:"max_windows_per_task"`
	TryFetchFirst     bool `yaml:"try_fetch_first"`
	ThresholdHours    int  `yaml:"threshold_hours"`
	SafetyLagHours    int  `yaml:"safety_lag_hours"`
	MaxFixturesPerRun int  `yaml:"max_fixtures_per_run"`
	MinDailyQuota     int  `yaml:"min_daily_quota"`
	StaleAfterMinutes int  `yaml:"stale_after_minutes"`
	MaxAttempts       int  `yaml:"max_attempts"`
	CooldownMinutes   int  `yaml:"cooldown_minutes"`
	PairsPerRun       int  `yaml:"pairs_per_run"`
	DaysAhead         int  `yaml:"days_ahead"`
	DaysBehind        int  `yaml:"days_behind"`
	DryRun            bool `yaml:"dry_run"`
}

type SchedulerConfig struct {
	Timezone string `yaml:"timezone"`
}

type OperatorConfig struct {
	HTTPAddr     string   `yaml:"http_addr"`
	AuthToken    string   `yaml:"auth_token"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

type ObservabilityConfig struct {
	Uptrace   UptraceConfig   `yaml:"uptrace"`
	Pyroscope PyroscopeConfig `yaml:"pyroscope"`
	PprofAddr string          `yaml:"pprof_addr"`
}

type UptraceConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

type PyroscopeConfig struct {
	Enabled       bool     `yaml:"enabled"`
	ServerAddress string   `yaml:"server_address"`
	AppName       string   `yaml:"app_name"`
	AuthToken     string   `yaml:"auth_token"`
	UploadRate    Duration `yaml:"upload_rate"`
}

// LoadFile reads, overrides, resolves, and validates one YAML document.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	return Load(f)
}

// Load decodes a config document. Unknown keys fail loudly.
func Load(r io.Reader) (Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.resolveInheritance(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.App.Env) == "" {
		c.App.Env = EnvDev
	}
	if strings.TrimSpace(c.App.ServiceName) == "" {
		c.App.ServiceName = "matchwatch-pipeline"
	}
	if strings.TrimSpace(c.App.ServiceVersion) == "" {
		c.App.ServiceVersion = "dev"
	}
	if strings.TrimSpace(c.App.LogLevel) == "" {
		c.App.LogLevel = "info"
	}

	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = Duration(30 * time.Minute)
	}

	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		c.Upstream.BaseURL = "https://v3.football.api-sports.io"
	}
	if c.Upstream.Timeout <= 0 {
		c.Upstream.Timeout = Duration(15 * time.Second)
	}
	if c.Upstream.MaxRetries <= 0 {
		c.Upstream.MaxRetries = 3
	}
	if c.Upstream.BackoffBase <= 0 {
		c.Upstream.BackoffBase = Duration(2 * time.Second)
	}
	if c.Upstream.BackoffCeiling <= 0 {
		c.Upstream.BackoffCeiling = Duration(60 * time.Second)
	}

	if c.RateLimits.PerMinute <= 0 {
		c.RateLimits.PerMinute = 300
	}

	if len(c.ScopePolicy.BaselineEndpoints) == 0 {
		c.ScopePolicy.BaselineEndpoints = []string{
			"fixtures",
			"fixtures/events",
			"fixtures/statistics",
			"fixtures/lineups",
			"fixtures/players",
			"injuries",
		}
	}
	for i, e := range c.ScopePolicy.BaselineEndpoints {
		c.ScopePolicy.BaselineEndpoints[i] = NormalizeEndpoint(e)
	}
	for i, o := range c.ScopePolicy.Overrides {
		c.ScopePolicy.Overrides[i].Endpoint = NormalizeEndpoint(o.Endpoint)
	}
	for key, td := range c.ScopePolicy.TypeDefaults {
		for i, e := range td.Disabled {
			td.Disabled[i] = NormalizeEndpoint(e)
		}
		c.ScopePolicy.TypeDefaults[key] = td
	}

	if c.Coverage.WindowHours <= 0 {
		c.Coverage.WindowHours = 24
	}
	for i, target := range c.Coverage.Targets {
		c.Coverage.Targets[i].Endpoint = NormalizeEndpoint(target.Endpoint)
		if target.MaxLagMinutes <= 0 {
			c.Coverage.Targets[i].MaxLagMinutes = 1440
		}
	}

	if strings.TrimSpace(c.Scheduler.Timezone) == "" {
		c.Scheduler.Timezone = "UTC"
	}
	if strings.TrimSpace(c.Operator.HTTPAddr) == "" {
		c.Operator.HTTPAddr = ":8090"
	}
	if c.Operator.ReadTimeout <= 0 {
		c.Operator.ReadTimeout = Duration(10 * time.Second)
	}
	if c.Operator.WriteTimeout <= 0 {
		c.Operator.WriteTimeout = Duration(15 * time.Second)
	}

	if strings.TrimSpace(c.Observability.Pyroscope.AppName) == "" {
		c.Observability.Pyroscope.AppName = c.App.ServiceName
	}
	if c.Observability.Pyroscope.UploadRate <= 0 {
		c.Observability.Pyroscope.UploadRate = Duration(15 * time.Second)
	}

	for _, group := range c.jobGroups() {
		for i := range group {
			group[i].Endpoint = NormalizeEndpoint(group[i].Endpoint)
		}
	}
}

func (c *Config) applyEnvOverrides() {
	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.MigrationsDir = getEnv("MIGRATIONS_DIR", c.Database.MigrationsDir)
	c.Upstream.APIKey = getEnv("APIFOOTBALL_API_KEY", c.Upstream.APIKey)
	c.Scheduler.Timezone = getEnv("SCHEDULER_TIMEZONE", c.Scheduler.Timezone)
	c.Operator.HTTPAddr = getEnv("HTTP_ADDR", c.Operator.HTTPAddr)
	c.App.LogLevel = getEnv("LOG_LEVEL", c.App.LogLevel)
	c.Observability.Uptrace.DSN = getEnv("UPTRACE_DSN", c.Observability.Uptrace.DSN)
	c.Observability.Pyroscope.ServerAddress = getEnv("PYROSCOPE_SERVER_ADDRESS", c.Observability.Pyroscope.ServerAddress)
	c.Observability.Pyroscope.AuthToken = getEnv("PYROSCOPE_AUTH_TOKEN", c.Observability.Pyroscope.AuthToken)

	if v, ok := lookupEnvInt("BACKFILL_MAX_TASKS_PER_RUN"); ok {
		for i := range c.Jobs.Backfill {
			c.Jobs.Backfill[i].Mode.MaxTasksPerRun = v
		}
	}
	if v, ok := lookupEnvInt("BACKFILL_MAX_WINDOWS_PER_TASK"); ok {
		for i := range c.Jobs.Backfill {
			c.Jobs.Backfill[i].Mode.MaxWindowsPerTask = v
		}
	}
}

// resolveInheritance fills derived job fields: static jobs without their own
// league filter inherit the daily set, and a season is inferred only when it
// is unambiguous.
func (c *Config) resolveInheritance() error {
	dailyFilter := c.dailyLeagueFilter()

	for i := range c.Jobs.Static {
		job := &c.Jobs.Static[i]
		if len(job.Filters.TrackedLeagues) == 0 && len(dailyFilter) > 0 {
			job.Filters.TrackedLeagues = append([]int64(nil), dailyFilter...)
		}
		if job.Season == 0 && paramsWantSeason(job.Params) {
			season, ok := c.inferSeason(*job)
			if !ok {
				return fmt.Errorf("job %q: season is ambiguous; set job season or align tracked league seasons", job.Name)
			}
			job.Season = season
		}
	}

	return nil
}

// dailyLeagueFilter returns the union of explicit daily filters, or nil when
// daily jobs run against the full tracked set.
func (c *Config) dailyLeagueFilter() []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, job := range c.Jobs.Daily {
		for _, id := range job.Filters.TrackedLeagues {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Config) inferSeason(job JobConfig) (int, bool) {
	leagues := c.LeaguesForJob(job)
	if len(leagues) == 0 {
		return 0, false
	}
	season := leagues[0].Season
	for _, lg := range leagues[1:] {
		if lg.Season != season {
			return 0, false
		}
	}
	return season, true
}

func paramsWantSeason(params map[string]string) bool {
	for _, v := range params {
		if strings.Contains(v, "{season}") {
			return true
		}
	}
	return false
}

func (c *Config) validate() error {
	if _, err := parseAppEnv(c.App.Env); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.App.LogLevel); err != nil {
		return fmt.Errorf("parse log_level: %w", err)
	}

	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if c.hasEnabledJobs() && strings.TrimSpace(c.Upstream.APIKey) == "" {
		return fmt.Errorf("upstream.api_key is required when jobs are enabled")
	}

	if c.RateLimits.PerMinute <= 0 {
		return fmt.Errorf("rate_limits.per_minute must be > 0")
	}
	if c.RateLimits.DailyLimit < 0 {
		return fmt.Errorf("rate_limits.daily_limit must be >= 0")
	}
	if c.RateLimits.EmergencyStopThreshold < 0 {
		return fmt.Errorf("rate_limits.emergency_stop_threshold must be >= 0")
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("parse scheduler.timezone: %w", err)
	}

	seen := make(map[string]bool, len(c.Tracking.Leagues))
	for _, lg := range c.Tracking.Leagues {
		if lg.ID <= 0 {
			return fmt.Errorf("tracking: league id must be > 0, got %d", lg.ID)
		}
		if lg.Season < 1900 {
			return fmt.Errorf("tracking: league %d season %d is not a calendar year", lg.ID, lg.Season)
		}
		key := fmt.Sprintf("%d:%d", lg.ID, lg.Season)
		if seen[key] {
			return fmt.Errorf("tracking: duplicate league/season pair %s", key)
		}
		seen[key] = true
	}

	names := make(map[string]bool)
	for groupName, group := range map[string][]JobConfig{
		"static":    c.Jobs.Static,
		"daily":     c.Jobs.Daily,
		"backfill":  c.Jobs.Backfill,
		"reconcile": c.Jobs.Reconcile,
		"coverage":  c.Jobs.Coverage,
	} {
		for _, job := range group {
			if err := c.validateJob(groupName, job, names); err != nil {
				return err
			}
		}
	}

	return nil
}

func (c *Config) validateJob(group string, job JobConfig, names map[string]bool) error {
	name := strings.TrimSpace(job.Name)
	if name == "" {
		return fmt.Errorf("jobs.%s: job name is required", group)
	}
	if names[name] {
		return fmt.Errorf("jobs.%s: duplicate job name %q", group, name)
	}
	names[name] = true

	switch group {
	case "reconcile":
		switch job.Kind {
		case ReconcileAutoFinish, ReconcileVerifier, ReconcileStaleLive, ReconcileNSTBD:
		default:
			return fmt.Errorf("jobs.reconcile %q: unknown kind %q", name, job.Kind)
		}
	case "coverage":
		// Coverage refresh runs against the store, not an endpoint.
	default:
		if strings.TrimSpace(job.Endpoint) == "" {
			return fmt.Errorf("jobs.%s %q: endpoint is required", group, name)
		}
	}
	switch job.Interval.Type {
	case IntervalTypeCron:
		if _, err := cron.ParseStandard(job.Interval.Cron); err != nil {
			return fmt.Errorf("jobs.%s %q: parse cron %q: %w", group, name, job.Interval.Cron, err)
		}
	case IntervalTypeInterval:
		if job.Interval.Seconds <= 0 {
			return fmt.Errorf("jobs.%s %q: interval.seconds must be > 0", group, name)
		}
	default:
		return fmt.Errorf("jobs.%s %q: unknown interval.type %q", group, name, job.Interval.Type)
	}

	for key, value := range job.Params {
		if err := validateParamTemplate(value); err != nil {
			return fmt.Errorf("jobs.%s %q: param %s: %w", group, name, key, err)
		}
	}

	tracked := make(map[int64]bool, len(c.Tracking.Leagues))
	for _, lg := range c.Tracking.Leagues {
		tracked[lg.ID] = true
	}
	for _, id := range job.Filters.TrackedLeagues {
		if !tracked[id] {
			return fmt.Errorf("jobs.%s %q: filter references untracked league %d", group, name, id)
		}
	}

	return nil
}

func (c *Config) hasEnabledJobs() bool {
	for _, group := range c.jobGroups() {
		for _, job := range group {
			if job.IsEnabled() {
				return true
			}
		}
	}
	return false
}

func (c *Config) jobGroups() [][]JobConfig {
	return [][]JobConfig{c.Jobs.Static, c.Jobs.Daily, c.Jobs.Backfill, c.Jobs.Reconcile, c.Jobs.Coverage}
}

// LeaguesForJob resolves the tracked pairs a job operates on: its explicit
// filter when present, the full tracked set otherwise.
func (c *Config) LeaguesForJob(job JobConfig) []TrackedLeague {
	if len(job.Filters.TrackedLeagues) == 0 {
		out := make([]TrackedLeague, len(c.Tracking.Leagues))
		copy(out, c.Tracking.Leagues)
		return out
	}

	wanted := make(map[int64]bool, len(job.Filters.TrackedLeagues))
	for _, id := range job.Filters.TrackedLeagues {
		wanted[id] = true
	}

	out := make([]TrackedLeague, 0, len(job.Filters.TrackedLeagues))
	for _, lg := range c.Tracking.Leagues {
		if wanted[lg.ID] {
			out = append(out, lg)
		}
	}
	return out
}

// FindCoverageTarget returns the target for an endpoint, falling back to a
// freshness-only default.
func (c *Config) FindCoverageTarget(endpoint string) CoverageTarget {
	endpoint = NormalizeEndpoint(endpoint)
	for _, target := range c.Coverage.Targets {
		if target.Endpoint == endpoint {
			return target
		}
	}
	return CoverageTarget{Endpoint: endpoint, MaxLagMinutes: 1440}
}

// NormalizeEndpoint canonicalises an upstream path: no leading slash, lower
// case, inner slashes preserved.
func NormalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	endpoint = strings.Trim(endpoint, "/")
	return strings.ToLower(endpoint)
}

func parseAppEnv(v string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case EnvDev:
		return EnvDev, nil
	case EnvStage:
		return EnvStage, nil
	case EnvProd:
		return EnvProd, nil
	default:
		return "", fmt.Errorf("invalid app.env %q (want %s|%s|%s)", v, EnvDev, EnvStage, EnvProd)
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func lookupEnvInt(key string) (int, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return 0, false
	}
	var parsed int
	if _, err := fmt.Sscanf(strings.TrimSpace(value), "%d", &parsed); err != nil {
		return 0, false
	}
	return parsed, true
}
