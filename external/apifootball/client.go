package apifootball

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"

	"github.com/matchwatch/pipeline/internal/domain/rawdata"
	"github.com/matchwatch/pipeline/internal/platform/logging"
	"github.com/matchwatch/pipeline/internal/platform/ratelimit"
	"github.com/matchwatch/pipeline/internal/platform/resilience"
)

const (
	defaultBaseURL = "https://v3.football.api-sports.io"
	authHeader     = "x-apisports-key"
	maxBodyBytes   = 8 << 20

	headerDailyLimit      = "x-ratelimit-requests-limit"
	headerDailyRemaining  = "x-ratelimit-requests-remaining"
	headerMinuteLimit     = "X-RateLimit-Limit"
	headerMinuteRemaining = "X-RateLimit-Remaining"
)

var apiKeyHeaderRegex = regexp.MustCompile(`(?i)x-apisports-key[=: ][^&\s"']+`)

// ErrUpstreamUnavailable is returned while a circuit is open.
var ErrUpstreamUnavailable = crerr.New("api-football upstream unavailable")

var errTransient = crerr.New("api-football transient failure")

// QuotaGovernor gates request starts and absorbs quota telemetry.
type QuotaGovernor interface {
	Acquire(ctx context.Context) error
	Observe(t ratelimit.Telemetry)
}

// Archiver persists one raw response per received HTTP reply. The archive
// write happens before a Result is surfaced, so there is never derived state
// without its source row.
type Archiver interface {
	Append(ctx context.Context, rec rawdata.Record) (int64, error)
}

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffCeiling time.Duration
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
	Governor       QuotaGovernor
	Archive        Archiver
}

// Client is the single upstream surface: GET only, one envelope shape, every
// reply archived and classified.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	maxRetries     int
	backoffBase    time.Duration
	backoffCeiling time.Duration
	logger         *logging.Logger
	breakers       *resilience.BreakerSet
	circuitEnabled bool
	flight         resilience.SingleFlight
	governor       QuotaGovernor
	archive        Archiver
	now            func() time.Time
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = 2 * time.Second
	}
	backoffCeiling := cfg.BackoffCeiling
	if backoffCeiling < backoffBase {
		backoffCeiling = 60 * time.Second
	}

	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         strings.TrimSpace(cfg.APIKey),
		maxRetries:     maxInt(cfg.MaxRetries, 0),
		backoffBase:    backoffBase,
		backoffCeiling: backoffCeiling,
		logger:         logger,
		breakers:       resilience.NewBreakerSet(cfg.CircuitBreaker),
		circuitEnabled: breakerCfg.Enabled,
		governor:       cfg.Governor,
		archive:        cfg.Archive,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Result is the classified outcome of one upstream call after retries.
type Result struct {
	Outcome    string
	StatusCode int
	Endpoint   string
	Params     string
	RawID      int64
	Envelope   *Envelope
	Results    int
	Telemetry  ratelimit.Telemetry
	Attempts   int
}

func (r Result) OK() bool { return r.Outcome == rawdata.OutcomeOK }

// RetryableOutcome reports whether another attempt can change the answer.
// Auth, client, and envelope errors are deterministic; retrying them only
// burns quota.
func RetryableOutcome(outcome string) bool {
	switch outcome {
	case rawdata.OutcomeRateLimited, rawdata.OutcomeServerError:
		return true
	default:
		return false
	}
}

// BreakerStates exposes per-family circuit states for the status surface.
func (c *Client) BreakerStates() map[string]resilience.CircuitState {
	return c.breakers.States()
}

// Get performs one upstream call. Identical concurrent calls collapse into a
// single HTTP request, and therefore a single archive row.
func (c *Client) Get(ctx context.Context, endpoint string, params map[string]string) (Result, error) {
	endpoint = strings.Trim(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return Result{}, fmt.Errorf("endpoint is required")
	}

	canonical := canonicalQuery(params)
	flightKey := endpoint + "?" + canonical

	out, err, _ := c.flight.Do(flightKey, func() (any, error) {
		return c.execute(ctx, endpoint, params, canonical)
	})
	if err != nil {
		return Result{}, err
	}

	res, ok := out.(Result)
	if !ok {
		return Result{}, fmt.Errorf("unexpected response payload type %T", out)
	}
	return res, nil
}

func (c *Client) execute(ctx context.Context, endpoint string, params map[string]string, canonical string) (Result, error) {
	family := endpointFamily(endpoint)
	breaker := c.breakers.For(family)

	fullURL := c.baseURL + "/" + endpoint
	if canonical != "" {
		fullURL += "?" + canonical
	}

	var last Result
	haveResult := false
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleepBackoff(ctx, attempt); err != nil {
				return Result{}, err
			}
		}

		if c.circuitEnabled {
			if err := breaker.Allow(); err != nil {
				c.logger.WarnContext(ctx, "api-football circuit breaker rejected request",
					"endpoint", endpoint, "family", family, "state", breaker.State())
				return Result{}, fmt.Errorf("%w: circuit open for %s", ErrUpstreamUnavailable, family)
			}
		}

		if c.governor != nil {
			if err := c.governor.Acquire(ctx); err != nil {
				return Result{}, fmt.Errorf("acquire quota for %s: %w", endpoint, err)
			}
		}

		res, err := c.attempt(ctx, endpoint, canonical, fullURL, params)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			if c.circuitEnabled {
				breaker.RecordFailure()
			}
			lastErr = err
			continue
		}

		res.Attempts = attempt + 1
		last = res
		haveResult = true
		lastErr = nil

		if c.governor != nil {
			c.governor.Observe(res.Telemetry)
		}
		if c.circuitEnabled {
			switch res.Outcome {
			case rawdata.OutcomeServerError:
				breaker.RecordFailure()
			case rawdata.OutcomeRateLimited:
				// Quota, not health. The breaker stays out of it.
			default:
				breaker.RecordSuccess()
			}
		}

		if !RetryableOutcome(res.Outcome) {
			return res, nil
		}
		c.logger.WarnContext(ctx, "api-football retryable response",
			"endpoint", endpoint, "status", res.StatusCode, "outcome", res.Outcome, "attempt", attempt+1)
	}

	if haveResult {
		return last, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("provider request failed")
	}
	c.logger.WarnContext(ctx, "api-football request failed",
		"endpoint", endpoint, "error", redactText(lastErr.Error(), c.apiKey))
	return Result{}, fmt.Errorf("request %s failed after %d attempts: %w", endpoint, c.maxRetries+1, lastErr)
}

func (c *Client) attempt(ctx context.Context, endpoint, canonical, fullURL string, params map[string]string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set(authHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: send request: %s", errTransient, redactText(err.Error(), c.apiKey))
	}

	buf := bytebufferpool.Get()
	_, readErr := buf.ReadFrom(io.LimitReader(resp.Body, maxBodyBytes))
	_ = resp.Body.Close()
	if readErr != nil {
		bytebufferpool.Put(buf)
		return Result{}, fmt.Errorf("%w: read response body: %v", errTransient, readErr)
	}
	raw := append([]byte(nil), buf.B...)
	bytebufferpool.Put(buf)

	telemetry := parseTelemetry(resp.Header)
	envelope, outcome := classify(resp.StatusCode, raw)
	telemetry.RateLimited = outcome == rawdata.OutcomeRateLimited

	res := Result{
		Outcome:    outcome,
		StatusCode: resp.StatusCode,
		Endpoint:   endpoint,
		Params:     canonical,
		Envelope:   envelope,
		Telemetry:  telemetry,
	}
	if envelope != nil {
		res.Results = envelope.Results
	}

	if c.archive != nil {
		rec := buildRecord(endpoint, canonical, params, resp.StatusCode, resp.Header, raw, envelope, outcome, c.now())
		id, err := c.archive.Append(ctx, rec)
		if err != nil {
			return Result{}, fmt.Errorf("archive raw response for %s: %w", endpoint, err)
		}
		res.RawID = id
	}

	return res, nil
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	delay := c.backoffBase << (attempt - 1)
	if delay > c.backoffCeiling {
		delay = c.backoffCeiling
	}
	// Half fixed, half jitter, so synchronised workers spread out.
	delay = delay/2 + time.Duration(rand.Int63n(int64(delay/2)+1))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// classify maps one HTTP reply onto the closed outcome set. The provider
// reports most faults inside a 200 envelope, so the body decides whenever
// the status code does not.
func classify(status int, raw []byte) (*Envelope, string) {
	switch {
	case status == http.StatusTooManyRequests:
		envelope, _ := ParseEnvelope(raw)
		return envelope, rawdata.OutcomeRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		envelope, _ := ParseEnvelope(raw)
		return envelope, rawdata.OutcomeAuthFailed
	case status >= 500:
		envelope, _ := ParseEnvelope(raw)
		return envelope, rawdata.OutcomeServerError
	case status >= 400:
		envelope, _ := ParseEnvelope(raw)
		return envelope, rawdata.OutcomeClientError
	case status >= 300:
		envelope, _ := ParseEnvelope(raw)
		return envelope, rawdata.OutcomeServerError
	}

	envelope, err := ParseEnvelope(raw)
	if err != nil {
		return nil, rawdata.OutcomeServerError
	}
	switch {
	case envelope.Errors.RateLimited():
		return envelope, rawdata.OutcomeRateLimited
	case !envelope.Errors.Empty():
		return envelope, rawdata.OutcomeEnvelopeError
	default:
		return envelope, rawdata.OutcomeOK
	}
}

func buildRecord(endpoint, canonical string, params map[string]string, status int, headers http.Header, body []byte, envelope *Envelope, outcome string, fetchedAt time.Time) rawdata.Record {
	rec := rawdata.Record{
		Endpoint:   endpoint,
		Params:     canonical,
		StatusCode: status,
		Body:       body,
		Outcome:    outcome,
		FetchedAt:  fetchedAt,
	}
	rec.LeagueID, rec.Season = deriveScope(params)

	if headersJSON, err := sonic.Marshal(headers); err == nil {
		rec.HeadersJSON = headersJSON
	}
	if envelope != nil {
		rec.Results = envelope.Results
		if !envelope.Errors.Empty() {
			if errorsJSON, err := sonic.Marshal(envelope.Errors); err == nil {
				rec.ErrorsJSON = errorsJSON
			}
		}
	}
	return rec
}

// deriveScope lifts league/season params into typed columns so archive
// queries can filter without parsing query strings.
func deriveScope(params map[string]string) (*int64, *int) {
	var leagueID *int64
	if v, ok := params["league"]; ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && n > 0 {
			leagueID = &n
		}
	}
	var season *int
	if v, ok := params["season"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			season = &n
		}
	}
	return leagueID, season
}

func parseTelemetry(h http.Header) ratelimit.Telemetry {
	return ratelimit.Telemetry{
		DailyLimit:      headerInt(h, headerDailyLimit),
		DailyRemaining:  headerInt(h, headerDailyRemaining),
		MinuteLimit:     headerInt(h, headerMinuteLimit),
		MinuteRemaining: headerInt(h, headerMinuteRemaining),
	}
}

func headerInt(h http.Header, key string) int {
	raw := strings.TrimSpace(h.Get(key))
	if raw == "" {
		return -1
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return -1
	}
	return v
}

// canonicalQuery renders params sorted by key, so the same logical request
// always archives and deduplicates under the same string.
func canonicalQuery(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	values := url.Values{}
	for key, value := range params {
		values.Set(key, value)
	}
	return values.Encode()
}

// endpointFamily groups endpoints by first path segment so one failing
// family cannot trip the breaker for the rest.
func endpointFamily(endpoint string) string {
	if idx := strings.IndexByte(endpoint, '/'); idx > 0 {
		return endpoint[:idx]
	}
	return endpoint
}

func redactText(value, secret string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	if secret != "" {
		value = strings.ReplaceAll(value, secret, "REDACTED")
	}
	return apiKeyHeaderRegex.ReplaceAllString(value, authHeader+"=REDACTED")
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
