package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrEmergencyStop is returned by Acquire when the observed daily remaining
// has fallen below the configured threshold. Callers abort the current run;
// the process keeps running and recovers once the provider quota resets.
var ErrEmergencyStop = errors.New("daily quota emergency stop")

type Config struct {
	// PerMinute is the upstream per-minute request cap C. The bucket refills
	// at C/60 tokens per second and never holds more than C tokens.
	PerMinute int
	// DailyLimit seeds the daily counter until headers report the real one.
	DailyLimit int
	// EmergencyStopThreshold halts all upstream calls while the daily
	// remaining sits below it.
	EmergencyStopThreshold int
}

// Telemetry carries quota fields observed on one upstream response.
// Negative values mean the header was absent.
type Telemetry struct {
	DailyLimit      int
	DailyRemaining  int
	MinuteLimit     int
	MinuteRemaining int
	// RateLimited marks an HTTP 429 or an envelope-level rate-limit error;
	// both drain the local bucket entirely.
	RateLimited bool
}

// Usage is a point-in-time view for introspection surfaces.
type Usage struct {
	MinuteCapacity         int       `json:"minute_capacity"`
	MinuteTokens           float64   `json:"minute_tokens"`
	MinuteLimitObserved    int       `json:"minute_limit_observed"`
	DailyLimit             int       `json:"daily_limit"`
	DailyRemaining         int       `json:"daily_remaining"`
	DailyKnown             bool      `json:"daily_known"`
	EmergencyStopThreshold int       `json:"emergency_stop_threshold"`
	EmergencyStopped       bool      `json:"emergency_stopped"`
	LastObservedAt         time.Time `json:"last_observed_at"`
}

// Governor serialises all upstream traffic behind one token bucket and a
// best-effort daily counter. The bucket starts empty so a restart cannot
// burst into a minute that upstream already counted.
type Governor struct {
	limiter *rate.Limiter

	mu             sync.Mutex
	perMinute      int
	minuteObserved int
	dailyLimit     int
	dailyRemaining int
	dailyKnown     bool
	threshold      int
	lastObservedAt time.Time
	now            func() time.Time
}

func NewGovernor(cfg Config) *Governor {
	perMinute := cfg.PerMinute
	if perMinute < 1 {
		perMinute = 1
	}

	g := &Governor{
		limiter:        rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		perMinute:      perMinute,
		minuteObserved: -1,
		dailyLimit:     cfg.DailyLimit,
		dailyRemaining: cfg.DailyLimit,
		dailyKnown:     cfg.DailyLimit > 0,
		threshold:      cfg.EmergencyStopThreshold,
		now:            time.Now,
	}

	// Drain the initial burst: a fresh process owns zero tokens.
	g.limiter.ReserveN(g.now(), perMinute)

	return g
}

// Acquire blocks until one request token is available or ctx is cancelled.
// It fails immediately with ErrEmergencyStop while the daily interlock holds.
func (g *Governor) Acquire(ctx context.Context) error {
	if err := g.checkEmergencyStop(); err != nil {
		return err
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("acquire rate token: %w", err)
	}

	g.mu.Lock()
	if g.dailyKnown && g.dailyRemaining > 0 {
		g.dailyRemaining--
	}
	g.mu.Unlock()

	return nil
}

func (g *Governor) checkEmergencyStop() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dailyKnown && g.threshold > 0 && g.dailyRemaining < g.threshold {
		return fmt.Errorf("%w: daily_remaining=%d threshold=%d", ErrEmergencyStop, g.dailyRemaining, g.threshold)
	}

	return nil
}

// Observe folds one response's quota telemetry into the local estimate.
// The daily counter tracks headers in both directions (it rises on quota
// reset); the per-minute bucket only ever clamps down.
func (g *Governor) Observe(t Telemetry) {
	now := g.clockNow()

	g.mu.Lock()
	g.lastObservedAt = now
	if t.DailyLimit > 0 {
		g.dailyLimit = t.DailyLimit
	}
	if t.DailyRemaining >= 0 {
		g.dailyRemaining = t.DailyRemaining
		g.dailyKnown = true
	}
	if t.MinuteLimit > 0 {
		g.minuteObserved = t.MinuteLimit
	}
	g.mu.Unlock()

	if t.RateLimited {
		g.clampTokens(now, 0)
		return
	}
	if t.MinuteRemaining >= 0 {
		g.clampTokens(now, float64(t.MinuteRemaining))
	}
}

func (g *Governor) clampTokens(now time.Time, observed float64) {
	local := g.limiter.TokensAt(now)
	if local <= observed {
		return
	}

	burn := int(math.Ceil(local - observed))
	if burn > g.perMinute {
		burn = g.perMinute
	}
	if burn > 0 {
		g.limiter.ReserveN(now, burn)
	}
}

// Snapshot reports current quota state for the operator channel.
func (g *Governor) Snapshot() Usage {
	now := g.clockNow()

	g.mu.Lock()
	defer g.mu.Unlock()

	tokens := g.limiter.TokensAt(now)
	if tokens < 0 {
		tokens = 0
	}

	return Usage{
		MinuteCapacity:         g.perMinute,
		MinuteTokens:           tokens,
		MinuteLimitObserved:    g.minuteObserved,
		DailyLimit:             g.dailyLimit,
		DailyRemaining:         g.dailyRemaining,
		DailyKnown:             g.dailyKnown,
		EmergencyStopThreshold: g.threshold,
		EmergencyStopped:       g.dailyKnown && g.threshold > 0 && g.dailyRemaining < g.threshold,
		LastObservedAt:         g.lastObservedAt,
	}
}

// DailyRemaining reports the latest daily estimate; ok is false until the
// first observation (or config seed) establishes one.
func (g *Governor) DailyRemaining() (remaining int, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.dailyRemaining, g.dailyKnown
}

func (g *Governor) clockNow() time.Time {
	g.mu.Lock()
	nowFn := g.now
	g.mu.Unlock()

	return nowFn()
}
