package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for outbound rate limiting.
var (
	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleetstat_rate_limit_wait_seconds",
		Help:    "Time requests spent waiting for a rate limit token",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetstat_rate_limit_blocks_total",
		Help: "Total number of requests blocked by an upstream cooldown",
	})

	upstreamThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetstat_upstream_throttles_total",
		Help: "Total number of 429 responses received from the remote service",
	})
)

// ErrBlocked is returned by Wait while an upstream cooldown is active.
var ErrBlocked = errors.New("request blocked: upstream cooldown active")

// Defaults for the token bucket.
const (
	DefaultRequestsPerSecond = 50
	DefaultBurst             = 100
)

// Config holds limiter configuration.
type Config struct {
	// RequestsPerSecond is the sustained request rate. Zero or less
	// disables the token bucket.
	RequestsPerSecond float64

	// Burst is the bucket size.
	Burst int

	// Redis shares the cooldown between processes. Nil keeps it local.
	Redis *redis.Client
}

// DefaultConfig returns the default limiter configuration.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: DefaultRequestsPerSecond,
		Burst:             DefaultBurst,
	}
}

// Limiter gates outbound requests.
type Limiter struct {
	bucket *rate.Limiter
	redis  *redis.Client
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	local State
}

// NewLimiter creates a limiter.
func NewLimiter(cfg Config, logger zerolog.Logger) *Limiter {
	l := &Limiter{
		redis:  cfg.Redis,
		logger: logger,
		now:    time.Now,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		l.bucket = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return l
}

// GetState returns the current cooldown state. The shared Redis state is
// preferred; a missing key means no cooldown.
func (l *Limiter) GetState(ctx context.Context) (State, error) {
	now := l.now()

	l.mu.Lock()
	state := l.local
	l.mu.Unlock()

	if l.redis == nil {
		state.LastUpdate = now
		return state, nil
	}

	ms, err := l.redis.Get(ctx, RedisKeyBlockedUntil).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return State{}, fmt.Errorf("get blocked until: %w", err)
	}
	if err == nil {
		shared := time.UnixMilli(ms)
		if shared.After(state.BlockedUntil) {
			state.BlockedUntil = shared
		}
	}

	state.LastUpdate = now
	return state, nil
}

// Wait blocks until a request may be sent. It returns ErrBlocked during an
// upstream cooldown and the context error if ctx ends while waiting.
func (l *Limiter) Wait(ctx context.Context) error {
	state, err := l.GetState(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Rate limit state unavailable, continuing with local state")
		l.mu.Lock()
		state = l.local
		l.mu.Unlock()
	}

	if now := l.now(); state.Blocked(now) {
		remaining := state.Remaining(now)
		l.logger.Warn().
			Dur("remaining", remaining).
			Msg("Upstream cooldown active - blocking request")
		rateLimitBlocksTotal.Inc()
		return fmt.Errorf("%w (%s remaining)", ErrBlocked, remaining.Round(time.Second))
	}

	if l.bucket == nil {
		return nil
	}

	start := time.Now()
	err = l.bucket.Wait(ctx)
	rateLimitWaitSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// Observe inspects a response and starts a cooldown on 429.
func (l *Limiter) Observe(ctx context.Context, resp *http.Response) error {
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}

	now := l.now()
	cooldown := ParseRetryAfter(resp.Header.Get("Retry-After"), now)
	until := now.Add(cooldown)

	l.mu.Lock()
	if until.After(l.local.BlockedUntil) {
		l.local.BlockedUntil = until
	}
	l.local.LastUpdate = now
	l.mu.Unlock()

	upstreamThrottlesTotal.Inc()
	l.logger.Error().
		Dur("cooldown", cooldown).
		Time("blocked_until", until).
		Msg("Upstream throttled requests - starting cooldown")

	if l.redis == nil {
		return nil
	}
	value := strconv.FormatInt(until.UnixMilli(), 10)
	if err := l.redis.Set(ctx, RedisKeyBlockedUntil, value, cooldown).Err(); err != nil {
		return fmt.Errorf("store cooldown in redis: %w", err)
	}
	return nil
}
