package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/platinummonkey/beacon/pkg/observability"
)

// DefaultWindow is the rate limit window applied to every API key
const DefaultWindow = time.Hour

// CounterStore is the slice of the Redis store the limiter needs
type CounterStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Decision is the outcome of a single rate limit check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// RateLimiter is a fixed-window counter in Redis, shared by every API
// instance. Each client gets one counter key per window.
type RateLimiter struct {
	store   CounterStore
	window  time.Duration
	prefix  string
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// RateLimiterOption configures a RateLimiter
type RateLimiterOption func(*RateLimiter)

// WithWindow overrides the window length
func WithWindow(window time.Duration) RateLimiterOption {
	return func(rl *RateLimiter) { rl.window = window }
}

// WithLimiterLogger sets the logger
func WithLimiterLogger(logger *observability.Logger) RateLimiterOption {
	return func(rl *RateLimiter) { rl.logger = logger }
}

// WithLimiterMetrics records rejections
func WithLimiterMetrics(metrics *observability.Metrics) RateLimiterOption {
	return func(rl *RateLimiter) { rl.metrics = metrics }
}

// NewRateLimiter creates a Redis-backed rate limiter
func NewRateLimiter(store CounterStore, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		store:  store,
		window: DefaultWindow,
		prefix: "ratelimit",
		logger: observability.NewNopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

func (rl *RateLimiter) key(clientID string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, clientID)
}

// Allow counts one request for clientID against limit. On Redis errors the
// request is allowed and the error returned so the caller can log it.
func (rl *RateLimiter) Allow(ctx context.Context, clientID string, limit int) (Decision, error) {
	key := rl.key(clientID)
	open := Decision{Allowed: true, Limit: limit, Remaining: limit, Reset: rl.now().Add(rl.window)}

	count, err := rl.store.Incr(ctx, key)
	if err != nil {
		return open, fmt.Errorf("rate limit counter: %w", err)
	}

	ttl, err := rl.store.TTL(ctx, key)
	if err != nil {
		return open, fmt.Errorf("rate limit ttl: %w", err)
	}
	// First hit in the window, or a counter that lost its expiry
	if count == 1 || ttl <= 0 {
		if _, err := rl.store.Expire(ctx, key, rl.window); err != nil {
			return open, fmt.Errorf("rate limit expire: %w", err)
		}
		ttl = rl.window
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		Reset:     rl.now().Add(ttl),
	}
	if !d.Allowed && rl.metrics != nil {
		rl.metrics.RateLimitedTotal.Inc()
	}
	return d, nil
}

// writeHeaders sets the X-RateLimit-* headers for d
func (d Decision) writeHeaders(w http.ResponseWriter) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
	if !d.Allowed {
		retry := time.Until(d.Reset).Seconds()
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retry))
	}
}
