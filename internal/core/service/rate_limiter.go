package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/learnhub/identity-service/internal/core/domain"
	"github.com/learnhub/identity-service/internal/core/ports"
)

const (
	DefaultRateLimitWindow = 15 * time.Minute
	DefaultRateLimitMax    = 5
)

// RateLimitPolicy bounds attempts per source within a window.
type RateLimitPolicy struct {
	Window time.Duration
	Max    int
}

// RateLimiter counts attempts per source identifier, independently of any
// principal. The window algorithm lives here; where the counters live is up
// to the injected CounterStore.
type RateLimiter struct {
	store  ports.CounterStore
	policy RateLimitPolicy
	prefix string
	clock  ports.Clock
	log    zerolog.Logger
}

func NewRateLimiter(store ports.CounterStore, policy RateLimitPolicy, prefix string, clock ports.Clock, log zerolog.Logger) *RateLimiter {
	if policy.Window <= 0 {
		policy.Window = DefaultRateLimitWindow
	}
	if policy.Max <= 0 {
		policy.Max = DefaultRateLimitMax
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &RateLimiter{store: store, policy: policy, prefix: prefix, clock: clock, log: log}
}

// Allow records one attempt from source. Once the window holds Max attempts
// every further one is rejected with the seconds left in the window. A
// failing counter store lets the attempt through; per-principal lockout still
// applies.
func (l *RateLimiter) Allow(ctx context.Context, source string) error {
	if source == "" {
		source = "unknown"
	}
	count, resetAt, err := l.store.Increment(ctx, l.prefix+source, l.policy.Window)
	if err != nil {
		l.log.Warn().Err(err).Str("source", source).Msg("rate limit store unavailable, allowing attempt")
		return nil
	}
	if count <= int64(l.policy.Max) {
		return nil
	}
	return &domain.RetryableError{Err: domain.ErrRateLimited, RetryAfter: l.retryAfter(resetAt)}
}

// retryAfter rounds the time left in the window up to whole seconds,
// clamped to [1s, Window].
func (l *RateLimiter) retryAfter(resetAt time.Time) time.Duration {
	d := (resetAt.Sub(l.clock.Now()) + time.Second - 1).Truncate(time.Second)
	return min(max(d, time.Second), l.policy.Window)
}
