package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/learnhub/identity-service/internal/core/domain"
	"github.com/learnhub/identity-service/internal/infrastructure/memory"
)

type failingCounter struct{}

func (failingCounter) Increment(context.Context, string, time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("connection refused")
}

func TestRateLimiter_AllowsUpToMax(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(memory.NewCounterStore(clock), RateLimitPolicy{Window: time.Minute, Max: 3}, "t:", clock, zerolog.Nop())
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := limiter.Allow(ctx, "1.2.3.4"); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	clock.Advance(20*time.Second + 300*time.Millisecond)

	err := limiter.Allow(ctx, "1.2.3.4")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected RateLimited, got: %v", err)
	}
	// 39.7s left rounds up to 40s
	if wait, _ := domain.RetryAfter(err); wait != 40*time.Second {
		t.Errorf("expected 40s, got %s", wait)
	}
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	var buf bytes.Buffer
	limiter := NewRateLimiter(failingCounter{}, RateLimitPolicy{Max: 1}, "t:", nil, zerolog.New(&buf))
	for range 3 {
		if err := limiter.Allow(context.Background(), "src"); err != nil {
			t.Fatalf("expected fail-open, got: %v", err)
		}
	}

	line, _, _ := bytes.Cut(buf.Bytes(), []byte("\n"))
	var entry map[string]any
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("expected a JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["level"] != "warn" {
		t.Errorf("expected degraded store to log at warn, got %v", entry["level"])
	}
}

func TestRateLimiter_RetryAfterIsClamped(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(nil, RateLimitPolicy{Window: time.Minute, Max: 1}, "", clock, zerolog.Nop())

	if got := limiter.retryAfter(clock.Now()); got != time.Second {
		t.Errorf("expected 1s floor, got %s", got)
	}
	if got := limiter.retryAfter(clock.Now().Add(time.Hour)); got != time.Minute {
		t.Errorf("expected window ceiling, got %s", got)
	}
}
