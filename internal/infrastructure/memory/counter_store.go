package memory

import (
	"context"
	"sync"
	"time"

	"github.com/learnhub/identity-service/internal/core/ports"
)

const sweepThreshold = 5000

type window struct {
	count int64
	start time.Time
	ttl   time.Duration
}

// CounterStore keeps rate-limit windows in process memory. Counters are not
// shared between instances.
type CounterStore struct {
	clock ports.Clock

	mu      sync.Mutex
	windows map[string]*window
}

// NewCounterStore creates a store reading time from clock.
func NewCounterStore(clock ports.Clock) *CounterStore {
	return &CounterStore{clock: clock, windows: make(map[string]*window)}
}

func (s *CounterStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, time.Time, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.start.Add(w.ttl)) {
		w = &window{start: now, ttl: ttl}
		s.windows[key] = w
	}
	w.count++

	if len(s.windows) > sweepThreshold {
		s.sweep(now)
	}
	return w.count, w.start.Add(w.ttl), nil
}

// size reports the number of tracked windows, elapsed ones included.
func (s *CounterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// sweep drops elapsed windows. Caller holds mu.
func (s *CounterStore) sweep(now time.Time) {
	for key, w := range s.windows {
		if !now.Before(w.start.Add(w.ttl)) {
			delete(s.windows, key)
		}
	}
}
