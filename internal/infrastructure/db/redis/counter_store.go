package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/learnhub/identity-service/internal/core/ports"
)

// incrementScript bumps the counter and starts the window on the first hit.
// A key that somehow lost its TTL gets a fresh one instead of living forever.
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// CounterStore shares rate-limit windows between instances through Redis.
// Key format: <prefix>:<key>
type CounterStore struct {
	client redis.UniversalClient
	prefix string
	clock  ports.Clock
}

// NewCounterStore creates a CounterStore wrapping the given Redis client.
func NewCounterStore(client redis.UniversalClient, prefix string, clock ports.Clock) *CounterStore {
	if prefix == "" {
		prefix = "rl"
	}
	return &CounterStore{client: client, prefix: prefix, clock: clock}
}

func (s *CounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{s.key(key)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("rate limit increment: %w", err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("rate limit increment: unexpected reply %v", res)
	}
	return res[0], s.clock.Now().Add(time.Duration(res[1]) * time.Millisecond), nil
}

func (s *CounterStore) key(key string) string {
	return s.prefix + ":" + key
}
