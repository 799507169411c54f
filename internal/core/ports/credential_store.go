package ports

import (
	"context"
	"time"

	"github.com/learnhub/identity-service/internal/core/domain"
)

// CredentialStore is the persistence capability shared by both principal
// kinds. Every mutating method is a single atomic store-level update so that
// concurrent logins, refreshes and logouts of one principal never race
// through a read-modify-write.
type CredentialStore interface {
	// Kind reports which principal kind this store holds.
	Kind() domain.Kind

	Create(ctx context.Context, p *domain.Principal) (*domain.Principal, error)
	FindByID(ctx context.Context, id string) (*domain.Principal, error)
	FindByEmail(ctx context.Context, email string) (*domain.Principal, error)

	// CompareAndSwapLoginState writes next only if the stored login state
	// still equals expected. It reports false when another writer won.
	CompareAndSwapLoginState(ctx context.Context, id string, expected, next domain.LoginState) (bool, error)
	// ResetLoginState zeroes the failure counter, clears the lock and stamps
	// the last successful login.
	ResetLoginState(ctx context.Context, id string, at time.Time) error

	PushRefreshToken(ctx context.Context, id string, entry domain.RefreshTokenEntry) error
	// ReplaceRefreshToken swaps the live entry old for next in one update.
	// It returns domain.ErrTokenNotRecognized when old is absent or expired.
	ReplaceRefreshToken(ctx context.Context, id, old string, next domain.RefreshTokenEntry, now time.Time) error
	PullRefreshToken(ctx context.Context, id, token string) error
	ClearRefreshTokens(ctx context.Context, id string) error
	PurgeExpiredRefreshTokens(ctx context.Context, id string, now time.Time) error

	SetActive(ctx context.Context, id string, active bool) error
}

// CounterStore backs the rate limiter's fixed windows. The in-process
// implementation suits a single instance; a shared one (Redis) coordinates
// several.
type CounterStore interface {
	// Increment records one hit for key and returns the hit count of the
	// current window, including this one, and the time the window resets.
	// A window starts at the first hit after the previous one elapsed.
	Increment(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Clock is the time source of the core. Tests inject a controllable one.
type Clock interface {
	Now() time.Time
}
