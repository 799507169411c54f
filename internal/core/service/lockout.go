package service

import (
	"context"
	"fmt"

	"github.com/learnhub/identity-service/internal/core/domain"
	"github.com/learnhub/identity-service/internal/core/ports"
)

const maxCASAttempts = 5

// LockoutTracker applies the per-principal lockout policy. State lives on the
// principal record and is only ever moved by compare-and-swap.
type LockoutTracker struct {
	policy domain.LockoutPolicy
	clock  ports.Clock
}

func NewLockoutTracker(policy domain.LockoutPolicy, clock ports.Clock) *LockoutTracker {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = domain.DefaultMaxFailedAttempts
	}
	if policy.Duration <= 0 {
		policy.Duration = domain.DefaultLockDuration
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &LockoutTracker{policy: policy, clock: clock}
}

// Gate rejects any attempt against a principal inside a lock window,
// regardless of the password. An elapsed lock lets the attempt through.
func (t *LockoutTracker) Gate(p *domain.Principal) error {
	now := t.clock.Now()
	if !p.IsLocked(now) {
		return nil
	}
	return &domain.RetryableError{Err: domain.ErrAccountLocked, RetryAfter: p.Login.LockUntil.Sub(now)}
}

// RecordFailure counts one failed attempt and reports whether it engaged
// the lock. p is refreshed from the store when a concurrent writer wins the
// swap.
func (t *LockoutTracker) RecordFailure(ctx context.Context, store ports.CredentialStore, p *domain.Principal) (bool, error) {
	current := p
	for range maxCASAttempts {
		now := t.clock.Now()
		if current.IsLocked(now) {
			// a concurrent failure already locked the account
			return false, nil
		}
		next, engaged := t.policy.AfterFailure(current.Login, now)
		ok, err := store.CompareAndSwapLoginState(ctx, current.ID, current.Login, next)
		if err != nil {
			return false, fmt.Errorf("record login failure: %w", err)
		}
		if ok {
			p.Login = next
			return engaged, nil
		}
		current, err = store.FindByID(ctx, p.ID)
		if err != nil {
			return false, fmt.Errorf("record login failure: %w", err)
		}
	}
	return false, fmt.Errorf("record login failure: %w", domain.ErrConflict)
}

// RecordSuccess resets the counter and clears any lock.
func (t *LockoutTracker) RecordSuccess(ctx context.Context, store ports.CredentialStore, p *domain.Principal) error {
	now := t.clock.Now()
	if err := store.ResetLoginState(ctx, p.ID, now); err != nil {
		return fmt.Errorf("reset login state: %w", err)
	}
	p.Login = domain.LoginState{}
	p.LastLoginAt = &now
	return nil
}
