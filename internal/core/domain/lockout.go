package domain

import "time"

const (
	DefaultMaxFailedAttempts = 5
	DefaultLockDuration      = 2 * time.Hour
)

// LockoutPolicy parameterises the per-principal lockout state machine:
// Unlocked(n) moves to Locked(now+Duration) on the MaxAttempts-th
// consecutive failure.
type LockoutPolicy struct {
	MaxAttempts int
	Duration    time.Duration
}

// DefaultLockoutPolicy returns 5 attempts / 2 hours.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: DefaultMaxFailedAttempts, Duration: DefaultLockDuration}
}

// Locked reports whether s is inside an active lock at now.
func (s LoginState) Locked(now time.Time) bool {
	return s.LockUntil != nil && s.LockUntil.After(now)
}

// AfterFailure returns the state that follows one failed attempt at now and
// whether that attempt engaged a new lock. An elapsed lock is cleared lazily
// here: the count restarts from the current failure.
func (pol LockoutPolicy) AfterFailure(s LoginState, now time.Time) (LoginState, bool) {
	attempts := s.FailedAttempts
	if s.LockUntil != nil && !s.LockUntil.After(now) {
		attempts = 0
	}
	attempts++

	next := LoginState{FailedAttempts: attempts}
	if attempts >= pol.MaxAttempts {
		until := now.Add(pol.Duration)
		next.LockUntil = &until
		return next, true
	}
	return next, false
}
