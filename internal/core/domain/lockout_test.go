package domain

import (
	"testing"
	"time"
)

func TestLockoutPolicy_AfterFailure(t *testing.T) {
	pol := DefaultLockoutPolicy()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	s := LoginState{}
	for i := 1; i < pol.MaxAttempts; i++ {
		var engaged bool
		s, engaged = pol.AfterFailure(s, now)
		if engaged || s.FailedAttempts != i || s.LockUntil != nil {
			t.Fatalf("failure %d: unexpected state %+v engaged=%v", i, s, engaged)
		}
	}

	s, engaged := pol.AfterFailure(s, now)
	if !engaged || s.LockUntil == nil || !s.LockUntil.Equal(now.Add(pol.Duration)) {
		t.Fatalf("expected lock until %s, got %+v", now.Add(pol.Duration), s)
	}
	if !s.Locked(now.Add(pol.Duration - time.Second)) {
		t.Errorf("expected locked just before expiry")
	}
	if s.Locked(now.Add(pol.Duration)) {
		t.Errorf("expected unlocked at expiry")
	}

	later := now.Add(pol.Duration + time.Minute)
	s, engaged = pol.AfterFailure(s, later)
	if engaged || s.FailedAttempts != 1 || s.LockUntil != nil {
		t.Fatalf("expected count restart after elapsed lock, got %+v", s)
	}
}
