// Package memory holds process-local implementations of the core ports for
// single-instance deployments and local development.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/learnhub/identity-service/internal/core/domain"
)

// CredentialStore keeps principals of one kind in memory. A single mutex
// makes every method atomic, matching the guarantees of the Mongo store.
type CredentialStore struct {
	kind domain.Kind

	mu      sync.RWMutex
	byID    map[string]*domain.Principal
	byEmail map[string]string
}

func NewCredentialStore(kind domain.Kind) *CredentialStore {
	return &CredentialStore{
		kind:    kind,
		byID:    make(map[string]*domain.Principal),
		byEmail: make(map[string]string),
	}
}

func (s *CredentialStore) Kind() domain.Kind { return s.kind }

func (s *CredentialStore) Create(_ context.Context, p *domain.Principal) (*domain.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[p.Email]; exists {
		return nil, domain.ErrPrincipalExists
	}
	stored := clonePrincipal(p)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.Kind = s.kind
	s.byID[stored.ID] = stored
	s.byEmail[stored.Email] = stored.ID
	return clonePrincipal(stored), nil
}

func (s *CredentialStore) FindByID(_ context.Context, id string) (*domain.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrPrincipalNotFound
	}
	return clonePrincipal(p), nil
}

func (s *CredentialStore) FindByEmail(_ context.Context, email string) (*domain.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, domain.ErrPrincipalNotFound
	}
	return clonePrincipal(s.byID[id]), nil
}

func (s *CredentialStore) CompareAndSwapLoginState(_ context.Context, id string, expected, next domain.LoginState) (bool, error) {
	var swapped bool
	err := s.mutate(id, func(p *domain.Principal) {
		if !sameLoginState(p.Login, expected) {
			return
		}
		p.Login = cloneLoginState(next)
		swapped = true
	})
	return swapped, err
}

func (s *CredentialStore) ResetLoginState(_ context.Context, id string, at time.Time) error {
	return s.mutate(id, func(p *domain.Principal) {
		p.Login = domain.LoginState{}
		p.LastLoginAt = &at
	})
}

func (s *CredentialStore) PushRefreshToken(_ context.Context, id string, entry domain.RefreshTokenEntry) error {
	return s.mutate(id, func(p *domain.Principal) {
		p.RefreshTokens = append(p.RefreshTokens, entry)
	})
}

func (s *CredentialStore) ReplaceRefreshToken(_ context.Context, id, old string, next domain.RefreshTokenEntry, now time.Time) error {
	matched := false
	err := s.mutate(id, func(p *domain.Principal) {
		i := slices.IndexFunc(p.RefreshTokens, func(e domain.RefreshTokenEntry) bool {
			return e.Token == old && !e.Expired(now)
		})
		if i < 0 {
			return
		}
		p.RefreshTokens[i] = next
		matched = true
	})
	if err != nil {
		return err
	}
	if !matched {
		return domain.ErrTokenNotRecognized
	}
	return nil
}

func (s *CredentialStore) PullRefreshToken(_ context.Context, id, token string) error {
	return s.mutate(id, func(p *domain.Principal) {
		p.RefreshTokens = slices.DeleteFunc(p.RefreshTokens, func(e domain.RefreshTokenEntry) bool {
			return e.Token == token
		})
	})
}

func (s *CredentialStore) ClearRefreshTokens(_ context.Context, id string) error {
	return s.mutate(id, func(p *domain.Principal) {
		p.RefreshTokens = nil
	})
}

func (s *CredentialStore) PurgeExpiredRefreshTokens(_ context.Context, id string, now time.Time) error {
	return s.mutate(id, func(p *domain.Principal) {
		p.RefreshTokens = slices.DeleteFunc(p.RefreshTokens, func(e domain.RefreshTokenEntry) bool {
			return e.Expired(now)
		})
	})
}

func (s *CredentialStore) SetActive(_ context.Context, id string, active bool) error {
	return s.mutate(id, func(p *domain.Principal) {
		p.IsActive = active
	})
}

func (s *CredentialStore) mutate(id string, fn func(p *domain.Principal)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return domain.ErrPrincipalNotFound
	}
	fn(p)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func clonePrincipal(p *domain.Principal) *domain.Principal {
	clone := *p
	clone.Login = cloneLoginState(p.Login)
	clone.RefreshTokens = slices.Clone(p.RefreshTokens)
	if p.LastLoginAt != nil {
		t := *p.LastLoginAt
		clone.LastLoginAt = &t
	}
	return &clone
}

func cloneLoginState(s domain.LoginState) domain.LoginState {
	out := domain.LoginState{FailedAttempts: s.FailedAttempts}
	if s.LockUntil != nil {
		t := *s.LockUntil
		out.LockUntil = &t
	}
	return out
}

func sameLoginState(a, b domain.LoginState) bool {
	if a.FailedAttempts != b.FailedAttempts {
		return false
	}
	if a.LockUntil == nil || b.LockUntil == nil {
		return a.LockUntil == nil && b.LockUntil == nil
	}
	return a.LockUntil.Equal(*b.LockUntil)
}
