package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/learnhub/identity-service/internal/core/domain"
	"github.com/learnhub/identity-service/internal/core/ports"
)

// Verifier resolves access tokens for the auth middleware.
type Verifier struct {
	stores Stores
	issuer *TokenIssuer
	clock  ports.Clock
}

func NewVerifier(stores Stores, issuer *TokenIssuer, clock ports.Clock) *Verifier {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Verifier{stores: stores, issuer: issuer, clock: clock}
}

// VerifyAccess checks the token structurally, then loads the principal.
// Deactivation and lockout override a valid, unexpired token.
func (v *Verifier) VerifyAccess(ctx context.Context, token string) (*domain.Principal, error) {
	claims, err := v.issuer.ParseAccess(token)
	if err != nil {
		return nil, err
	}

	store, err := v.stores.For(domain.Kind(claims.Kind))
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}
	p, err := store.FindByID(ctx, claims.Subject)
	if errors.Is(err, domain.ErrPrincipalNotFound) {
		return nil, domain.ErrTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("verify access: %w", err)
	}

	if !p.IsActive {
		return nil, domain.ErrAccountInactive
	}
	now := v.clock.Now()
	if p.IsLocked(now) {
		return nil, &domain.RetryableError{Err: domain.ErrAccountLocked, RetryAfter: p.Login.LockUntil.Sub(now)}
	}
	return p, nil
}
