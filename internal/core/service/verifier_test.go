package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/learnhub/identity-service/internal/core/domain"
)

func TestVerifier_VerifyAccess(t *testing.T) {
	env := newTestEnv(t, nil)
	p := env.registerUser(t, "alice@example.com")
	tokens := env.mustLogin(t, "alice@example.com").Tokens
	ctx := context.Background()

	got, err := env.verifier.VerifyAccess(ctx, tokens.AccessToken)
	if err != nil {
		t.Fatalf("expected valid token, got: %v", err)
	}
	if got.ID != p.ID || got.Role != domain.RoleStudent {
		t.Errorf("unexpected principal: %+v", got)
	}
}

func TestVerifier_LockedPrincipalRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registerUser(t, "alice@example.com")
	tokens := env.mustLogin(t, "alice@example.com").Tokens
	for range domain.DefaultMaxFailedAttempts {
		_, _ = env.login("alice@example.com", "wrong")
	}

	_, err := env.verifier.VerifyAccess(context.Background(), tokens.AccessToken)
	if !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected AccountLocked, got: %v", err)
	}
}

func TestVerifier_ExpiredAndUnknown(t *testing.T) {
	env := newTestEnv(t, nil)
	p := env.registerUser(t, "alice@example.com")
	tokens := env.mustLogin(t, "alice@example.com").Tokens
	ctx := context.Background()

	env.clock.Advance(DefaultAccessTTL + time.Second)
	if _, err := env.verifier.VerifyAccess(ctx, tokens.AccessToken); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected TokenExpired, got: %v", err)
	}

	ghost := *p
	ghost.ID = "ghost"
	forged, _ := env.issuer.MintAccess(&ghost)
	if _, err := env.verifier.VerifyAccess(ctx, forged); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected TokenInvalid, got: %v", err)
	}
}
