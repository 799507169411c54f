package ports

import (
	"context"

	"github.com/learnhub/identity-service/internal/core/domain"
)

// LoginInput carries one login attempt. Source identifies the network origin
// for rate limiting.
type LoginInput struct {
	Email    string
	Password string
	Audience domain.Kind
	Source   string
}

// TokenPair is a freshly issued access/refresh token pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Principal *domain.Principal
	Tokens    TokenPair
}

// RefreshInput carries a refresh token. A non-empty Audience must match the
// kind the token was issued for.
type RefreshInput struct {
	RefreshToken string
	Audience     domain.Kind
}

// RegisterInput describes a principal to create.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     domain.Role
}

// AuthService defines the session lifecycle use cases.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.Principal, error)
	CreateAdmin(ctx context.Context, in RegisterInput) (*domain.Principal, error)
	Login(ctx context.Context, in LoginInput) (*LoginResult, error)
	Refresh(ctx context.Context, in RefreshInput) (*TokenPair, error)
	// Logout revokes refreshToken or, when it is empty, every refresh token
	// of the principal.
	Logout(ctx context.Context, who domain.CurrentPrincipal, refreshToken string) error
	Deactivate(ctx context.Context, kind domain.Kind, id string, by domain.CurrentPrincipal) error
}

// AccessVerifier resolves an access token to a live principal.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, token string) (*domain.Principal, error)
}
