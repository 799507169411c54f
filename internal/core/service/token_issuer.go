package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/learnhub/identity-service/internal/core/domain"
	"github.com/learnhub/identity-service/internal/core/ports"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	typeAccess  = "access"
	typeRefresh = "refresh"
)

// TokenConfig holds signing secrets and lifetimes. Access and refresh tokens
// are signed with different secrets so one can never pass for the other.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// AccessClaims are the claims of a stateless access token. Subject is the
// principal id.
type AccessClaims struct {
	Type string `json:"typ"`
	Role string `json:"role"`
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// RefreshClaims are the claims of a refresh token. The jti makes every token
// unique even when two are minted within the same second.
type RefreshClaims struct {
	Type string `json:"typ"`
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and parses both token kinds.
type TokenIssuer struct {
	cfg   TokenConfig
	clock ports.Clock
}

func NewTokenIssuer(cfg TokenConfig, clock ports.Clock) (*TokenIssuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("token issuer: access and refresh secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("token issuer: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &TokenIssuer{cfg: cfg, clock: clock}, nil
}

// Issue mints an access/refresh pair for p and appends the refresh token to
// the principal's persisted list.
func (t *TokenIssuer) Issue(ctx context.Context, store ports.CredentialStore, p *domain.Principal) (ports.TokenPair, error) {
	access, err := t.MintAccess(p)
	if err != nil {
		return ports.TokenPair{}, err
	}
	refresh, entry, err := t.MintRefresh(p)
	if err != nil {
		return ports.TokenPair{}, err
	}
	if err := store.PushRefreshToken(ctx, p.ID, entry); err != nil {
		return ports.TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	return ports.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// MintAccess signs a short-lived access token. It is never persisted.
func (t *TokenIssuer) MintAccess(p *domain.Principal) (string, error) {
	now := t.clock.Now()
	claims := AccessClaims{
		Type: typeAccess,
		Role: string(p.Role),
		Kind: string(p.Kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    t.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.AccessTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.cfg.AccessSecret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// MintRefresh signs a refresh token and returns the entry that has to be
// stored for it to be honoured.
func (t *TokenIssuer) MintRefresh(p *domain.Principal) (string, domain.RefreshTokenEntry, error) {
	now := t.clock.Now()
	expires := now.Add(t.cfg.RefreshTTL)
	claims := RefreshClaims{
		Type: typeRefresh,
		Kind: string(p.Kind),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.ID,
			Issuer:    t.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.cfg.RefreshSecret))
	if err != nil {
		return "", domain.RefreshTokenEntry{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, domain.RefreshTokenEntry{Token: signed, IssuedAt: now, ExpiresAt: expires}, nil
}

// ParseAccess checks signature and expiry only; it does not touch the store.
func (t *TokenIssuer) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := t.parse(token, claims, t.cfg.AccessSecret); err != nil {
		return nil, err
	}
	if claims.Type != typeAccess || claims.Subject == "" {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

// ParseRefresh checks signature and expiry of a refresh token. Whether the
// token is still honoured is decided by the store.
func (t *TokenIssuer) ParseRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := t.parse(token, claims, t.cfg.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.Type != typeRefresh || claims.Subject == "" {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

func (t *TokenIssuer) parse(token string, claims jwt.Claims, secret string) error {
	if token == "" {
		return domain.ErrTokenMissing
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.clock.Now),
	}
	if t.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.cfg.Issuer))
	}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.ErrTokenExpired
	default:
		return fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}
}
