package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/learnhub/identity-service/internal/core/domain"
	"github.com/learnhub/identity-service/internal/core/ports"
)

// Stores resolves a principal kind to its credential store.
type Stores map[domain.Kind]ports.CredentialStore

// NewStores indexes stores by the kind each one reports.
func NewStores(stores ...ports.CredentialStore) Stores {
	out := make(Stores, len(stores))
	for _, s := range stores {
		out[s.Kind()] = s
	}
	return out
}

// For returns the store of kind k.
func (s Stores) For(k domain.Kind) (ports.CredentialStore, error) {
	store, ok := s[k]
	if !ok {
		return nil, fmt.Errorf("%w: audience %q", domain.ErrInvalidInput, k)
	}
	return store, nil
}

// AuthDeps collects the collaborators of AuthService. Audit, Clock and
// Limiter are optional.
type AuthDeps struct {
	Stores     Stores
	Issuer     *TokenIssuer
	Lockout    *LockoutTracker
	Limiter    *RateLimiter
	Audit      ports.AuthEventPublisher
	Clock      ports.Clock
	Logger     zerolog.Logger
	BcryptCost int
}

// AuthService implements registration, login, refresh rotation and logout.
type AuthService struct {
	stores    Stores
	issuer    *TokenIssuer
	lockout   *LockoutTracker
	limiter   *RateLimiter
	audit     ports.AuthEventPublisher
	clock     ports.Clock
	log       zerolog.Logger
	cost      int
	dummyHash []byte
}

func NewAuthService(deps AuthDeps) *AuthService {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Lockout == nil {
		deps.Lockout = NewLockoutTracker(domain.DefaultLockoutPolicy(), deps.Clock)
	}
	if deps.Audit == nil {
		deps.Audit = discardAudit{}
	}
	if deps.BcryptCost == 0 {
		deps.BcryptCost = bcrypt.DefaultCost
	}
	// compared against when the email is unknown so that both paths cost one bcrypt
	dummy, _ := bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), deps.BcryptCost)

	return &AuthService{
		stores:    deps.Stores,
		issuer:    deps.Issuer,
		lockout:   deps.Lockout,
		limiter:   deps.Limiter,
		audit:     deps.Audit,
		clock:     deps.Clock,
		log:       deps.Logger,
		cost:      deps.BcryptCost,
		dummyHash: dummy,
	}
}

// Register creates a User (student or instructor).
func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*domain.Principal, error) {
	if in.Role == "" {
		in.Role = domain.RoleStudent
	}
	return s.create(ctx, domain.KindUser, in)
}

// CreateAdmin creates an Admin (admin, moderator or super-admin).
func (s *AuthService) CreateAdmin(ctx context.Context, in ports.RegisterInput) (*domain.Principal, error) {
	if in.Role == "" {
		in.Role = domain.RoleAdmin
	}
	return s.create(ctx, domain.KindAdmin, in)
}

// EnsureAdmin creates a super-admin with the given credentials unless one
// with that email already exists.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	store, err := s.stores.For(domain.KindAdmin)
	if err != nil {
		return err
	}
	_, err = store.FindByEmail(ctx, normalizeEmail(email))
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrPrincipalNotFound) {
		return err
	}
	p, err := s.CreateAdmin(ctx, ports.RegisterInput{Email: email, Password: password, Name: "bootstrap", Role: domain.RoleSuperAdmin})
	if err != nil {
		return err
	}
	s.log.Info().Str("principal_id", p.ID).Msg("bootstrap super-admin created")
	return nil
}

func (s *AuthService) create(ctx context.Context, kind domain.Kind, in ports.RegisterInput) (*domain.Principal, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", domain.ErrInvalidInput)
	}
	if !in.Role.Valid() || in.Role.Kind() != kind {
		return nil, fmt.Errorf("%w: role %q", domain.ErrInvalidInput, in.Role)
	}
	store, err := s.stores.For(kind)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	created, err := store.Create(ctx, &domain.Principal{
		Kind:         kind,
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: string(hash),
		Role:         in.Role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}
	s.publish(domain.EventPrincipalCreate, created.ID, kind, "", string(created.Role))
	return created, nil
}

// Login runs the rate limiter gate, the lockout gate and the credential
// check, in that order, then issues a token pair.
func (s *AuthService) Login(ctx context.Context, in ports.LoginInput) (*ports.LoginResult, error) {
	audience := in.Audience
	if audience == "" {
		audience = domain.KindUser
	}
	store, err := s.stores.For(audience)
	if err != nil {
		return nil, err
	}

	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, in.Source); err != nil {
			s.log.Warn().Str("source", in.Source).Msg("login rate limited")
			s.publish(domain.EventRateLimited, "", audience, in.Source, "")
			return nil, err
		}
	}

	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		s.publish(domain.EventLoginFailed, "", audience, in.Source, "empty_credentials")
		return nil, domain.ErrCredentialsInvalid
	}

	p, err := store.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrPrincipalNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(in.Password))
		s.publish(domain.EventLoginFailed, "", audience, in.Source, "unknown_email")
		return nil, domain.ErrCredentialsInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	if err := s.lockout.Gate(p); err != nil {
		s.publish(domain.EventLoginRejected, p.ID, audience, in.Source, "locked")
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(in.Password)) != nil {
		engaged, err := s.lockout.RecordFailure(ctx, store, p)
		if err != nil {
			s.log.Error().Err(err).Str("principal_id", p.ID).Msg("failed to record login failure")
		}
		s.publish(domain.EventLoginFailed, p.ID, audience, in.Source, "bad_password")
		if engaged {
			s.log.Warn().Str("principal_id", p.ID).Time("lock_until", *p.Login.LockUntil).Msg("account locked")
			s.publish(domain.EventAccountLocked, p.ID, audience, in.Source, "")
		}
		return nil, domain.ErrCredentialsInvalid
	}

	if !p.IsActive {
		s.publish(domain.EventLoginRejected, p.ID, audience, in.Source, "inactive")
		return nil, domain.ErrAccountInactive
	}

	if err := s.lockout.RecordSuccess(ctx, store, p); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := store.PurgeExpiredRefreshTokens(ctx, p.ID, s.clock.Now()); err != nil {
		s.log.Warn().Err(err).Str("principal_id", p.ID).Msg("failed to purge expired refresh tokens")
	}

	tokens, err := s.issuer.Issue(ctx, store, p)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	s.publish(domain.EventLoginSucceeded, p.ID, audience, in.Source, "")
	s.log.Info().Str("principal_id", p.ID).Str("kind", string(p.Kind)).Msg("login succeeded")
	return &ports.LoginResult{Principal: p, Tokens: tokens}, nil
}

// Refresh verifies the refresh token, checks it against the persisted list
// and rotates it. Any failure here is terminal for the caller's session.
func (s *AuthService) Refresh(ctx context.Context, in ports.RefreshInput) (*ports.TokenPair, error) {
	token := strings.TrimSpace(in.RefreshToken)
	if token == "" {
		return nil, domain.ErrTokenMissing
	}

	claims, err := s.issuer.ParseRefresh(token)
	if err != nil {
		return nil, err
	}
	kind := domain.Kind(claims.Kind)
	if in.Audience != "" && in.Audience != kind {
		return nil, fmt.Errorf("%w: audience mismatch", domain.ErrTokenInvalid)
	}
	store, err := s.stores.For(kind)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}

	p, err := store.FindByID(ctx, claims.Subject)
	if errors.Is(err, domain.ErrPrincipalNotFound) {
		return nil, domain.ErrTokenNotRecognized
	}
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	if !p.IsActive {
		if err := store.ClearRefreshTokens(ctx, p.ID); err != nil {
			s.log.Warn().Err(err).Str("principal_id", p.ID).Msg("failed to revoke tokens of inactive principal")
		}
		return nil, domain.ErrAccountInactive
	}

	now := s.clock.Now()
	if !p.HasRefreshToken(token, now) {
		s.reused(p)
		return nil, domain.ErrTokenNotRecognized
	}

	access, err := s.issuer.MintAccess(p)
	if err != nil {
		return nil, err
	}
	refresh, entry, err := s.issuer.MintRefresh(p)
	if err != nil {
		return nil, err
	}

	// The conditional replace is what makes rotation safe: of two concurrent
	// refreshes with the same token only one matches.
	if err := store.ReplaceRefreshToken(ctx, p.ID, token, entry, now); err != nil {
		if errors.Is(err, domain.ErrTokenNotRecognized) {
			s.reused(p)
		}
		return nil, err
	}

	s.publish(domain.EventTokenRefreshed, p.ID, kind, "", "")
	return &ports.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Logout revokes one refresh token or all of them.
func (s *AuthService) Logout(ctx context.Context, who domain.CurrentPrincipal, refreshToken string) error {
	store, err := s.stores.For(who.Kind)
	if err != nil {
		return err
	}
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		if err := store.ClearRefreshTokens(ctx, who.ID); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		s.publish(domain.EventLoggedOutAll, who.ID, who.Kind, "", "")
		return nil
	}
	if err := store.PullRefreshToken(ctx, who.ID, refreshToken); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.publish(domain.EventLoggedOut, who.ID, who.Kind, "", "")
	return nil
}

// Deactivate soft-deletes a principal and revokes its refresh tokens. Its
// outstanding access tokens stop working on the next request.
func (s *AuthService) Deactivate(ctx context.Context, kind domain.Kind, id string, by domain.CurrentPrincipal) error {
	if by.ID == id && by.Kind == kind {
		return fmt.Errorf("%w: cannot deactivate yourself", domain.ErrInvalidInput)
	}
	store, err := s.stores.For(kind)
	if err != nil {
		return err
	}
	if err := store.SetActive(ctx, id, false); err != nil {
		return err
	}
	if err := store.ClearRefreshTokens(ctx, id); err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}
	s.publish(domain.EventDeactivated, id, kind, "", "by "+by.ID)
	s.log.Info().Str("principal_id", id).Str("by", by.ID).Msg("principal deactivated")
	return nil
}

func (s *AuthService) reused(p *domain.Principal) {
	s.log.Warn().Str("principal_id", p.ID).Msg("refresh token not recognized")
	s.publish(domain.EventRefreshReused, p.ID, p.Kind, "", "")
}

func (s *AuthService) publish(t domain.AuthEventType, principalID string, kind domain.Kind, source, reason string) {
	s.audit.Publish(domain.AuthEvent{
		Type:        t,
		PrincipalID: principalID,
		Kind:        kind,
		Source:      source,
		Reason:      reason,
		OccurredAt:  s.clock.Now(),
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type discardAudit struct{}

func (discardAudit) Publish(domain.AuthEvent) {}
