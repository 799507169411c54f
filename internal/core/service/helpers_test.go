package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/learnhub/identity-service/internal/core/domain"
	"github.com/learnhub/identity-service/internal/core/ports"
	"github.com/learnhub/identity-service/internal/infrastructure/memory"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.AuthEvent
}

func (p *recordingPublisher) Publish(e domain.AuthEvent) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *recordingPublisher) count(t domain.AuthEventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Helper: a service over in-memory stores and a fake clock.
// ---------------------------------------------------------------------------

const testPassword = "correct-horse"

type testEnv struct {
	svc      *AuthService
	verifier *Verifier
	issuer   *TokenIssuer
	clock    *fakeClock
	users    *memory.CredentialStore
	admins   *memory.CredentialStore
	audit    *recordingPublisher
}

func newTestIssuer(t *testing.T, clock ports.Clock) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		Issuer:        "identity-test",
	}, clock)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return issuer
}

// newTestEnv builds a service without a rate limiter unless limit is set.
func newTestEnv(t *testing.T, limit *RateLimitPolicy) *testEnv {
	t.Helper()
	clock := newFakeClock()
	users := memory.NewCredentialStore(domain.KindUser)
	admins := memory.NewCredentialStore(domain.KindAdmin)
	stores := NewStores(users, admins)
	issuer := newTestIssuer(t, clock)
	audit := &recordingPublisher{}

	var limiter *RateLimiter
	if limit != nil {
		limiter = NewRateLimiter(memory.NewCounterStore(clock), *limit, "login:", clock, zerolog.Nop())
	}

	svc := NewAuthService(AuthDeps{
		Stores:     stores,
		Issuer:     issuer,
		Lockout:    NewLockoutTracker(domain.DefaultLockoutPolicy(), clock),
		Limiter:    limiter,
		Audit:      audit,
		Clock:      clock,
		Logger:     zerolog.Nop(),
		BcryptCost: bcrypt.MinCost,
	})
	return &testEnv{
		svc:      svc,
		verifier: NewVerifier(stores, issuer, clock),
		issuer:   issuer,
		clock:    clock,
		users:    users,
		admins:   admins,
		audit:    audit,
	}
}

func (e *testEnv) registerUser(t *testing.T, email string) *domain.Principal {
	t.Helper()
	p, err := e.svc.Register(context.Background(), ports.RegisterInput{Email: email, Password: testPassword, Name: "Test"})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return p
}

func (e *testEnv) login(email, password string) (*ports.LoginResult, error) {
	return e.svc.Login(context.Background(), ports.LoginInput{
		Email:    email,
		Password: password,
		Audience: domain.KindUser,
		Source:   "10.0.0.1",
	})
}

func (e *testEnv) mustLogin(t *testing.T, email string) *ports.LoginResult {
	t.Helper()
	res, err := e.login(email, testPassword)
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return res
}

func (e *testEnv) storedUser(t *testing.T, id string) *domain.Principal {
	t.Helper()
	p, err := e.users.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("find %s: %v", id, err)
	}
	return p
}
