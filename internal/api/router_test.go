package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/learnhub/identity-service/internal/core/domain"
	"github.com/learnhub/identity-service/internal/core/service"
	"github.com/learnhub/identity-service/internal/infrastructure/memory"
)

const rootEmail = "root@example.com"

type testServer struct {
	e    *echo.Echo
	auth *service.AuthService
}

func newTestServer(t *testing.T, limit service.RateLimitPolicy) *testServer {
	t.Helper()
	clock := service.SystemClock{}
	stores := service.NewStores(memory.NewCredentialStore(domain.KindUser), memory.NewCredentialStore(domain.KindAdmin))
	issuer, err := service.NewTokenIssuer(service.TokenConfig{AccessSecret: "a-secret", RefreshSecret: "r-secret", Issuer: "test"}, clock)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	auth := service.NewAuthService(service.AuthDeps{
		Stores:     stores,
		Issuer:     issuer,
		Limiter:    service.NewRateLimiter(memory.NewCounterStore(clock), limit, "login:", clock, zerolog.Nop()),
		Logger:     zerolog.Nop(),
		BcryptCost: bcrypt.MinCost,
	})
	if err := auth.EnsureAdmin(context.Background(), rootEmail, "root-password-123"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	e := NewRouter(Deps{
		Auth:     auth,
		Verifier: service.NewVerifier(stores, issuer, clock),
		Logger:   zerolog.Nop(),
		Registry: prometheus.NewRegistry(),
	})
	return &testServer{e: e, auth: auth}
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func (s *testServer) login(t *testing.T, path, email, password string) (string, string) {
	t.Helper()
	rec, body := s.do(t, http.MethodPost, path, "", `{"email":"`+email+`","password":"`+password+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d %v", email, rec.Code, body)
	}
	return body["access_token"].(string), body["refresh_token"].(string)
}

func TestRouter_SessionLifecycle(t *testing.T) {
	s := newTestServer(t, service.RateLimitPolicy{Max: 100})

	rec, body := s.do(t, http.MethodPost, "/auth/register", "", `{"email":"alice@example.com","password":"alice-password","name":"Alice"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d %v", rec.Code, body)
	}
	rec, _ = s.do(t, http.MethodPost, "/auth/register", "", `{"email":"alice@example.com","password":"alice-password"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", rec.Code)
	}

	access, refresh := s.login(t, "/auth/login", "alice@example.com", "alice-password")

	rec, body = s.do(t, http.MethodGet, "/auth/me", access, "")
	if rec.Code != http.StatusOK || body["role"] != "student" || body["kind"] != "user" {
		t.Fatalf("me: unexpected %d %v", rec.Code, body)
	}

	rec, body = s.do(t, http.MethodPost, "/auth/refresh", "", `{"refresh_token":"`+refresh+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d %v", rec.Code, body)
	}
	rotated := body["refresh_token"].(string)

	rec, body = s.do(t, http.MethodPost, "/auth/refresh", "", `{"refresh_token":"`+refresh+`"}`)
	if rec.Code != http.StatusUnauthorized || body["code"] != domain.CodeNotRecognized {
		t.Fatalf("replay: expected 401 NotRecognized, got %d %v", rec.Code, body)
	}

	rec, body = s.do(t, http.MethodPost, "/auth/refresh", "", `{"refresh_token":"garbage"}`)
	if rec.Code != http.StatusUnauthorized || body["code"] != domain.CodeInvalidOrExpired {
		t.Fatalf("garbage: expected 401 InvalidOrExpired, got %d %v", rec.Code, body)
	}

	rec, body = s.do(t, http.MethodPost, "/auth/refresh", "", `{}`)
	if rec.Code != http.StatusUnauthorized || body["code"] != domain.CodeMissing {
		t.Fatalf("missing: expected 401 Missing, got %d %v", rec.Code, body)
	}

	rec, _ = s.do(t, http.MethodPost, "/auth/logout", access, `{"refresh_token":"`+rotated+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", rec.Code)
	}
	rec, body = s.do(t, http.MethodPost, "/auth/refresh", "", `{"refresh_token":"`+rotated+`"}`)
	if rec.Code != http.StatusUnauthorized || body["code"] != domain.CodeNotRecognized {
		t.Fatalf("after logout: expected NotRecognized, got %d %v", rec.Code, body)
	}
}

func TestRouter_LogoutWithoutTokenRevokesEverySession(t *testing.T) {
	s := newTestServer(t, service.RateLimitPolicy{Max: 100})
	s.do(t, http.MethodPost, "/auth/register", "", `{"email":"dana@example.com","password":"dana-password"}`)

	laptopAccess, laptopRefresh := s.login(t, "/auth/login", "dana@example.com", "dana-password")
	_, phoneRefresh := s.login(t, "/auth/login", "dana@example.com", "dana-password")

	rec, _ := s.do(t, http.MethodPost, "/auth/logout", laptopAccess, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", rec.Code)
	}
	for _, refresh := range []string{laptopRefresh, phoneRefresh} {
		rec, body := s.do(t, http.MethodPost, "/auth/refresh", "", `{"refresh_token":"`+refresh+`"}`)
		if rec.Code != http.StatusUnauthorized || body["code"] != domain.CodeNotRecognized {
			t.Fatalf("expected every session revoked, got %d %v", rec.Code, body)
		}
	}
}

func TestRouter_LoginFailuresAndLockout(t *testing.T) {
	s := newTestServer(t, service.RateLimitPolicy{Max: 100})
	s.do(t, http.MethodPost, "/auth/register", "", `{"email":"bob@example.com","password":"bob-password"}`)

	for range domain.DefaultMaxFailedAttempts {
		rec, body := s.do(t, http.MethodPost, "/auth/login", "", `{"email":"bob@example.com","password":"wrong"}`)
		if rec.Code != http.StatusUnauthorized || body["code"] != domain.CodeCredentialsInvalid {
			t.Fatalf("expected 401 CredentialsInvalid, got %d %v", rec.Code, body)
		}
	}

	rec, body := s.do(t, http.MethodPost, "/auth/login", "", `{"email":"bob@example.com","password":"bob-password"}`)
	if rec.Code != http.StatusUnauthorized || body["code"] != domain.CodeAccountLocked {
		t.Fatalf("expected 401 AccountLocked, got %d %v", rec.Code, body)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Errorf("expected Retry-After on a locked account")
	}
}

func TestRouter_RateLimited(t *testing.T) {
	s := newTestServer(t, service.RateLimitPolicy{Window: 15 * time.Minute, Max: 5})

	for range 5 {
		rec, _ := s.do(t, http.MethodPost, "/auth/login", "", `{"email":"ghost@example.com","password":"x"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	}
	rec, body := s.do(t, http.MethodPost, "/auth/login", "", `{"email":"ghost@example.com","password":"x"}`)
	if rec.Code != http.StatusTooManyRequests || body["code"] != domain.CodeRateLimited {
		t.Fatalf("expected 429 RateLimited, got %d %v", rec.Code, body)
	}
	secs, _ := body["retry_after_seconds"].(float64)
	if secs <= 0 || secs > 900 || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected a retry hint within the window, got %v / %q", secs, rec.Header().Get("Retry-After"))
	}
}

func TestRouter_AdminOperations(t *testing.T) {
	s := newTestServer(t, service.RateLimitPolicy{Max: 100})

	rec, body := s.do(t, http.MethodPost, "/auth/register", "", `{"email":"carol@example.com","password":"carol-password"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %v", rec.Code, body)
	}
	carolID := body["principal"].(map[string]any)["id"].(string)
	carolAccess, _ := s.login(t, "/auth/login", "carol@example.com", "carol-password")

	// a student cannot reach admin operations
	rec, body = s.do(t, http.MethodPost, "/admin/admins", carolAccess, `{"email":"x@example.com","password":"long-admin-password"}`)
	if rec.Code != http.StatusForbidden || body["code"] != domain.CodePermissionDenied {
		t.Fatalf("expected 403 PermissionDenied, got %d %v", rec.Code, body)
	}
	rec, body = s.do(t, http.MethodPost, "/admin/auth/logout", carolAccess, `{"all":true}`)
	if rec.Code != http.StatusForbidden || body["code"] != domain.CodeRoleDenied {
		t.Fatalf("expected 403 RoleDenied, got %d %v", rec.Code, body)
	}

	// admins are unknown to the user audience
	rec, _ = s.do(t, http.MethodPost, "/auth/login", "", `{"email":"`+rootEmail+`","password":"root-password-123"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected admin rejected on user login, got %d", rec.Code)
	}
	rootAccess, _ := s.login(t, "/admin/auth/login", rootEmail, "root-password-123")

	rec, body = s.do(t, http.MethodPost, "/admin/admins", rootAccess, `{"email":"mod@example.com","password":"long-admin-password","role":"moderator"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create admin: expected 201, got %d %v", rec.Code, body)
	}

	rec, _ = s.do(t, http.MethodPost, "/admin/principals/user/"+carolID+"/deactivate", rootAccess, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("deactivate: expected 204, got %d", rec.Code)
	}

	rec, body = s.do(t, http.MethodGet, "/auth/me", carolAccess, "")
	if rec.Code != http.StatusUnauthorized || body["code"] != domain.CodeAccountInactive {
		t.Fatalf("expected 401 AccountInactive after deactivation, got %d %v", rec.Code, body)
	}
}

func TestRouter_Operations(t *testing.T) {
	s := newTestServer(t, service.RateLimitPolicy{})

	for _, path := range []string{"/health", "/health/ready", "/metrics"} {
		rec, _ := s.do(t, http.MethodGet, path, "", "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
	rec, body := s.do(t, http.MethodGet, "/auth/me", "", "")
	if rec.Code != http.StatusUnauthorized || body["code"] != domain.CodeMissing {
		t.Fatalf("expected 401 Missing, got %d %v", rec.Code, body)
	}
}
