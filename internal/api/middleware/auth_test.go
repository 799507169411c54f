package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/learnhub/identity-service/internal/core/domain"
)

type stubVerifier struct {
	principal *domain.Principal
	err       error
	gotToken  string
}

func (v *stubVerifier) VerifyAccess(_ context.Context, token string) (*domain.Principal, error) {
	v.gotToken = token
	return v.principal, v.err
}

func newAuthContext(header string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	verifier := &stubVerifier{principal: &domain.Principal{ID: "u-1", Role: domain.RoleStudent, Kind: domain.KindUser}}
	c, rec := newAuthContext("Bearer good-token")

	called := false
	handler := Auth(verifier)(func(c echo.Context) error {
		called = true
		p, ok := Principal(c)
		if !ok || p.ID != "u-1" || p.Role != domain.RoleStudent {
			t.Fatalf("principal not set: %+v", p)
		}
		fromCtx, ok := domain.PrincipalFrom(c.Request().Context())
		if !ok || fromCtx != p {
			t.Fatalf("principal not in request context")
		}
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !called {
		t.Fatalf("next not called")
	}
	if verifier.gotToken != "good-token" {
		t.Fatalf("expected token to be passed, got %q", verifier.gotToken)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	cases := []struct {
		name     string
		header   string
		verifier *stubVerifier
		want     error
	}{
		{"missing header", "", &stubVerifier{}, domain.ErrTokenMissing},
		{"wrong scheme", "Token abc", &stubVerifier{}, domain.ErrTokenInvalid},
		{"empty bearer", "Bearer   ", &stubVerifier{}, domain.ErrTokenMissing},
		{"expired", "Bearer old", &stubVerifier{err: domain.ErrTokenExpired}, domain.ErrTokenExpired},
		{"deactivated", "Bearer tok", &stubVerifier{err: domain.ErrAccountInactive}, domain.ErrAccountInactive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newAuthContext(tc.header)
			handler := Auth(tc.verifier)(func(c echo.Context) error {
				t.Fatalf("should not reach next")
				return nil
			})
			if err := handler(c); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
