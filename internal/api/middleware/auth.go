package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/learnhub/identity-service/internal/core/domain"
	"github.com/learnhub/identity-service/internal/core/ports"
)

// PrincipalKey is the echo context key holding the domain.CurrentPrincipal.
const PrincipalKey = "principal"

// Auth verifies the bearer access token and attaches the principal to both
// the echo context and the request context.
func Auth(verifier ports.AccessVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return err
			}

			req := c.Request()
			p, err := verifier.VerifyAccess(req.Context(), token)
			if err != nil {
				return err
			}

			current := p.Current()
			c.Set(PrincipalKey, current)
			c.SetRequest(req.WithContext(domain.WithPrincipal(req.Context(), current)))

			return next(c)
		}
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", domain.ErrTokenMissing
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", domain.ErrTokenInvalid
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", domain.ErrTokenMissing
	}
	return token, nil
}

// Principal returns the principal attached by Auth.
func Principal(c echo.Context) (domain.CurrentPrincipal, bool) {
	if p, ok := c.Get(PrincipalKey).(domain.CurrentPrincipal); ok {
		return p, true
	}
	return domain.PrincipalFrom(c.Request().Context())
}
