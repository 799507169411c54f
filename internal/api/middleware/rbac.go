package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/learnhub/identity-service/internal/core/domain"
)

// RequireRole admits principals whose role is one of roles. Must run after Auth.
func RequireRole(policy *domain.Policy, roles ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := Principal(c)
			if !ok {
				return domain.ErrTokenMissing
			}
			if err := policy.CheckRole(p.Role, roles...); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// RequirePermission admits principals whose role grants action on resource.
// Must run after Auth.
func RequirePermission(policy *domain.Policy, resource, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := Principal(c)
			if !ok {
				return domain.ErrTokenMissing
			}
			if err := policy.CheckPermission(p.Role, resource, action); err != nil {
				return err
			}
			return next(c)
		}
	}
}
