package handler

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/learnhub/identity-service/internal/api/middleware"
	"github.com/learnhub/identity-service/internal/core/domain"
)

// currentPrincipal extracts the principal injected by the Auth middleware.
// Its absence means the route was mounted without Auth.
func currentPrincipal(c echo.Context) (domain.CurrentPrincipal, error) {
	p, ok := middleware.Principal(c)
	if !ok || p.ID == "" {
		return domain.CurrentPrincipal{}, domain.ErrTokenMissing
	}
	return p, nil
}

// bindAndValidate decodes the body into req and runs the registered validator.
// An empty body is accepted; required fields are enforced by validation.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return invalidInput("invalid payload")
	}
	if c.Echo().Validator == nil {
		return nil
	}
	return c.Validate(req)
}

func invalidInput(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, msg)
}

// errorResponse mirrors the API error envelope for the OpenAPI docs.
type errorResponse struct {
	Error             string `json:"error"`
	Code              string `json:"code,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}
