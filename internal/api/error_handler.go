package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/learnhub/identity-service/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error             string `json:"error"`
	Code              string `json:"code,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps the auth error taxonomy to HTTP statuses and wire codes.
//   - Discloses the wait of RateLimited and AccountLocked in a Retry-After header.
//   - Logs unexpected errors and reports them to Sentry without leaking details.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, resp := resolveError(err, log, c)
		if wait, ok := domain.RetryAfter(err); ok {
			resp.RetryAfterSeconds = int(math.Ceil(wait.Seconds()))
			c.Response().Header().Set("Retry-After", strconv.Itoa(resp.RetryAfterSeconds))
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, resp)
	}
}

// publicMessages never include the wrapped cause: a TokenInvalid may carry
// parser detail, a CredentialsInvalid must not say which half was wrong.
var publicMessages = map[string]string{
	domain.CodeCredentialsInvalid: "invalid credentials",
	domain.CodeAccountLocked:      "account temporarily locked",
	domain.CodeAccountInactive:    "account inactive",
	domain.CodeMissing:            "token missing",
	domain.CodeTokenExpired:       "token expired",
	domain.CodeTokenInvalid:       "token invalid",
	domain.CodeInvalidOrExpired:   "refresh token invalid or expired",
	domain.CodeNotRecognized:      "token not recognized",
	domain.CodeRateLimited:        "too many attempts",
	domain.CodePermissionDenied:   "permission denied",
	domain.CodeRoleDenied:         "role not allowed",
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message)}
	}

	if code := domain.Code(err); code != "" {
		return statusFor(err), errorResponse{Error: publicMessages[code], Code: code}
	}

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "InvalidInput"}
	case errors.Is(err, domain.ErrPrincipalExists):
		return http.StatusConflict, errorResponse{Error: "principal already exists", Code: "Conflict"}
	case errors.Is(err, domain.ErrPrincipalNotFound):
		return http.StatusNotFound, errorResponse{Error: "principal not found", Code: "NotFound"}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, errorResponse{Error: "concurrent update, retry", Code: "Conflict"}
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("method", c.Request().Method)
		scope.SetTag("path", c.Path())
		sentry.CaptureException(err)
	})

	return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrPermissionDenied), errors.Is(err, domain.ErrRoleDenied):
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}
