package authclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrSessionExpired is returned to every request waiting on a refresh that
	// failed. Credentials are gone; only a new Login helps.
	ErrSessionExpired = errors.New("authclient: session expired")
	// ErrNotAuthenticated is returned by Logout and LogoutAll without
	// credentials. Do sends such requests without an Authorization header.
	ErrNotAuthenticated = errors.New("authclient: not authenticated")
)

// APIError is a non-2xx answer of the identity service.
type APIError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("authclient: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("authclient: %d: %s", e.Status, e.Message)
}

type errorEnvelope struct {
	Error             string `json:"error"`
	Code              string `json:"code"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// decodeAPIError consumes and closes resp.Body.
func decodeAPIError(resp *http.Response) *APIError {
	defer resp.Body.Close()
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	var env errorEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&env); err == nil {
		if env.Error != "" {
			apiErr.Message = env.Error
		}
		apiErr.Code = env.Code
		apiErr.RetryAfter = time.Duration(env.RetryAfterSeconds) * time.Second
	}
	if apiErr.RetryAfter == 0 {
		apiErr.RetryAfter = retryAfterHeader(resp)
	}
	return apiErr
}

func retryAfterHeader(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(time.Until(at), 0)
	}
	return 0
}
