package domain

import (
	"errors"
	"fmt"
	"time"
)

// Authentication and authorization failures. Every one of them is terminal
// for the request that produced it.
var (
	ErrCredentialsInvalid = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountInactive    = errors.New("account inactive")
	ErrTokenMissing       = errors.New("token missing")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrTokenNotRecognized = errors.New("token not recognized")
	ErrRateLimited        = errors.New("too many attempts")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrRoleDenied         = errors.New("role not allowed")
)

// Store and input failures.
var (
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrPrincipalExists   = errors.New("principal already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("concurrent update conflict")
)

// RetryableError decorates ErrRateLimited or ErrAccountLocked with the
// duration the caller has to wait before trying again.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%v (retry after %s)", e.Err, e.RetryAfter.Round(time.Second))
}

func (e *RetryableError) Unwrap() error { return e.Err }

// RetryAfter extracts the wait hint from err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.RetryAfter, true
	}
	return 0, false
}

// Wire-level error kinds.
const (
	CodeCredentialsInvalid = "CredentialsInvalid"
	CodeAccountLocked      = "AccountLocked"
	CodeAccountInactive    = "AccountInactive"
	CodeMissing            = "Missing"
	CodeTokenExpired       = "TokenExpired"
	CodeTokenInvalid       = "TokenInvalid"
	CodeInvalidOrExpired   = "InvalidOrExpired"
	CodeNotRecognized      = "NotRecognized"
	CodeRateLimited        = "RateLimited"
	CodePermissionDenied   = "PermissionDenied"
	CodeRoleDenied         = "RoleDenied"
)

// CodedError pins the wire kind of Err.
type CodedError struct {
	Code string
	Err  error
}

func (e *CodedError) Error() string { return e.Err.Error() }

func (e *CodedError) Unwrap() error { return e.Err }

// RefreshFailure maps a refresh-path error onto the refresh wire kinds, where
// an expired and a malformed token are both InvalidOrExpired.
func RefreshFailure(err error) error {
	if errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenInvalid) {
		return &CodedError{Code: CodeInvalidOrExpired, Err: err}
	}
	return err
}

// Code returns the wire kind for err, or "" for errors outside the taxonomy.
func Code(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	switch {
	case errors.Is(err, ErrCredentialsInvalid):
		return CodeCredentialsInvalid
	case errors.Is(err, ErrAccountLocked):
		return CodeAccountLocked
	case errors.Is(err, ErrAccountInactive):
		return CodeAccountInactive
	case errors.Is(err, ErrTokenMissing):
		return CodeMissing
	case errors.Is(err, ErrTokenExpired):
		return CodeTokenExpired
	case errors.Is(err, ErrTokenInvalid):
		return CodeTokenInvalid
	case errors.Is(err, ErrTokenNotRecognized):
		return CodeNotRecognized
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, ErrRoleDenied):
		return CodeRoleDenied
	}
	return ""
}

// Recovery tells a caller what, if anything, can make a failed call succeed.
type Recovery int

const (
	// RecoveryNone: the request itself is not allowed; retrying will not help.
	RecoveryNone Recovery = iota
	// RecoveryRetryNow: transient failure, the same call may be repeated.
	RecoveryRetryNow
	// RecoveryWait: repeat after the disclosed RetryAfter.
	RecoveryWait
	// RecoveryRefresh: refresh the access token once, then repeat.
	RecoveryRefresh
	// RecoveryRelogin: only a fresh top-level login helps.
	RecoveryRelogin
)

// RecoveryFor classifies err for the caller.
func RecoveryFor(err error) Recovery {
	switch {
	case err == nil:
		return RecoveryNone
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrAccountLocked):
		return RecoveryWait
	case errors.Is(err, ErrTokenExpired):
		return RecoveryRefresh
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrTokenNotRecognized),
		errors.Is(err, ErrTokenMissing), errors.Is(err, ErrAccountInactive):
		return RecoveryRelogin
	case errors.Is(err, ErrCredentialsInvalid), errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrRoleDenied), errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrPrincipalExists), errors.Is(err, ErrPrincipalNotFound):
		return RecoveryNone
	}
	return RecoveryRetryNow
}
