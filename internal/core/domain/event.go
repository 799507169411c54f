package domain

import "time"

// AuthEventType enumerates the security-relevant outcomes that end up in the
// audit trail.
type AuthEventType string

const (
	EventLoginSucceeded  AuthEventType = "login_succeeded"
	EventLoginFailed     AuthEventType = "login_failed"
	EventLoginRejected   AuthEventType = "login_rejected"
	EventAccountLocked   AuthEventType = "account_locked"
	EventRateLimited     AuthEventType = "rate_limited"
	EventTokenRefreshed  AuthEventType = "token_refreshed"
	EventRefreshReused   AuthEventType = "refresh_reused"
	EventLoggedOut       AuthEventType = "logged_out"
	EventLoggedOutAll    AuthEventType = "logged_out_all"
	EventDeactivated     AuthEventType = "deactivated"
	EventPrincipalCreate AuthEventType = "principal_created"
)

// AuthEvent is one audit record. PrincipalID is empty when the attempt could
// not be tied to a principal (unknown email, rate-limited source).
type AuthEvent struct {
	Type        AuthEventType
	PrincipalID string
	Kind        Kind
	Source      string
	Reason      string
	OccurredAt  time.Time
}
