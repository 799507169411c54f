package domain

import (
	"slices"
	"time"
)

// Kind distinguishes the two stores a principal can live in.
type Kind string

const (
	KindUser  Kind = "user"
	KindAdmin Kind = "admin"
)

// Valid reports whether k is a known principal kind.
func (k Kind) Valid() bool {
	return k == KindUser || k == KindAdmin
}

// Role is the coarse authorization label carried in access tokens.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super-admin"
	RoleModerator  Role = "moderator"
)

// Kind returns the principal kind that may hold this role.
func (r Role) Kind() Kind {
	switch r {
	case RoleAdmin, RoleSuperAdmin, RoleModerator:
		return KindAdmin
	default:
		return KindUser
	}
}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleInstructor, RoleAdmin, RoleSuperAdmin, RoleModerator:
		return true
	}
	return false
}

// RefreshTokenEntry is one persisted refresh token of a principal.
type RefreshTokenEntry struct {
	Token     string    `json:"-"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its TTL at now.
func (e RefreshTokenEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// LoginState is the lockout-relevant part of a principal. Stores compare and
// swap it as a unit.
type LoginState struct {
	FailedAttempts int        `json:"failed_attempts"`
	LockUntil      *time.Time `json:"lock_until,omitempty"`
}

// Principal models an authenticatable identity, either a User or an Admin.
type Principal struct {
	ID            string              `json:"id"`
	Kind          Kind                `json:"kind"`
	Email         string              `json:"email"`
	Name          string              `json:"name,omitempty"`
	PasswordHash  string              `json:"-"`
	Role          Role                `json:"role"`
	IsActive      bool                `json:"is_active"`
	Login         LoginState          `json:"-"`
	RefreshTokens []RefreshTokenEntry `json:"-"`
	LastLoginAt   *time.Time          `json:"last_login_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// IsLocked reports whether the principal is inside an active lock window.
func (p *Principal) IsLocked(now time.Time) bool {
	return p.Login.LockUntil != nil && p.Login.LockUntil.After(now)
}

// HasRefreshToken reports whether token is a live entry of the principal.
func (p *Principal) HasRefreshToken(token string, now time.Time) bool {
	return slices.ContainsFunc(p.RefreshTokens, func(e RefreshTokenEntry) bool {
		return e.Token == token && !e.Expired(now)
	})
}

// Current returns the context view of the principal.
func (p *Principal) Current() CurrentPrincipal {
	return CurrentPrincipal{ID: p.ID, Role: p.Role, Kind: p.Kind}
}
