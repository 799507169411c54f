package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Wildcard matches any resource or action in a Permission.
const Wildcard = "*"

// Permission is a {resource, action} pair such as courses:update.
type Permission struct {
	Resource string
	Action   string
}

func (p Permission) String() string { return p.Resource + ":" + p.Action }

// ParsePermission parses "resource:action".
func ParsePermission(s string) (Permission, error) {
	resource, action, ok := strings.Cut(s, ":")
	if !ok || resource == "" || action == "" {
		return Permission{}, fmt.Errorf("%w: permission %q", ErrInvalidInput, s)
	}
	return Permission{Resource: resource, Action: action}, nil
}

func (p Permission) matches(resource, action string) bool {
	return (p.Resource == Wildcard || p.Resource == resource) &&
		(p.Action == Wildcard || p.Action == action)
}

// Policy is the single source of truth for authorization. Coarse role checks
// and fine-grained permission checks read the same role→permission matrix,
// so a role missing from the matrix passes neither.
type Policy struct {
	grants map[Role][]Permission
}

// NewPolicy builds a policy from a role→permission matrix given as
// "resource:action" strings.
func NewPolicy(matrix map[Role][]string) (*Policy, error) {
	grants := make(map[Role][]Permission, len(matrix))
	for role, perms := range matrix {
		if !role.Valid() {
			return nil, fmt.Errorf("%w: role %q", ErrInvalidInput, role)
		}
		parsed := make([]Permission, 0, len(perms))
		for _, s := range perms {
			p, err := ParsePermission(s)
			if err != nil {
				return nil, err
			}
			parsed = append(parsed, p)
		}
		grants[role] = parsed
	}
	return &Policy{grants: grants}, nil
}

// DefaultMatrix is the static role→permission matrix of the platform.
func DefaultMatrix() map[Role][]string {
	return map[Role][]string{
		RoleStudent: {
			"courses:read", "content:read",
			"enrollments:create", "enrollments:read",
			"payments:create", "payments:read",
		},
		RoleInstructor: {
			"courses:read", "courses:create", "courses:update",
			"content:read", "content:create", "content:update",
			"enrollments:read",
		},
		RoleModerator: {
			"courses:read", "content:*", "users:read",
		},
		RoleAdmin: {
			"courses:*", "content:*", "enrollments:*",
			"payments:read", "payments:refund",
			"users:read", "users:update", "users:deactivate",
		},
		RoleSuperAdmin: {
			"*:*",
		},
	}
}

// DefaultPolicy returns the policy built from DefaultMatrix.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(DefaultMatrix())
	if err != nil {
		panic(fmt.Sprintf("domain: default policy: %v", err))
	}
	return p
}

// Known reports whether role appears in the matrix.
func (p *Policy) Known(role Role) bool {
	_, ok := p.grants[role]
	return ok
}

// CheckRole returns ErrRoleDenied unless role is known and in allowed.
func (p *Policy) CheckRole(role Role, allowed ...Role) error {
	if !p.Known(role) || !slices.Contains(allowed, role) {
		return fmt.Errorf("%w: %s", ErrRoleDenied, role)
	}
	return nil
}

// Can reports whether role may perform action on resource.
func (p *Policy) Can(role Role, resource, action string) bool {
	return slices.ContainsFunc(p.grants[role], func(g Permission) bool {
		return g.matches(resource, action)
	})
}

// CheckPermission returns ErrPermissionDenied unless role may perform action
// on resource.
func (p *Policy) CheckPermission(role Role, resource, action string) error {
	if !p.Can(role, resource, action) {
		return fmt.Errorf("%w: %s cannot %s %s", ErrPermissionDenied, role, action, resource)
	}
	return nil
}

// Permissions lists the grants of role as "resource:action" strings.
func (p *Policy) Permissions(role Role) []string {
	grants := p.grants[role]
	out := make([]string, 0, len(grants))
	for _, g := range grants {
		out = append(out, g.String())
	}
	return out
}
