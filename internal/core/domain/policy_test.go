package domain

import (
	"errors"
	"testing"
)

func TestPolicy_CheckPermission(t *testing.T) {
	p := DefaultPolicy()

	cases := []struct {
		role     Role
		resource string
		action   string
		allowed  bool
	}{
		{RoleStudent, "courses", "read", true},
		{RoleStudent, "courses", "update", false},
		{RoleInstructor, "courses", "update", true},
		{RoleInstructor, "payments", "refund", false},
		{RoleModerator, "content", "delete", true},
		{RoleAdmin, "users", "deactivate", true},
		{RoleAdmin, "payments", "create", false},
		{RoleSuperAdmin, "anything", "goes", true},
		{Role("ghost"), "courses", "read", false},
	}
	for _, tc := range cases {
		err := p.CheckPermission(tc.role, tc.resource, tc.action)
		if tc.allowed && err != nil {
			t.Errorf("%s %s:%s: expected allowed, got %v", tc.role, tc.resource, tc.action, err)
		}
		if !tc.allowed && !errors.Is(err, ErrPermissionDenied) {
			t.Errorf("%s %s:%s: expected PermissionDenied, got %v", tc.role, tc.resource, tc.action, err)
		}
	}
}

func TestPolicy_CheckRole(t *testing.T) {
	p := DefaultPolicy()

	if err := p.CheckRole(RoleAdmin, RoleAdmin, RoleSuperAdmin); err != nil {
		t.Fatalf("expected admin allowed, got %v", err)
	}
	if err := p.CheckRole(RoleStudent, RoleAdmin); !errors.Is(err, ErrRoleDenied) {
		t.Fatalf("expected RoleDenied, got %v", err)
	}
	// a role outside the matrix passes no check even when listed
	if err := p.CheckRole(Role("ghost"), Role("ghost")); !errors.Is(err, ErrRoleDenied) {
		t.Fatalf("expected unknown role denied, got %v", err)
	}
}

func TestNewPolicy_RejectsMalformedMatrix(t *testing.T) {
	if _, err := NewPolicy(map[Role][]string{RoleStudent: {"courses"}}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected malformed permission rejected, got %v", err)
	}
	if _, err := NewPolicy(map[Role][]string{Role("ghost"): {"a:b"}}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected unknown role rejected, got %v", err)
	}
}

func TestPolicy_Permissions(t *testing.T) {
	got := DefaultPolicy().Permissions(RoleSuperAdmin)
	if len(got) != 1 || got[0] != "*:*" {
		t.Fatalf("unexpected grants: %v", got)
	}
}
