package engine

import (
	"errors"
	"testing"

	"cabinet-admin/internal/metadata"
)

func TestCheckPermission(t *testing.T) {
	u := &metadata.UserContext{ID: "u", Permissions: []string{"roles:read", "tickets:*"}}

	if err := CheckPermission(u, "roles", "read"); err != nil {
		t.Fatalf("expected roles:read allowed, got %v", err)
	}
	if err := CheckPermission(u, "tickets", "assign"); err != nil {
		t.Fatalf("expected wildcard to grant tickets:assign, got %v", err)
	}

	err := CheckPermission(u, "roles", "delete")
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Status != 403 {
		t.Fatalf("expected 403 AppError, got %v", err)
	}

	err = CheckPermission(nil, "roles", "read")
	if !errors.As(err, &appErr) || appErr.Status != 401 {
		t.Fatalf("expected 401 AppError, got %v", err)
	}
}

func TestCheckPermission_Superuser(t *testing.T) {
	u := &metadata.UserContext{ID: "root", Permissions: []string{"*:*"}}
	if err := CheckPermission(u, "anything", "goes"); err != nil {
		t.Fatalf("superuser denied: %v", err)
	}
}

func TestCanManageRole(t *testing.T) {
	u := &metadata.UserContext{Level: 50}
	if !CanManageRole(u, 49) {
		t.Error("expected lower level manageable")
	}
	if CanManageRole(u, 50) {
		t.Error("expected equal level not manageable")
	}
	if CanManageRole(nil, 0) {
		t.Error("nil user must not manage roles")
	}

	root := &metadata.UserContext{Level: 0, Permissions: []string{"*:*"}}
	if !CanManageRole(root, 999) {
		t.Error("superuser must manage any level")
	}
	if err := CheckRoleLevel(u, 80); err == nil {
		t.Error("expected forbidden error")
	}
}
