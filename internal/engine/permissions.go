package engine

import (
	"fmt"

	"cabinet-admin/internal/metadata"
	"cabinet-admin/internal/permission"
)

// CheckPermission verifies that the user's effective permissions grant
// section:action. Returns nil if allowed, or an UNAUTHORIZED/FORBIDDEN AppError.
func CheckPermission(user *metadata.UserContext, section, action string) error {
	if user == nil {
		return UnauthorizedError("Authentication required")
	}
	if permission.Grants(user.Permissions, permission.New(section, action)) {
		return nil
	}
	return ForbiddenError(fmt.Sprintf("Permission denied for %s on %s", action, section))
}

// CanManageRole reports whether the user may create, edit or delete a role
// with the given level. Only strictly lower levels are manageable.
func CanManageRole(user *metadata.UserContext, level int) bool {
	if user == nil {
		return false
	}
	if user.IsSuperuser() {
		return true
	}
	return level < user.Level
}

// CheckRoleLevel wraps CanManageRole into a FORBIDDEN AppError.
func CheckRoleLevel(user *metadata.UserContext, level int) error {
	if CanManageRole(user, level) {
		return nil
	}
	return ForbiddenError(fmt.Sprintf("Cannot manage a role with level %d", level))
}
