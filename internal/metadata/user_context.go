package metadata

// UserContext represents the authenticated admin, set by auth middleware.
type UserContext struct {
	ID          string   `json:"id"`
	RoleIDs     []int64  `json:"role_ids"`
	Level       int      `json:"level"`
	Permissions []string `json:"permissions"`
	IP          string   `json:"-"`
}

// HasRole checks whether the user holds the role with the given id.
func (u *UserContext) HasRole(id int64) bool {
	for _, r := range u.RoleIDs {
		if r == id {
			return true
		}
	}
	return false
}

// IsSuperuser checks whether the user holds the global "*:*" grant.
func (u *UserContext) IsSuperuser() bool {
	for _, p := range u.Permissions {
		if p == "*:*" {
			return true
		}
	}
	return false
}
