package metadata

import "time"

// RoleColors is the palette a role badge can be painted with.
var RoleColors = []string{
	"#6366f1", // indigo
	"#8b5cf6", // violet
	"#a855f7", // purple
	"#ec4899", // pink
	"#ef4444", // red
	"#f97316", // orange
	"#eab308", // yellow
	"#22c55e", // green
	"#14b8a6", // teal
	"#06b6d4", // cyan
	"#3b82f6", // blue
	"#6b7280", // gray
}

const (
	MinRoleLevel = 0
	MaxRoleLevel = 999
)

// Role is a named bundle of permission strings with a rank.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Level       int       `json:"level"`
	Color       string    `json:"color"`
	Permissions []string  `json:"permissions"`
	IsSystem    bool      `json:"is_system"`
	IsActive    bool      `json:"is_active"`
	UserCount   int       `json:"user_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RolePayload is the body of create and update requests.
type RolePayload struct {
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	Level       int      `json:"level"`
	Permissions []string `json:"permissions"`
	Color       string   `json:"color"`
	IsActive    *bool    `json:"is_active,omitempty"`
}
