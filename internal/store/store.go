package store

import (
	"context"
	"errors"
	"time"

	"cabinet-admin/internal/metadata"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

type RoleStore interface {
	ListRoles(ctx context.Context) ([]metadata.Role, error)
	GetRole(ctx context.Context, id int64) (*metadata.Role, error)
	CreateRole(ctx context.Context, p metadata.RolePayload) (*metadata.Role, error)
	UpdateRole(ctx context.Context, id int64, p metadata.RolePayload) (*metadata.Role, error)
	DeleteRole(ctx context.Context, id int64) error
}

type PolicyStore interface {
	ListPolicies(ctx context.Context) ([]metadata.AccessPolicy, error)
	GetPolicy(ctx context.Context, id int64) (*metadata.AccessPolicy, error)
	CreatePolicy(ctx context.Context, p metadata.PolicyPayload) (*metadata.AccessPolicy, error)
	UpdatePolicy(ctx context.Context, id int64, p metadata.PolicyPayload) (*metadata.AccessPolicy, error)
	DeletePolicy(ctx context.Context, id int64) error
}

type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*AdminUser, error)
	GetUser(ctx context.Context, id string) (*AdminUser, error)
}

type TokenStore interface {
	CreateRefreshToken(ctx context.Context, userID string, ttl time.Duration) (string, error)
	// ConsumeRefreshToken deletes an unexpired token and returns its owner.
	ConsumeRefreshToken(ctx context.Context, token string) (string, error)
	DeleteRefreshToken(ctx context.Context, token string) error
	DeleteExpiredTokens(ctx context.Context) (int64, error)
}

type AuditStore interface {
	InsertAuditEvents(ctx context.Context, events []AuditEvent) error
	ListAuditEvents(ctx context.Context, f AuditFilter) ([]AuditEvent, error)
	DeleteAuditBefore(ctx context.Context, before time.Time) (int64, error)
}

// Repository is everything the server persists.
type Repository interface {
	RoleStore
	PolicyStore
	UserStore
	TokenStore
	AuditStore
	Bootstrap(ctx context.Context, seed Seed) error
	Close()
}

type AdminUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	RoleIDs      []int64   `json:"role_ids"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type AuditEvent struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Entity    string         `json:"entity"`
	EntityID  string         `json:"entity_id"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditFilter narrows ListAuditEvents. Empty fields match everything.
type AuditFilter struct {
	Actor  string
	Action string
	Entity string
	Limit  int
}

func (f AuditFilter) match(e AuditEvent) bool {
	return (f.Actor == "" || f.Actor == e.Actor) &&
		(f.Action == "" || f.Action == e.Action) &&
		(f.Entity == "" || f.Entity == e.Entity)
}

// Seed is the initial superuser created on an empty database.
type Seed struct {
	Email    string
	Password string
}

// SuperadminRole is the system role created by Bootstrap.
var SuperadminRole = metadata.RolePayload{
	Name:        "Superadmin",
	Level:       metadata.MaxRoleLevel,
	Color:       "#ef4444",
	Permissions: []string{"*:*"},
}
