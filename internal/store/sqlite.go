package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"cabinet-admin/internal/metadata"
)

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const sqliteSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS cabinet_roles (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL UNIQUE,
    description TEXT,
    level       INTEGER NOT NULL DEFAULT 0,
    color       TEXT NOT NULL DEFAULT '#6366f1',
    permissions TEXT NOT NULL DEFAULT '[]',
    is_system   INTEGER NOT NULL DEFAULT 0,
    is_active   INTEGER NOT NULL DEFAULT 1,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cabinet_policies (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL,
    description TEXT,
    effect      TEXT NOT NULL CHECK (effect IN ('allow', 'deny')),
    resource    TEXT NOT NULL,
    action      TEXT NOT NULL,
    conditions  TEXT NOT NULL DEFAULT '{}',
    priority    INTEGER NOT NULL DEFAULT 0,
    is_active   INTEGER NOT NULL DEFAULT 1,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cabinet_policies_resource ON cabinet_policies(resource);

CREATE TABLE IF NOT EXISTS cabinet_admin_users (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
    password_hash TEXT NOT NULL,
    role_ids      TEXT NOT NULL DEFAULT '[]',
    active        INTEGER NOT NULL DEFAULT 1,
    created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cabinet_refresh_tokens (
    token      TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL REFERENCES cabinet_admin_users(id) ON DELETE CASCADE,
    expires_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cabinet_refresh_tokens_expires ON cabinet_refresh_tokens(expires_at);

CREATE TABLE IF NOT EXISTS cabinet_audit_events (
    id         TEXT PRIMARY KEY,
    actor      TEXT NOT NULL,
    action     TEXT NOT NULL,
    entity     TEXT NOT NULL,
    entity_id  TEXT NOT NULL DEFAULT '',
    details    TEXT,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cabinet_audit_created ON cabinet_audit_events(created_at);
`

// SQLite is the single-file repository backed by modernc.org/sqlite.
type SQLite struct {
	DB  *sql.DB
	now func() time.Time
}

var _ Repository = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database file at path. Use ":memory:"
// for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite: single writer, WAL mode for concurrent reads
	db.SetMaxOpenConns(1)
	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &SQLite{DB: db, now: time.Now}, nil
}

func (s *SQLite) Close() {
	if err := s.DB.Close(); err != nil {
		log.Errorf("close sqlite: %v", err)
	}
}

func (s *SQLite) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

func parseStamp(v string) time.Time {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %s", ErrConflict, se.Error())
		case sqlite3.SQLITE_CONSTRAINT:
			if strings.Contains(se.Error(), "UNIQUE constraint failed") {
				return fmt.Errorf("%w: %s", ErrConflict, se.Error())
			}
		}
	}
	return err
}

func (s *SQLite) Bootstrap(ctx context.Context, seed Seed) error {
	if _, err := s.DB.ExecContext(ctx, sqliteSystemTablesSQL); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}

	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM cabinet_admin_users").Scan(&count); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	if count > 0 {
		return nil
	}

	perms, _ := json.Marshal(SuperadminRole.Permissions)
	now := s.stamp()
	var roleID int64
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO cabinet_roles (name, level, color, permissions, is_system, created_at, updated_at)
		 VALUES (?1, ?2, ?3, ?4, 1, ?5, ?5)
		 ON CONFLICT (name) DO UPDATE SET is_system = 1
		 RETURNING id`,
		SuperadminRole.Name, SuperadminRole.Level, SuperadminRole.Color, string(perms), now,
	).Scan(&roleID)
	if err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(seed.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	roleIDs, _ := json.Marshal([]int64{roleID})
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO cabinet_admin_users (id, email, password_hash, role_ids, created_at) VALUES (?1, ?2, ?3, ?4, ?5)`,
		uuid.NewString(), seed.Email, string(hash), string(roleIDs), now,
	)
	if err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	log.Warnf("Default admin user created (%s) - change the password immediately.", seed.Email)
	return nil
}

// nullable turns a nil pointer into SQL NULL.
func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

type rowScanner interface {
	Scan(dest ...any) error
}

const sqliteRoleColumns = `r.id, r.name, r.description, r.level, r.color, r.permissions, r.is_system, r.is_active,
	(SELECT COUNT(*) FROM cabinet_admin_users u, json_each(u.role_ids) j WHERE j.value = r.id) AS user_count,
	r.created_at, r.updated_at`

func scanSQLiteRole(row rowScanner) (*metadata.Role, error) {
	var r metadata.Role
	var perms, created, updated string
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Level, &r.Color, &perms,
		&r.IsSystem, &r.IsActive, &r.UserCount, &created, &updated)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	if err := json.Unmarshal([]byte(perms), &r.Permissions); err != nil {
		return nil, fmt.Errorf("decode permissions of role %d: %w", r.ID, err)
	}
	if r.Permissions == nil {
		r.Permissions = []string{}
	}
	r.CreatedAt, r.UpdatedAt = parseStamp(created), parseStamp(updated)
	return &r, nil
}

func (s *SQLite) ListRoles(ctx context.Context) ([]metadata.Role, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+sqliteRoleColumns+` FROM cabinet_roles r ORDER BY r.level DESC, r.id`)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	roles := []metadata.Role{}
	for rows.Next() {
		r, err := scanSQLiteRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *r)
	}
	return roles, rows.Err()
}

func (s *SQLite) GetRole(ctx context.Context, id int64) (*metadata.Role, error) {
	return scanSQLiteRole(s.DB.QueryRowContext(ctx, `SELECT `+sqliteRoleColumns+` FROM cabinet_roles r WHERE r.id = ?1`, id))
}

func (s *SQLite) CreateRole(ctx context.Context, p metadata.RolePayload) (*metadata.Role, error) {
	active := true
	if p.IsActive != nil {
		active = *p.IsActive
	}
	perms, err := json.Marshal(nonNil(p.Permissions))
	if err != nil {
		return nil, err
	}
	now := s.stamp()
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO cabinet_roles (name, description, level, color, permissions, is_active, created_at, updated_at)
		 VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?7)`,
		p.Name, nullable(p.Description), p.Level, p.Color, string(perms), active, now,
	)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetRole(ctx, id)
}

func (s *SQLite) UpdateRole(ctx context.Context, id int64, p metadata.RolePayload) (*metadata.Role, error) {
	perms, err := json.Marshal(nonNil(p.Permissions))
	if err != nil {
		return nil, err
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE cabinet_roles
		 SET name = ?2, description = ?3, level = ?4, color = ?5, permissions = ?6,
		     is_active = COALESCE(?7, is_active), updated_at = ?8
		 WHERE id = ?1`,
		id, p.Name, nullable(p.Description), p.Level, p.Color, string(perms), nullable(p.IsActive), s.stamp(),
	)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetRole(ctx, id)
}

// DeleteRole removes the role and detaches it from every user holding it.
func (s *SQLite) DeleteRole(ctx context.Context, id int64) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM cabinet_roles WHERE id = ?1`, id)
	if err != nil {
		return mapSQLiteError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT u.id, u.role_ids FROM cabinet_admin_users u
		 WHERE EXISTS (SELECT 1 FROM json_each(u.role_ids) j WHERE j.value = ?1)`, id)
	if err != nil {
		return fmt.Errorf("detach role: %w", err)
	}
	updates := map[string][]int64{}
	for rows.Next() {
		var userID, raw string
		if err := rows.Scan(&userID, &raw); err != nil {
			rows.Close()
			return err
		}
		var ids []int64
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			rows.Close()
			return fmt.Errorf("decode role ids of user %s: %w", userID, err)
		}
		updates[userID] = slices.DeleteFunc(ids, func(v int64) bool { return v == id })
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for userID, ids := range updates {
		raw, _ := json.Marshal(append([]int64{}, ids...))
		if _, err := tx.ExecContext(ctx, `UPDATE cabinet_admin_users SET role_ids = ?2 WHERE id = ?1`, userID, string(raw)); err != nil {
			return fmt.Errorf("detach role: %w", err)
		}
	}
	return tx.Commit()
}

const sqlitePolicyColumns = `id, name, description, effect, resource, action, conditions, priority, is_active, created_at, updated_at`

func scanSQLitePolicy(row rowScanner) (*metadata.AccessPolicy, error) {
	var p metadata.AccessPolicy
	var conditions, created, updated string
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Effect, &p.Resource, &p.Action,
		&conditions, &p.Priority, &p.IsActive, &created, &updated)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	p.Conditions = metadata.Conditions{}
	if conditions != "" {
		if err := json.Unmarshal([]byte(conditions), &p.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions of policy %d: %w", p.ID, err)
		}
	}
	p.CreatedAt, p.UpdatedAt = parseStamp(created), parseStamp(updated)
	return &p, nil
}

func (s *SQLite) ListPolicies(ctx context.Context) ([]metadata.AccessPolicy, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+sqlitePolicyColumns+` FROM cabinet_policies ORDER BY priority DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query policies: %w", err)
	}
	defer rows.Close()

	policies := []metadata.AccessPolicy{}
	for rows.Next() {
		p, err := scanSQLitePolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *p)
	}
	return policies, rows.Err()
}

func (s *SQLite) GetPolicy(ctx context.Context, id int64) (*metadata.AccessPolicy, error) {
	return scanSQLitePolicy(s.DB.QueryRowContext(ctx, `SELECT `+sqlitePolicyColumns+` FROM cabinet_policies WHERE id = ?1`, id))
}

func (s *SQLite) CreatePolicy(ctx context.Context, p metadata.PolicyPayload) (*metadata.AccessPolicy, error) {
	conditions, err := json.Marshal(p.Conditions)
	if err != nil {
		return nil, fmt.Errorf("encode conditions: %w", err)
	}
	active := true
	if p.IsActive != nil {
		active = *p.IsActive
	}
	now := s.stamp()
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO cabinet_policies (name, description, effect, resource, action, conditions, priority, is_active, created_at, updated_at)
		 VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?9)`,
		p.Name, nullable(p.Description), string(p.Effect), p.Resource, p.Action, string(conditions), p.Priority, active, now,
	)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetPolicy(ctx, id)
}

func (s *SQLite) UpdatePolicy(ctx context.Context, id int64, p metadata.PolicyPayload) (*metadata.AccessPolicy, error) {
	conditions, err := json.Marshal(p.Conditions)
	if err != nil {
		return nil, fmt.Errorf("encode conditions: %w", err)
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE cabinet_policies
		 SET name = ?2, description = ?3, effect = ?4, resource = ?5, action = ?6,
		     conditions = ?7, priority = ?8, is_active = COALESCE(?9, is_active), updated_at = ?10
		 WHERE id = ?1`,
		id, p.Name, nullable(p.Description), string(p.Effect), p.Resource, p.Action, string(conditions), p.Priority, nullable(p.IsActive), s.stamp(),
	)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetPolicy(ctx, id)
}

func (s *SQLite) DeletePolicy(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM cabinet_policies WHERE id = ?1`, id)
	if err != nil {
		return mapSQLiteError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSQLiteUser(row rowScanner) (*AdminUser, error) {
	var u AdminUser
	var roleIDs, created string
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &roleIDs, &u.Active, &created); err != nil {
		return nil, mapSQLiteError(err)
	}
	if err := json.Unmarshal([]byte(roleIDs), &u.RoleIDs); err != nil {
		return nil, fmt.Errorf("decode role ids of user %s: %w", u.ID, err)
	}
	u.CreatedAt = parseStamp(created)
	return &u, nil
}

func (s *SQLite) GetUserByEmail(ctx context.Context, email string) (*AdminUser, error) {
	return scanSQLiteUser(s.DB.QueryRowContext(ctx,
		`SELECT id, email, password_hash, role_ids, active, created_at FROM cabinet_admin_users WHERE email = ?1`, email))
}

func (s *SQLite) GetUser(ctx context.Context, id string) (*AdminUser, error) {
	return scanSQLiteUser(s.DB.QueryRowContext(ctx,
		`SELECT id, email, password_hash, role_ids, active, created_at FROM cabinet_admin_users WHERE id = ?1`, id))
}

// AddUser creates an admin user with a bcrypt-hashed password.
func (s *SQLite) AddUser(ctx context.Context, email, password string, roleIDs []int64) (*AdminUser, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(append([]int64{}, roleIDs...))
	id := uuid.NewString()
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO cabinet_admin_users (id, email, password_hash, role_ids, created_at) VALUES (?1, ?2, ?3, ?4, ?5)`,
		id, email, string(hash), string(raw), s.stamp(),
	)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	return s.GetUser(ctx, id)
}

func (s *SQLite) CreateRefreshToken(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO cabinet_refresh_tokens (token, user_id, expires_at) VALUES (?1, ?2, ?3)`,
		token, userID, s.now().Add(ttl).UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return token, nil
}

func (s *SQLite) ConsumeRefreshToken(ctx context.Context, token string) (string, error) {
	var userID, expiresAt string
	err := s.DB.QueryRowContext(ctx,
		`DELETE FROM cabinet_refresh_tokens WHERE token = ?1 RETURNING user_id, expires_at`, token,
	).Scan(&userID, &expiresAt)
	if err != nil {
		return "", mapSQLiteError(err)
	}
	if s.now().After(parseStamp(expiresAt)) {
		return "", ErrNotFound
	}
	return userID, nil
}

func (s *SQLite) DeleteRefreshToken(ctx context.Context, token string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM cabinet_refresh_tokens WHERE token = ?1`, token)
	return mapSQLiteError(err)
}

func (s *SQLite) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM cabinet_refresh_tokens WHERE expires_at < ?1`, s.stamp())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InsertAuditEvents writes a batch in a single transaction.
func (s *SQLite) InsertAuditEvents(ctx context.Context, events []AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cabinet_audit_events (id, actor, action, entity, entity_id, details, created_at)
		 VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		var details any
		if e.Details != nil {
			b, err := json.Marshal(e.Details)
			if err != nil {
				return fmt.Errorf("encode audit details: %w", err)
			}
			details = string(b)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.Actor, e.Action, e.Entity, e.EntityID, details,
			e.CreatedAt.UTC().Format(timeLayout)); err != nil {
			return mapSQLiteError(err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) ListAuditEvents(ctx context.Context, f AuditFilter) ([]AuditEvent, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, actor, action, entity, entity_id, details, created_at
		 FROM cabinet_audit_events
		 WHERE (?1 = '' OR actor = ?1) AND (?2 = '' OR action = ?2) AND (?3 = '' OR entity = ?3)
		 ORDER BY created_at DESC LIMIT ?4`, f.Actor, f.Action, f.Entity, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := []AuditEvent{}
	for rows.Next() {
		var e AuditEvent
		var details sql.NullString
		var created string
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Entity, &e.EntityID, &details, &created); err != nil {
			return nil, err
		}
		if details.Valid && details.String != "" {
			_ = json.Unmarshal([]byte(details.String), &e.Details)
		}
		e.CreatedAt = parseStamp(created)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLite) DeleteAuditBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM cabinet_audit_events WHERE created_at < ?1`, before.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
