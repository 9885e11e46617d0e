package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cabinet-admin/internal/config"
	"cabinet-admin/internal/metadata"
)

// Querier is implemented by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is the PostgreSQL repository.
type Store struct {
	Pool *pgxpool.Pool
}

var _ Repository = (*Store)(nil)

func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.PoolSize > 0 {
		poolCfg.MaxConns = int32(cfg.PoolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return s.Pool.Begin(ctx)
}

// mapError translates pgx errors into the package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		msg := pgErr.Detail
		if msg == "" {
			msg = pgErr.Message
		}
		return fmt.Errorf("%w: %s", ErrConflict, msg)
	}
	return err
}

const roleColumns = `r.id, r.name, r.description, r.level, r.color, r.permissions, r.is_system, r.is_active,
	(SELECT COUNT(*) FROM cabinet_admin_users u WHERE r.id = ANY(u.role_ids)) AS user_count,
	r.created_at, r.updated_at`

func scanRole(row pgx.Row) (*metadata.Role, error) {
	var r metadata.Role
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Level, &r.Color, &r.Permissions,
		&r.IsSystem, &r.IsActive, &r.UserCount, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	if r.Permissions == nil {
		r.Permissions = []string{}
	}
	return &r, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]metadata.Role, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+roleColumns+` FROM cabinet_roles r ORDER BY r.level DESC, r.id`)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	roles := []metadata.Role{}
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *r)
	}
	return roles, rows.Err()
}

func (s *Store) GetRole(ctx context.Context, id int64) (*metadata.Role, error) {
	return scanRole(s.Pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM cabinet_roles r WHERE r.id = $1`, id))
}

func (s *Store) CreateRole(ctx context.Context, p metadata.RolePayload) (*metadata.Role, error) {
	active := true
	if p.IsActive != nil {
		active = *p.IsActive
	}
	var id int64
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO cabinet_roles (name, description, level, color, permissions, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		p.Name, p.Description, p.Level, p.Color, nonNil(p.Permissions), active,
	).Scan(&id)
	if err != nil {
		return nil, mapError(err)
	}
	return s.GetRole(ctx, id)
}

func (s *Store) UpdateRole(ctx context.Context, id int64, p metadata.RolePayload) (*metadata.Role, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE cabinet_roles
		 SET name = $2, description = $3, level = $4, color = $5, permissions = $6,
		     is_active = COALESCE($7, is_active), updated_at = NOW()
		 WHERE id = $1`,
		id, p.Name, p.Description, p.Level, p.Color, nonNil(p.Permissions), p.IsActive,
	)
	if err != nil {
		return nil, mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.GetRole(ctx, id)
}

func (s *Store) DeleteRole(ctx context.Context, id int64) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM cabinet_roles WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(ctx,
		`UPDATE cabinet_admin_users SET role_ids = array_remove(role_ids, $1) WHERE $1 = ANY(role_ids)`, id,
	); err != nil {
		return fmt.Errorf("detach role: %w", err)
	}
	return tx.Commit(ctx)
}

const policyColumns = `id, name, description, effect, resource, action, conditions, priority, is_active, created_at, updated_at`

func scanPolicy(row pgx.Row) (*metadata.AccessPolicy, error) {
	var p metadata.AccessPolicy
	var conditions []byte
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Effect, &p.Resource, &p.Action,
		&conditions, &p.Priority, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	p.Conditions = metadata.Conditions{}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &p.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions of policy %d: %w", p.ID, err)
		}
	}
	return &p, nil
}

func (s *Store) ListPolicies(ctx context.Context) ([]metadata.AccessPolicy, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+policyColumns+` FROM cabinet_policies ORDER BY priority DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query policies: %w", err)
	}
	defer rows.Close()

	policies := []metadata.AccessPolicy{}
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *p)
	}
	return policies, rows.Err()
}

func (s *Store) GetPolicy(ctx context.Context, id int64) (*metadata.AccessPolicy, error) {
	return scanPolicy(s.Pool.QueryRow(ctx, `SELECT `+policyColumns+` FROM cabinet_policies WHERE id = $1`, id))
}

func (s *Store) CreatePolicy(ctx context.Context, p metadata.PolicyPayload) (*metadata.AccessPolicy, error) {
	conditions, err := json.Marshal(p.Conditions)
	if err != nil {
		return nil, fmt.Errorf("encode conditions: %w", err)
	}
	active := true
	if p.IsActive != nil {
		active = *p.IsActive
	}
	return scanPolicy(s.Pool.QueryRow(ctx,
		`INSERT INTO cabinet_policies (name, description, effect, resource, action, conditions, priority, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+policyColumns,
		p.Name, p.Description, p.Effect, p.Resource, p.Action, conditions, p.Priority, active,
	))
}

func (s *Store) UpdatePolicy(ctx context.Context, id int64, p metadata.PolicyPayload) (*metadata.AccessPolicy, error) {
	conditions, err := json.Marshal(p.Conditions)
	if err != nil {
		return nil, fmt.Errorf("encode conditions: %w", err)
	}
	return scanPolicy(s.Pool.QueryRow(ctx,
		`UPDATE cabinet_policies
		 SET name = $2, description = $3, effect = $4, resource = $5, action = $6,
		     conditions = $7, priority = $8, is_active = COALESCE($9, is_active), updated_at = NOW()
		 WHERE id = $1 RETURNING `+policyColumns,
		id, p.Name, p.Description, p.Effect, p.Resource, p.Action, conditions, p.Priority, p.IsActive,
	))
}

func (s *Store) DeletePolicy(ctx context.Context, id int64) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM cabinet_policies WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*AdminUser, error) {
	var u AdminUser
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.RoleIDs, &u.Active, &u.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*AdminUser, error) {
	return scanUser(s.Pool.QueryRow(ctx,
		`SELECT id::text, email, password_hash, role_ids, active, created_at FROM cabinet_admin_users WHERE email = $1`, email))
}

func (s *Store) GetUser(ctx context.Context, id string) (*AdminUser, error) {
	return scanUser(s.Pool.QueryRow(ctx,
		`SELECT id::text, email, password_hash, role_ids, active, created_at FROM cabinet_admin_users WHERE id = $1`, id))
}

func (s *Store) CreateRefreshToken(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	var token string
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO cabinet_refresh_tokens (user_id, expires_at) VALUES ($1, $2) RETURNING token::text`,
		userID, time.Now().Add(ttl),
	).Scan(&token)
	if err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return token, nil
}

func (s *Store) ConsumeRefreshToken(ctx context.Context, token string) (string, error) {
	var userID string
	var expiresAt time.Time
	err := s.Pool.QueryRow(ctx,
		`DELETE FROM cabinet_refresh_tokens WHERE token = $1 RETURNING user_id::text, expires_at`, token,
	).Scan(&userID, &expiresAt)
	if err != nil {
		return "", mapError(err)
	}
	if time.Now().After(expiresAt) {
		return "", ErrNotFound
	}
	return userID, nil
}

func (s *Store) DeleteRefreshToken(ctx context.Context, token string) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM cabinet_refresh_tokens WHERE token = $1`, token)
	return mapError(err)
}

func (s *Store) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM cabinet_refresh_tokens WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InsertAuditEvents writes a batch in a single transaction.
func (s *Store) InsertAuditEvents(ctx context.Context, events []AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		var details []byte
		if e.Details != nil {
			b, err := json.Marshal(e.Details)
			if err != nil {
				return fmt.Errorf("encode audit details: %w", err)
			}
			details = b
		}
		batch.Queue(
			`INSERT INTO cabinet_audit_events (id, actor, action, entity, entity_id, details, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.ID, e.Actor, e.Action, e.Entity, e.EntityID, details, e.CreatedAt,
		)
	}
	return s.Pool.SendBatch(ctx, batch).Close()
}

func (s *Store) ListAuditEvents(ctx context.Context, f AuditFilter) ([]AuditEvent, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT id::text, actor, action, entity, entity_id, details, created_at
		 FROM cabinet_audit_events
		 WHERE ($1 = '' OR actor = $1) AND ($2 = '' OR action = $2) AND ($3 = '' OR entity = $3)
		 ORDER BY created_at DESC LIMIT $4`, f.Actor, f.Action, f.Entity, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := []AuditEvent{}
	for rows.Next() {
		var e AuditEvent
		var details []byte
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Entity, &e.EntityID, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &e.Details)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) DeleteAuditBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM cabinet_audit_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
