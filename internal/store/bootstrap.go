package store

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const systemTablesSQL = `
CREATE TABLE IF NOT EXISTS cabinet_roles (
    id          BIGSERIAL PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    description TEXT,
    level       INT NOT NULL DEFAULT 0,
    color       TEXT NOT NULL DEFAULT '#6366f1',
    permissions TEXT[] NOT NULL DEFAULT '{}',
    is_system   BOOLEAN NOT NULL DEFAULT false,
    is_active   BOOLEAN NOT NULL DEFAULT true,
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    updated_at  TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS cabinet_policies (
    id          BIGSERIAL PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT,
    effect      TEXT NOT NULL CHECK (effect IN ('allow', 'deny')),
    resource    TEXT NOT NULL,
    action      TEXT NOT NULL,
    conditions  JSONB NOT NULL DEFAULT '{}',
    priority    INT NOT NULL DEFAULT 0,
    is_active   BOOLEAN NOT NULL DEFAULT true,
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    updated_at  TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_cabinet_policies_resource ON cabinet_policies(resource);

CREATE TABLE IF NOT EXISTS cabinet_admin_users (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role_ids      BIGINT[] NOT NULL DEFAULT '{}',
    active        BOOLEAN DEFAULT true,
    created_at    TIMESTAMPTZ DEFAULT NOW(),
    updated_at    TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS cabinet_refresh_tokens (
    id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id    UUID NOT NULL REFERENCES cabinet_admin_users(id) ON DELETE CASCADE,
    token      UUID NOT NULL UNIQUE DEFAULT gen_random_uuid(),
    expires_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_cabinet_refresh_tokens_expires ON cabinet_refresh_tokens(expires_at);

CREATE TABLE IF NOT EXISTS cabinet_audit_events (
    id         UUID PRIMARY KEY,
    actor      TEXT NOT NULL,
    action     TEXT NOT NULL,
    entity     TEXT NOT NULL,
    entity_id  TEXT NOT NULL DEFAULT '',
    details    JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_cabinet_audit_created ON cabinet_audit_events(created_at);
`

func (s *Store) Bootstrap(ctx context.Context, seed Seed) error {
	if _, err := s.Pool.Exec(ctx, systemTablesSQL); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}
	if err := s.seedAdminUser(ctx, seed); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return nil
}

func (s *Store) seedAdminUser(ctx context.Context, seed Seed) error {
	var count int
	err := s.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM cabinet_admin_users").Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	var roleID int64
	err = s.Pool.QueryRow(ctx,
		`INSERT INTO cabinet_roles (name, level, color, permissions, is_system)
		 VALUES ($1, $2, $3, $4, true)
		 ON CONFLICT (name) DO UPDATE SET is_system = true
		 RETURNING id`,
		SuperadminRole.Name, SuperadminRole.Level, SuperadminRole.Color, SuperadminRole.Permissions,
	).Scan(&roleID)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(seed.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = s.Pool.Exec(ctx,
		`INSERT INTO cabinet_admin_users (email, password_hash, role_ids) VALUES ($1, $2, $3)`,
		seed.Email, string(hash), []int64{roleID},
	)
	if err != nil {
		return err
	}

	log.Warnf("Default admin user created (%s) - change the password immediately.", seed.Email)
	return nil
}
