package store

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
)

const catalogTablesSQL = `
CREATE TABLE IF NOT EXISTS _entities (
    id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    tenant       TEXT NOT NULL,
    slug         TEXT NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    icon         TEXT NOT NULL DEFAULT '',
    layout       JSONB NOT NULL DEFAULT '{}',
    storage      TEXT NOT NULL DEFAULT 'table',
    is_system    BOOLEAN NOT NULL DEFAULT false,
    created_at   TIMESTAMPTZ DEFAULT NOW(),
    updated_at   TIMESTAMPTZ DEFAULT NOW(),
    UNIQUE (tenant, slug)
);

CREATE TABLE IF NOT EXISTS _fields (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    entity_id   UUID NOT NULL REFERENCES _entities(id) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    label       TEXT NOT NULL DEFAULT '',
    type        TEXT NOT NULL DEFAULT 'text',
    required    BOOLEAN NOT NULL DEFAULT false,
    options     JSONB NOT NULL DEFAULT '{}',
    formula     TEXT NOT NULL DEFAULT '',
    is_virtual  BOOLEAN NOT NULL DEFAULT false,
    position    INT NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    updated_at  TIMESTAMPTZ DEFAULT NOW(),
    UNIQUE (entity_id, name)
);

CREATE TABLE IF NOT EXISTS _nav_groups (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    tenant      TEXT NOT NULL,
    name        TEXT NOT NULL,
    icon        TEXT NOT NULL DEFAULT '',
    position    INT NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    updated_at  TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _nav_pages (
    id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    tenant         TEXT NOT NULL,
    group_id       UUID NOT NULL REFERENCES _nav_groups(id) ON DELETE CASCADE,
    name           TEXT NOT NULL,
    entity_id      UUID REFERENCES _entities(id) ON DELETE SET NULL,
    layout         JSONB NOT NULL DEFAULT '{}',
    subpages       JSONB NOT NULL DEFAULT '[]',
    default_detail TEXT NOT NULL DEFAULT '',
    default_form   TEXT NOT NULL DEFAULT '',
    position       INT NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ DEFAULT NOW(),
    updated_at     TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _actions (
    id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    tenant          TEXT NOT NULL,
    name            TEXT NOT NULL,
    trigger_source  TEXT NOT NULL DEFAULT 'UI',
    trigger_context TEXT NOT NULL DEFAULT '',
    action_type     TEXT NOT NULL,
    config          JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ DEFAULT NOW(),
    updated_at      TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _trails (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    tenant      TEXT NOT NULL,
    name        TEXT NOT NULL,
    active      BOOLEAN NOT NULL DEFAULT true,
    trigger     JSONB NOT NULL DEFAULT '{}',
    nodes       JSONB NOT NULL DEFAULT '{}',
    variables   JSONB NOT NULL DEFAULT '[]',
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    updated_at  TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _subscriptions (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    tenant      TEXT NOT NULL,
    entity_id   UUID NOT NULL REFERENCES _entities(id) ON DELETE CASCADE,
    event_kind  TEXT NOT NULL,
    target_url  TEXT NOT NULL DEFAULT '',
    trail_id    UUID,
    condition   TEXT NOT NULL DEFAULT '',
    active      BOOLEAN NOT NULL DEFAULT true,
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    updated_at  TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _templates (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    tenant      TEXT NOT NULL,
    name        TEXT NOT NULL,
    document    JSONB NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    updated_at  TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _users (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    tenant        TEXT NOT NULL DEFAULT '',
    email         TEXT NOT NULL UNIQUE,
    name          TEXT NOT NULL DEFAULT '',
    cargo         TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    roles         TEXT[] DEFAULT '{}',
    active        BOOLEAN DEFAULT true,
    created_at    TIMESTAMPTZ DEFAULT NOW(),
    updated_at    TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _refresh_tokens (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id     UUID NOT NULL REFERENCES _users(id) ON DELETE CASCADE,
    token       TEXT NOT NULL UNIQUE,
    expires_at  TIMESTAMPTZ NOT NULL,
    created_at  TIMESTAMPTZ DEFAULT NOW()
);
`

// Bootstrap creates the shared catalog tables and seeds the first admin user.
// Idempotent.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, catalogTablesSQL); err != nil {
		return fmt.Errorf("bootstrap catalog tables: %w", err)
	}
	if err := s.seedAdminUser(ctx); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return nil
}

func (s *Store) seedAdminUser(ctx context.Context) error {
	var count int
	err := s.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM _users").Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = s.Pool.Exec(ctx,
		`INSERT INTO _users (email, name, password_hash, roles) VALUES ($1, $2, $3, $4)`,
		"admin@localhost", "Administrator", string(hashBytes), []string{"admin"},
	)
	if err != nil {
		return err
	}

	log.Println("WARNING: Default admin user created (admin@localhost / changeme). Change the password immediately.")
	return nil
}
