package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS principals (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	is_superuser  BOOLEAN NOT NULL DEFAULT FALSE,
	last_login    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS principal_roles (
	principal_id TEXT NOT NULL REFERENCES principals(id),
	role         TEXT NOT NULL,
	PRIMARY KEY (principal_id, role)
);

CREATE TABLE IF NOT EXISTS principal_permissions (
	principal_id TEXT NOT NULL REFERENCES principals(id),
	permission   TEXT NOT NULL,
	PRIMARY KEY (principal_id, permission)
);

CREATE TABLE IF NOT EXISTS outstanding_sessions (
	id           TEXT PRIMARY KEY,
	principal_id TEXT NOT NULL,
	token        TEXT NOT NULL UNIQUE,
	issued_at    TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL,
	user_agent   TEXT NOT NULL DEFAULT '',
	ip_address   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS outstanding_sessions_principal_idx
	ON outstanding_sessions (principal_id, issued_at DESC);

CREATE TABLE IF NOT EXISTS session_revocations (
	record_id  TEXT PRIMARY KEY REFERENCES outstanding_sessions(id),
	revoked_at TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the service tables when missing. The DDL is
// re-runnable, so startup can call it unconditionally.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
