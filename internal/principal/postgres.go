package principal

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kuth-chi/eductionhub-sessions/internal/crypto"
	"github.com/kuth-chi/eductionhub-sessions/internal/model"
)

// PostgresDirectory reads principals from the platform user tables.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) Authenticate(ctx context.Context, username, password string) (model.Principal, error) {
	var p model.Principal
	var hash string
	row := d.pool.QueryRow(ctx, `
		SELECT id, username, email, password_hash, first_name, last_name, is_active, is_superuser, last_login
		FROM principals
		WHERE username = $1
	`, username)
	err := row.Scan(&p.ID, &p.Username, &p.Email, &hash, &p.FirstName, &p.LastName, &p.Active, &p.Superuser, &p.LastLogin)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Principal{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.Principal{}, err
	}
	if !p.Active {
		return model.Principal{}, ErrInvalidCredentials
	}
	if err := crypto.CheckPassword(hash, password); err != nil {
		return model.Principal{}, ErrInvalidCredentials
	}

	if err := d.loadCapabilities(ctx, &p); err != nil {
		return model.Principal{}, err
	}

	now := time.Now().UTC()
	_, _ = d.pool.Exec(ctx, `UPDATE principals SET last_login = $1 WHERE id = $2`, now, p.ID)
	p.LastLogin = &now
	return p, nil
}

func (d *PostgresDirectory) GetByID(ctx context.Context, id string) (model.Principal, error) {
	var p model.Principal
	row := d.pool.QueryRow(ctx, `
		SELECT id, username, email, first_name, last_name, is_active, is_superuser, last_login
		FROM principals
		WHERE id = $1
	`, id)
	err := row.Scan(&p.ID, &p.Username, &p.Email, &p.FirstName, &p.LastName, &p.Active, &p.Superuser, &p.LastLogin)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Principal{}, ErrNotFound
	}
	if err != nil {
		return model.Principal{}, err
	}
	if err := d.loadCapabilities(ctx, &p); err != nil {
		return model.Principal{}, err
	}
	return p, nil
}

func (d *PostgresDirectory) loadCapabilities(ctx context.Context, p *model.Principal) error {
	roles, err := d.collect(ctx, `SELECT role FROM principal_roles WHERE principal_id = $1 ORDER BY role`, p.ID)
	if err != nil {
		return err
	}
	permissions, err := d.collect(ctx, `SELECT permission FROM principal_permissions WHERE principal_id = $1 ORDER BY permission`, p.ID)
	if err != nil {
		return err
	}
	p.Roles = roles
	p.Permissions = permissions
	return nil
}

func (d *PostgresDirectory) collect(ctx context.Context, query, id string) ([]string, error) {
	rows, err := d.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, rows.Err()
}
