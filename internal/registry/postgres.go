package registry

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kuth-chi/eductionhub-sessions/internal/model"
)

// PostgresStore persists session records in the outstanding_sessions and
// session_revocations tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const recordColumns = `
	s.id, s.principal_id, s.token, s.issued_at, s.expires_at, s.user_agent, s.ip_address,
	r.revoked_at`

const recordFrom = `
	FROM outstanding_sessions s
	LEFT JOIN session_revocations r ON r.record_id = s.id`

func (s *PostgresStore) Record(ctx context.Context, rec model.SessionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO outstanding_sessions (id, principal_id, token, issued_at, expires_at, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.PrincipalID, rec.Token, rec.IssuedAt, rec.ExpiresAt, rec.UserAgent, rec.IPAddress)
	return err
}

func (s *PostgresStore) List(ctx context.Context, principalID string) ([]model.SessionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+recordFrom+`
		WHERE s.principal_id = $1
		ORDER BY s.issued_at DESC
	`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SessionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, recordID string) (model.SessionRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+recordFrom+`
		WHERE s.id = $1
	`, recordID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.SessionRecord{}, ErrNotFound
	}
	return rec, err
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (model.SessionRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+recordFrom+`
		WHERE s.token = $1
	`, token)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.SessionRecord{}, ErrNotFound
	}
	return rec, err
}

func (s *PostgresStore) Revoke(ctx context.Context, recordID string, at time.Time) (bool, error) {
	if _, err := s.Get(ctx, recordID); err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO session_revocations (record_id, revoked_at)
		VALUES ($1, $2)
		ON CONFLICT (record_id) DO NOTHING
	`, recordID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanRecord(row pgx.Row) (model.SessionRecord, error) {
	var rec model.SessionRecord
	var revokedAt *time.Time
	err := row.Scan(
		&rec.ID,
		&rec.PrincipalID,
		&rec.Token,
		&rec.IssuedAt,
		&rec.ExpiresAt,
		&rec.UserAgent,
		&rec.IPAddress,
		&revokedAt,
	)
	if err != nil {
		return model.SessionRecord{}, err
	}
	if revokedAt != nil {
		rec.Revoked = true
		rec.RevokedAt = revokedAt
	}
	return rec, nil
}
