// Package registry persists outstanding session records and their
// revocation entries. Records are append-only: the only mutation ever
// applied is the idempotent insertion of a revocation entry.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/kuth-chi/eductionhub-sessions/internal/model"
)

// ErrNotFound is returned for missing records. Callers enforcing ownership
// return it for foreign records too, so a caller can never distinguish
// "not yours" from "not there".
var ErrNotFound = errors.New("session record not found")

// Store abstracts session persistence so any storage engine is
// substitutable; the in-memory implementation backs the tests.
type Store interface {
	// Record persists a new outstanding session record.
	Record(ctx context.Context, rec model.SessionRecord) error
	// List returns all records for the principal, revoked included,
	// newest first.
	List(ctx context.Context, principalID string) ([]model.SessionRecord, error)
	// Get returns one record by id.
	Get(ctx context.Context, recordID string) (model.SessionRecord, error)
	// FindByToken returns the record backing a raw refresh credential.
	FindByToken(ctx context.Context, token string) (model.SessionRecord, error)
	// Revoke inserts a revocation entry for the record. It reports
	// whether the entry is new; revoking twice is a no-op, not an error.
	Revoke(ctx context.Context, recordID string, at time.Time) (bool, error)
}
