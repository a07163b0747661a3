// Package principal exposes the read-only principal directory this
// subsystem authenticates against. Principals, their roles and their
// permission codes are owned by the surrounding identity platform; nothing
// here mutates them except the last-login touch at successful login.
package principal

import (
	"context"
	"errors"

	"github.com/kuth-chi/eductionhub-sessions/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("principal not found")
)

// Directory resolves and authenticates principals.
type Directory interface {
	// Authenticate verifies the password for an active principal.
	// Unknown usernames, inactive accounts and bad passwords are all
	// ErrInvalidCredentials.
	Authenticate(ctx context.Context, username, password string) (model.Principal, error)
	// GetByID resolves a principal with roles and permission codes.
	GetByID(ctx context.Context, id string) (model.Principal, error)
}
