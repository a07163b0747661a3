package principal

import (
	"context"
	"sync"

	"github.com/kuth-chi/eductionhub-sessions/internal/crypto"
	"github.com/kuth-chi/eductionhub-sessions/internal/model"
)

// MemoryDirectory is the in-memory Directory used by tests.
type MemoryDirectory struct {
	mu         sync.RWMutex
	principals map[string]model.Principal
	passwords  map[string]string // username -> bcrypt hash
	byUsername map[string]string // username -> id
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		principals: make(map[string]model.Principal),
		passwords:  make(map[string]string),
		byUsername: make(map[string]string),
	}
}

// Add registers a principal with a plaintext password.
func (d *MemoryDirectory) Add(p model.Principal, password string) error {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.principals[p.ID] = p
	d.passwords[p.Username] = hash
	d.byUsername[p.Username] = p.ID
	return nil
}

func (d *MemoryDirectory) Authenticate(_ context.Context, username, password string) (model.Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byUsername[username]
	if !ok {
		return model.Principal{}, ErrInvalidCredentials
	}
	p := d.principals[id]
	if !p.Active {
		return model.Principal{}, ErrInvalidCredentials
	}
	if err := crypto.CheckPassword(d.passwords[username], password); err != nil {
		return model.Principal{}, ErrInvalidCredentials
	}
	return p, nil
}

func (d *MemoryDirectory) GetByID(_ context.Context, id string) (model.Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.principals[id]
	if !ok {
		return model.Principal{}, ErrNotFound
	}
	return p, nil
}
