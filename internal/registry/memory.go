package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kuth-chi/eductionhub-sessions/internal/model"
)

// MemoryStore is the in-memory Store used by tests and debug deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.SessionRecord
	revoked map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]model.SessionRecord),
		revoked: make(map[string]time.Time),
	}
}

func (s *MemoryStore) Record(_ context.Context, rec model.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryStore) List(_ context.Context, principalID string) ([]model.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.SessionRecord
	for _, rec := range s.records {
		if rec.PrincipalID == principalID {
			out = append(out, s.withRevocation(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].IssuedAt.After(out[j].IssuedAt)
	})
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, recordID string) (model.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordID]
	if !ok {
		return model.SessionRecord{}, ErrNotFound
	}
	return s.withRevocation(rec), nil
}

func (s *MemoryStore) FindByToken(_ context.Context, token string) (model.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.Token == token {
			return s.withRevocation(rec), nil
		}
	}
	return model.SessionRecord{}, ErrNotFound
}

func (s *MemoryStore) Revoke(_ context.Context, recordID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[recordID]; !ok {
		return false, ErrNotFound
	}
	if _, done := s.revoked[recordID]; done {
		return false, nil
	}
	s.revoked[recordID] = at
	return true, nil
}

// withRevocation is called with the lock held.
func (s *MemoryStore) withRevocation(rec model.SessionRecord) model.SessionRecord {
	if at, ok := s.revoked[rec.ID]; ok {
		rec.Revoked = true
		t := at
		rec.RevokedAt = &t
	}
	return rec
}
