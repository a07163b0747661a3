// Package revocation marks outstanding sessions as revoked. Revocation is
// idempotent: revoking twice leaves the original timestamp and reports no
// new work.
package revocation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kuth-chi/eductionhub-sessions/internal/registry"
	"github.com/kuth-chi/eductionhub-sessions/internal/sessioncache"
)

var ErrNotFound = errors.New("revocation: session not found")

type Service struct {
	store registry.Store
	cache *sessioncache.Cache
	log   *zap.Logger
	now   func() time.Time
}

func New(store registry.Store, cache *sessioncache.Cache, log *zap.Logger) *Service {
	return &Service{store: store, cache: cache, log: log, now: time.Now}
}

// RevokeAll revokes every outstanding session of the principal and returns
// how many were newly revoked. Already-revoked entries do not count.
func (s *Service) RevokeAll(ctx context.Context, principalID string) (int, error) {
	records, err := s.store.List(ctx, principalID)
	if err != nil {
		return 0, err
	}
	at := s.now().UTC()
	revoked := 0
	for _, rec := range records {
		newly, err := s.store.Revoke(ctx, rec.ID, at)
		if err != nil {
			return revoked, err
		}
		if newly {
			revoked++
		}
	}
	if err := s.cache.InvalidatePrincipal(ctx, principalID); err != nil {
		s.log.Warn("session cache invalidation failed", zap.String("principal_id", principalID), zap.Error(err))
	}
	return revoked, nil
}

// RevokeOne revokes a single session, checking it belongs to the principal.
// A record owned by someone else is reported as not found.
func (s *Service) RevokeOne(ctx context.Context, principalID, recordID string) (bool, error) {
	rec, err := s.store.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return false, ErrNotFound
		}
		return false, err
	}
	if rec.PrincipalID != principalID {
		return false, ErrNotFound
	}
	newly, err := s.store.Revoke(ctx, recordID, s.now().UTC())
	if err != nil {
		return false, err
	}
	if err := s.cache.InvalidateSession(ctx, principalID, recordID); err != nil {
		s.log.Warn("session cache invalidation failed", zap.String("record_id", recordID), zap.Error(err))
	}
	return newly, nil
}
