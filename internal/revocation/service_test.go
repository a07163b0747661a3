package revocation

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kuth-chi/eductionhub-sessions/internal/model"
	"github.com/kuth-chi/eductionhub-sessions/internal/registry"
	"github.com/kuth-chi/eductionhub-sessions/internal/sessioncache"
)

func seed(t *testing.T, store registry.Store, id, principal string) {
	t.Helper()
	now := time.Now().UTC()
	err := store.Record(context.Background(), model.SessionRecord{
		ID:          id,
		PrincipalID: principal,
		Token:       "token-" + id,
		IssuedAt:    now,
		ExpiresAt:   now.Add(7 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
}

func newService(store registry.Store) *Service {
	return New(store, sessioncache.New(nil), zap.NewNop())
}

func TestRevokeAllCountsNewlyRevoked(t *testing.T) {
	ctx := context.Background()
	store := registry.NewMemoryStore()
	svc := newService(store)

	for _, id := range []string{"a", "b", "c"} {
		seed(t, store, id, "user-1")
	}
	seed(t, store, "other", "user-2")

	n, err := svc.RevokeAll(ctx, "user-1")
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 newly revoked, got %d", n)
	}

	// Second pass finds everything already revoked.
	n, err = svc.RevokeAll(ctx, "user-1")
	if err != nil {
		t.Fatalf("revoke all again: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 newly revoked, got %d", n)
	}

	rec, err := store.Get(ctx, "other")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Revoked {
		t.Fatal("other principal's session must stay live")
	}
}

func TestRevokeOne(t *testing.T) {
	ctx := context.Background()
	store := registry.NewMemoryStore()
	svc := newService(store)

	seed(t, store, "a", "user-1")

	newly, err := svc.RevokeOne(ctx, "user-1", "a")
	if err != nil || !newly {
		t.Fatalf("first revoke should be new, got newly=%v err=%v", newly, err)
	}
	newly, err = svc.RevokeOne(ctx, "user-1", "a")
	if err != nil || newly {
		t.Fatalf("second revoke should be a no-op, got newly=%v err=%v", newly, err)
	}
}

func TestRevokeOneHidesForeignRecords(t *testing.T) {
	ctx := context.Background()
	store := registry.NewMemoryStore()
	svc := newService(store)

	seed(t, store, "a", "user-1")

	if _, err := svc.RevokeOne(ctx, "user-2", "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign record, got %v", err)
	}
	if _, err := svc.RevokeOne(ctx, "user-1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing record, got %v", err)
	}

	rec, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Revoked {
		t.Fatal("foreign revoke attempt must not touch the record")
	}
}
