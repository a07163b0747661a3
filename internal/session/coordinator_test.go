package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kuth-chi/eductionhub-sessions/internal/credential"
	"github.com/kuth-chi/eductionhub-sessions/internal/model"
	"github.com/kuth-chi/eductionhub-sessions/internal/principal"
	"github.com/kuth-chi/eductionhub-sessions/internal/registry"
	"github.com/kuth-chi/eductionhub-sessions/internal/revocation"
	"github.com/kuth-chi/eductionhub-sessions/internal/risk"
	"github.com/kuth-chi/eductionhub-sessions/internal/sessioncache"
)

const testAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type fixture struct {
	coord *Coordinator
	store *registry.MemoryStore
	dir   *principal.MemoryDirectory
}

func newFixture(t *testing.T, rotate bool) *fixture {
	t.Helper()
	codec, err := credential.NewCodec("test-secret", "test-issuer")
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	store := registry.NewMemoryStore()
	cache := sessioncache.New(nil)
	dir := principal.NewMemoryDirectory()
	err = dir.Add(model.Principal{
		ID:       "user-1",
		Username: "alice",
		Email:    "alice@example.org",
		Active:   true,
		Roles:    []string{"student"},
	}, "correct horse")
	if err != nil {
		t.Fatalf("seed principal: %v", err)
	}

	log := zap.NewNop()
	coord := NewCoordinator(dir, codec, store, cache, revocation.New(store, cache, log), risk.DefaultPolicy(), Options{
		AccessTTL:     5 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		RotateRefresh: rotate,
	}, log)
	return &fixture{coord: coord, store: store, dir: dir}
}

func clientContext() model.ClientContext {
	return model.ClientContext{IPAddress: "203.0.113.9", UserAgent: testAgent}
}

func TestLoginIssuesPairAndRecordsSession(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	pair, err := f.coord.Login(ctx, "alice", "correct horse", clientContext())
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.Access == "" || pair.Refresh == "" || pair.Access == pair.Refresh {
		t.Fatalf("expected distinct credentials, got %q / %q", pair.Access, pair.Refresh)
	}
	if pair.Principal.ID != "user-1" {
		t.Fatalf("unexpected principal: %+v", pair.Principal)
	}

	rec, err := f.store.FindByToken(ctx, pair.Refresh)
	if err != nil {
		t.Fatalf("find recorded session: %v", err)
	}
	if rec.PrincipalID != "user-1" || rec.IPAddress != "203.0.113.9" || rec.UserAgent != testAgent {
		t.Fatalf("session record missing context: %+v", rec)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	for _, tc := range []struct{ user, pass string }{
		{"alice", "wrong"},
		{"nobody", "correct horse"},
	} {
		if _, err := f.coord.Login(ctx, tc.user, tc.pass, clientContext()); !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("login %s: expected ErrAuthenticationFailed, got %v", tc.user, err)
		}
	}
	records, err := f.store.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("failed login must not record a session, got %d", len(records))
	}
}

func TestRefreshRotatesAndRevokesOld(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	pair, err := f.coord.Login(ctx, "alice", "correct horse", clientContext())
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	oldRec, err := f.store.FindByToken(ctx, pair.Refresh)
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	next, err := f.coord.Refresh(ctx, pair.Refresh, clientContext())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.Refresh == pair.Refresh {
		t.Fatal("rotation must replace the refresh credential")
	}

	rotated, err := f.store.Get(ctx, oldRec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !rotated.Revoked {
		t.Fatal("rotated-away session must be revoked")
	}

	// The old credential is now dead.
	if _, err := f.coord.Refresh(ctx, pair.Refresh, clientContext()); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked for rotated credential, got %v", err)
	}
}

func TestRefreshWithoutRotationReusesCredential(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	pair, err := f.coord.Login(ctx, "alice", "correct horse", clientContext())
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	next, err := f.coord.Refresh(ctx, pair.Refresh, clientContext())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.Refresh != pair.Refresh {
		t.Fatal("without rotation the refresh credential must be reused")
	}

	records, err := f.store.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].Revoked {
		t.Fatalf("without rotation the session must stay untouched: %+v", records)
	}
}

func TestRefreshRejectsAccessCredential(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	pair, err := f.coord.Login(ctx, "alice", "correct horse", clientContext())
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := f.coord.Refresh(ctx, pair.Access, clientContext()); !errors.Is(err, credential.ErrMalformed) {
		t.Fatalf("expected ErrMalformed for access credential, got %v", err)
	}
}

func TestRefreshRejectsRevokedSession(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	pair, err := f.coord.Login(ctx, "alice", "correct horse", clientContext())
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	rec, err := f.store.FindByToken(ctx, pair.Refresh)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if _, err := f.store.Revoke(ctx, rec.ID, time.Now().UTC()); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := f.coord.Refresh(ctx, pair.Refresh, clientContext()); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestSessionsOrderedByRisk(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	now := time.Now().UTC()

	// A quiet current session and a stale one from an attack tool.
	seed := func(id, ip, ua string, issued time.Time) {
		t.Helper()
		err := f.store.Record(ctx, model.SessionRecord{
			ID:          id,
			PrincipalID: "user-1",
			Token:       "token-" + id,
			IssuedAt:    issued,
			ExpiresAt:   issued.Add(7 * 24 * time.Hour),
			IPAddress:   ip,
			UserAgent:   ua,
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	seed("current", "203.0.113.9", testAgent, now.Add(-time.Hour))
	seed("stale", "198.51.100.7", "sqlmap/1.7", now.Add(-100*24*time.Hour))

	summaries, err := f.coord.Sessions(ctx, "user-1", clientContext())
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].ID != "stale" {
		t.Fatalf("most suspicious session must sort first, got %s", summaries[0].ID)
	}
	if !summaries[1].Risk.CurrentSession {
		t.Fatal("matching context must be flagged as the current session")
	}
	if summaries[0].Device.Browser == "" {
		t.Fatalf("summaries must carry device info: %+v", summaries[0].Device)
	}
}

func TestLogoutAllRevokesEverything(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.coord.Login(ctx, "alice", "correct horse", clientContext()); err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
	}

	f.coord.Logout(ctx, "user-1", "", true)

	records, err := f.store.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, rec := range records {
		if !rec.Revoked {
			t.Fatalf("record %s still live after logout all", rec.ID)
		}
	}
}

func TestLogoutCurrentRevokesOnlyPresentedSession(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	first, err := f.coord.Login(ctx, "alice", "correct horse", clientContext())
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	second, err := f.coord.Login(ctx, "alice", "correct horse", clientContext())
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	f.coord.Logout(ctx, "user-1", first.Refresh, false)

	firstRec, err := f.store.FindByToken(ctx, first.Refresh)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	secondRec, err := f.store.FindByToken(ctx, second.Refresh)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !firstRec.Revoked || secondRec.Revoked {
		t.Fatalf("only the presented session must be revoked: first=%v second=%v", firstRec.Revoked, secondRec.Revoked)
	}

	// Logging out with garbage never panics or errors.
	f.coord.Logout(ctx, "user-1", "not-a-credential", false)
	f.coord.Logout(ctx, "user-1", "", false)
}
