// Package session orchestrates the credential lifecycle: login issuance,
// refresh rotation, session enumeration with risk assessment, and logout.
package session

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kuth-chi/eductionhub-sessions/internal/credential"
	"github.com/kuth-chi/eductionhub-sessions/internal/metrics"
	"github.com/kuth-chi/eductionhub-sessions/internal/model"
	"github.com/kuth-chi/eductionhub-sessions/internal/principal"
	"github.com/kuth-chi/eductionhub-sessions/internal/registry"
	"github.com/kuth-chi/eductionhub-sessions/internal/revocation"
	"github.com/kuth-chi/eductionhub-sessions/internal/risk"
	"github.com/kuth-chi/eductionhub-sessions/internal/sessioncache"
)

var (
	// ErrAuthenticationFailed covers bad username, bad password and
	// inactive accounts alike.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrSessionRevoked is returned when a refresh credential's backing
	// session no longer exists or has been revoked.
	ErrSessionRevoked = errors.New("session revoked")
)

// Options holds the lifecycle knobs the coordinator needs.
type Options struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// RotateRefresh issues a fresh refresh credential on every refresh;
	// when false the presented credential stays valid until expiry.
	RotateRefresh bool
}

type Coordinator struct {
	directory principal.Directory
	codec     *credential.Codec
	store     registry.Store
	cache     *sessioncache.Cache
	revoker   *revocation.Service
	policy    risk.Policy
	opts      Options
	log       *zap.Logger
	now       func() time.Time
}

func NewCoordinator(directory principal.Directory, codec *credential.Codec, store registry.Store, cache *sessioncache.Cache, revoker *revocation.Service, policy risk.Policy, opts Options, log *zap.Logger) *Coordinator {
	return &Coordinator{
		directory: directory,
		codec:     codec,
		store:     store,
		cache:     cache,
		revoker:   revoker,
		policy:    policy,
		opts:      opts,
		log:       log,
		now:       time.Now,
	}
}

// CredentialPair is the outcome of a successful login or refresh.
type CredentialPair struct {
	Access    string
	Refresh   string
	Principal model.Principal
}

// Login authenticates the principal and issues a fresh credential pair,
// recording the refresh credential as an outstanding session.
func (c *Coordinator) Login(ctx context.Context, username, password string, cctx model.ClientContext) (CredentialPair, error) {
	p, err := c.directory.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, principal.ErrInvalidCredentials) {
			metrics.Logins.WithLabelValues("failure").Inc()
			return CredentialPair{}, ErrAuthenticationFailed
		}
		return CredentialPair{}, err
	}

	pair, err := c.issue(ctx, p, cctx)
	if err != nil {
		return CredentialPair{}, err
	}
	metrics.Logins.WithLabelValues("success").Inc()
	c.log.Info("login succeeded",
		zap.String("principal_id", p.ID),
		zap.String("ip", cctx.IPAddress))
	return pair, nil
}

// Refresh validates a refresh credential against the registry and issues a
// new access credential. Under the rotation policy the refresh credential
// is replaced too and the old session record revoked.
func (c *Coordinator) Refresh(ctx context.Context, refreshToken string, cctx model.ClientContext) (CredentialPair, error) {
	claims, err := c.codec.Verify(refreshToken)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		return CredentialPair{}, err
	}
	if claims.Kind != credential.KindRefresh {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		return CredentialPair{}, credential.ErrMalformed
	}

	rec, err := c.store.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			metrics.TokenRefreshes.WithLabelValues("failure").Inc()
			return CredentialPair{}, ErrSessionRevoked
		}
		return CredentialPair{}, err
	}
	if rec.Revoked {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		return CredentialPair{}, ErrSessionRevoked
	}

	p, err := c.directory.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			metrics.TokenRefreshes.WithLabelValues("failure").Inc()
			return CredentialPair{}, ErrSessionRevoked
		}
		return CredentialPair{}, err
	}

	if !c.opts.RotateRefresh {
		access, _, err := c.codec.Mint(p, cctx, credential.KindAccess, c.opts.AccessTTL)
		if err != nil {
			return CredentialPair{}, err
		}
		metrics.TokenRefreshes.WithLabelValues("success").Inc()
		return CredentialPair{Access: access, Refresh: refreshToken, Principal: p}, nil
	}

	pair, err := c.issue(ctx, p, cctx)
	if err != nil {
		return CredentialPair{}, err
	}
	if newly, err := c.store.Revoke(ctx, rec.ID, c.now().UTC()); err != nil {
		c.log.Warn("rotated session not revoked", zap.String("record_id", rec.ID), zap.Error(err))
	} else if newly {
		metrics.SessionsRevoked.Inc()
	}
	if err := c.cache.InvalidateSession(ctx, rec.PrincipalID, rec.ID); err != nil {
		c.log.Warn("session cache invalidation failed", zap.String("record_id", rec.ID), zap.Error(err))
	}
	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	return pair, nil
}

func (c *Coordinator) issue(ctx context.Context, p model.Principal, cctx model.ClientContext) (CredentialPair, error) {
	access, _, err := c.codec.Mint(p, cctx, credential.KindAccess, c.opts.AccessTTL)
	if err != nil {
		return CredentialPair{}, err
	}
	refresh, refreshClaims, err := c.codec.Mint(p, cctx, credential.KindRefresh, c.opts.RefreshTTL)
	if err != nil {
		return CredentialPair{}, err
	}

	rec := model.SessionRecord{
		ID:          uuid.NewString(),
		PrincipalID: p.ID,
		Token:       refresh,
		IssuedAt:    refreshClaims.IssuedAt.Time,
		ExpiresAt:   refreshClaims.ExpiresAt.Time,
		UserAgent:   cctx.UserAgent,
		IPAddress:   cctx.IPAddress,
	}
	if err := c.store.Record(ctx, rec); err != nil {
		return CredentialPair{}, err
	}
	if err := c.cache.Track(ctx, p.ID, rec.ID, c.opts.RefreshTTL); err != nil {
		c.log.Warn("session cache tracking failed", zap.String("record_id", rec.ID), zap.Error(err))
	}
	return CredentialPair{Access: access, Refresh: refresh, Principal: p}, nil
}

// Summary is one session as presented to its owner. Credentials never
// appear here; only derived context does.
type Summary struct {
	ID        string          `json:"id"`
	IssuedAt  time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	IPAddress string          `json:"ip_address"`
	Device    risk.DeviceInfo `json:"device_info"`
	Revoked   bool            `json:"is_revoked"`
	Risk      risk.Assessment `json:"risk"`
}

// Sessions enumerates the principal's sessions with per-session risk
// assessments, ordered most suspicious first.
func (c *Coordinator) Sessions(ctx context.Context, principalID string, cctx model.ClientContext) ([]Summary, error) {
	records, err := c.store.List(ctx, principalID)
	if err != nil {
		return nil, err
	}
	now := c.now().UTC()

	summaries := make([]Summary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, Summary{
			ID:        rec.ID,
			IssuedAt:  rec.IssuedAt,
			ExpiresAt: rec.ExpiresAt,
			IPAddress: rec.IPAddress,
			Device:    risk.DescribeDevice(rec.UserAgent),
			Revoked:   rec.Revoked,
			Risk:      c.policy.Score(rec, cctx, now),
		})
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].Risk.Score != summaries[j].Risk.Score {
			return summaries[i].Risk.Score > summaries[j].Risk.Score
		}
		return summaries[i].IssuedAt.After(summaries[j].IssuedAt)
	})
	return summaries, nil
}

// RevokeSession revokes one session on behalf of its owner and reports
// whether the revocation was new.
func (c *Coordinator) RevokeSession(ctx context.Context, principalID, recordID string) (bool, error) {
	newly, err := c.revoker.RevokeOne(ctx, principalID, recordID)
	if err != nil {
		return false, err
	}
	if newly {
		metrics.SessionsRevoked.Inc()
	}
	c.log.Info("session revoked", zap.String("principal_id", principalID), zap.String("record_id", recordID), zap.Bool("newly", newly))
	return newly, nil
}

// Logout revokes the principal's sessions. With all set it revokes every
// outstanding session; otherwise only the presented refresh credential's
// session, when one can be resolved. Logout never fails: backend errors
// are logged and swallowed so the client always ends signed out.
func (c *Coordinator) Logout(ctx context.Context, principalID, refreshToken string, all bool) {
	if all {
		n, err := c.revoker.RevokeAll(ctx, principalID)
		if err != nil {
			c.log.Warn("logout revocation incomplete", zap.String("principal_id", principalID), zap.Error(err))
		}
		if n > 0 {
			metrics.SessionsRevoked.Add(float64(n))
		}
		c.log.Info("logout", zap.String("principal_id", principalID), zap.Int("revoked", n), zap.Bool("all", true))
		return
	}

	if refreshToken == "" {
		c.log.Info("logout without refresh credential", zap.String("principal_id", principalID))
		return
	}
	rec, err := c.store.FindByToken(ctx, refreshToken)
	if err != nil {
		c.log.Info("logout with unknown refresh credential", zap.String("principal_id", principalID))
		return
	}
	newly, err := c.revoker.RevokeOne(ctx, principalID, rec.ID)
	if err != nil {
		c.log.Warn("logout revocation incomplete", zap.String("record_id", rec.ID), zap.Error(err))
		return
	}
	if newly {
		metrics.SessionsRevoked.Inc()
	}
	c.log.Info("logout", zap.String("principal_id", principalID), zap.String("record_id", rec.ID), zap.Bool("all", false))
}
