// Package cookie writes and reads session credentials through hardened
// cookies. The guard is a defense-in-depth boundary: it re-validates every
// credential it is handed, independent of what the caller already checked.
package cookie

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/kuth-chi/eductionhub-sessions/internal/credential"
)

var (
	// ErrInjection is returned when a value fails cookie sanitization.
	ErrInjection = errors.New("cookie value rejected")
	// ErrNoRefresh is returned when neither body nor cookies carry a
	// refresh credential.
	ErrNoRefresh = errors.New("no refresh credential provided")
)

// Cookie names. The __Host-/__Secure- prefixed names are the issued set; the
// bare names are only written in cross-subdomain mode and cleared always.
const (
	AccessCookie  = "__Host-access_token"
	RefreshCookie = "__Host-refresh_token"
	StatusCookie  = "__Secure-auth_status"

	crossAccessCookie  = "access_token"
	crossRefreshCookie = "refresh_token"
	crossStatusCookie  = "auth_status"
)

// legacyCookieNames are every credential-bearing name this service (or its
// predecessors) ever issued. Logout clears all of them so no stale cookie
// survives.
var legacyCookieNames = []string{
	crossAccessCookie, crossRefreshCookie, crossStatusCookie,
	"csrftoken", "sessionid", "access", "refresh",
	"auth", "login_state", "authentication",
}

var clearPaths = []string{"/", "/api/"}

// safeValue is the restricted character set for credential cookie values.
// Everything usable for cookie injection (';', '=', whitespace, CR/LF,
// markup) falls outside it.
var safeValue = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

type Config struct {
	// Secure is off only in debug deployments.
	Secure   bool
	SameSite http.SameSite
	// CrossSubdomainDomain, when set, additionally issues bare-named
	// cookies scoped to this parent domain for front-end proxies.
	CrossSubdomainDomain string
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
}

type Guard struct {
	cfg   Config
	codec *credential.Codec
	log   *zap.Logger
}

func NewGuard(cfg Config, codec *credential.Codec, log *zap.Logger) *Guard {
	if cfg.SameSite == 0 {
		cfg.SameSite = http.SameSiteLaxMode
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{cfg: cfg, codec: codec, log: log}
}

// Sanitize enforces the restricted cookie character set. This runs in
// addition to credential verification so an injection payload is rejected
// even if it were somehow signable.
func Sanitize(value string) (string, error) {
	if value == "" || !safeValue.MatchString(value) {
		return "", ErrInjection
	}
	return value, nil
}

// SetSession writes the access, refresh and auth-status cookies. Both
// credentials are verified and sanitized before the first Set-Cookie header
// is emitted: a rejected value never leaves a partially-set response.
func (g *Guard) SetSession(w http.ResponseWriter, access, refresh string) error {
	if _, err := g.codec.Verify(access); err != nil {
		g.log.Warn("refusing to set access cookie", zap.Error(err))
		return fmt.Errorf("access credential: %w", err)
	}
	if _, err := g.codec.Verify(refresh); err != nil {
		g.log.Warn("refusing to set refresh cookie", zap.Error(err))
		return fmt.Errorf("refresh credential: %w", err)
	}
	access, err := Sanitize(access)
	if err != nil {
		return fmt.Errorf("access credential: %w", err)
	}
	refresh, err = Sanitize(refresh)
	if err != nil {
		return fmt.Errorf("refresh credential: %w", err)
	}

	accessAge := int(g.cfg.AccessTTL.Seconds())
	refreshAge := int(g.cfg.RefreshTTL.Seconds())

	// Host-only hardened set. Cookie lifetime mirrors credential ttl.
	g.set(w, AccessCookie, access, "", accessAge, true)
	g.set(w, RefreshCookie, refresh, "", refreshAge, true)
	g.set(w, StatusCookie, "authenticated", "", accessAge, false)

	// Cross-subdomain duplicates for the configured parent domain only.
	if d := g.cfg.CrossSubdomainDomain; d != "" {
		g.set(w, crossAccessCookie, access, d, accessAge, true)
		g.set(w, crossRefreshCookie, refresh, d, refreshAge, true)
		g.set(w, crossStatusCookie, "authenticated", d, accessAge, false)
	}
	return nil
}

// Clear expires every cookie name/path/domain combination ever used for
// issuance, including legacy names.
func (g *Guard) Clear(w http.ResponseWriter) {
	names := append([]string{AccessCookie, RefreshCookie, StatusCookie}, legacyCookieNames...)
	for _, name := range names {
		for _, path := range clearPaths {
			g.expire(w, name, path, "")
			if g.cfg.CrossSubdomainDomain != "" {
				g.expire(w, name, path, g.cfg.CrossSubdomainDomain)
			}
		}
	}
}

// ReadRefresh extracts the refresh credential: explicit body value first,
// then the hardened cookie, then legacy cookie names.
func (g *Guard) ReadRefresh(r *http.Request, bodyValue string) (string, error) {
	if bodyValue != "" {
		return bodyValue, nil
	}
	for _, name := range []string{RefreshCookie, crossRefreshCookie, "refresh"} {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value, nil
		}
	}
	return "", ErrNoRefresh
}

func (g *Guard) set(w http.ResponseWriter, name, value, domain string, maxAge int, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   domain,
		MaxAge:   maxAge,
		HttpOnly: httpOnly,
		Secure:   g.cfg.Secure,
		SameSite: g.cfg.SameSite,
	})
}

func (g *Guard) expire(w http.ResponseWriter, name, path, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Domain:   domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   g.cfg.Secure,
		SameSite: g.cfg.SameSite,
	})
}
