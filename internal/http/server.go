package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kuth-chi/eductionhub-sessions/internal/cookie"
	"github.com/kuth-chi/eductionhub-sessions/internal/credential"
	"github.com/kuth-chi/eductionhub-sessions/internal/model"
	"github.com/kuth-chi/eductionhub-sessions/internal/principal"
	"github.com/kuth-chi/eductionhub-sessions/internal/revocation"
	"github.com/kuth-chi/eductionhub-sessions/internal/session"
)

type Server struct {
	coord     *session.Coordinator
	codec     *credential.Codec
	guard     *cookie.Guard
	directory principal.Directory
	log       *zap.Logger
}

func NewServer(coord *session.Coordinator, codec *credential.Codec, guard *cookie.Guard, directory principal.Directory, log *zap.Logger) *Server {
	return &Server{
		coord:     coord,
		codec:     codec,
		guard:     guard,
		directory: directory,
		log:       log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)
	r.Get("/auth/csrf", s.handleCSRF)
	r.Get("/auth/status", s.handleStatus)

	r.With(s.authMiddleware).Post("/auth/logout", s.handleLogout)
	r.With(s.authMiddleware).Get("/auth/sessions", s.handleListSessions)
	r.With(s.authMiddleware).Post("/auth/sessions/revoke", s.handleRevokeSession)

	return r
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userSummary struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	Superuser bool     `json:"is_superuser,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

type authResponse struct {
	Status  string      `json:"status"`
	Access  string      `json:"access"`
	Refresh string      `json:"refresh"`
	User    userSummary `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	pair, err := s.coord.Login(r.Context(), req.Username, req.Password, clientContext(r))
	if err != nil {
		if errors.Is(err, session.ErrAuthenticationFailed) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	// The guard re-verifies both credentials; a rejection here means no
	// Set-Cookie header has been written at all.
	if err := s.guard.SetSession(w, pair.Access, pair.Refresh); err != nil {
		s.log.Error("login cookie issuance refused", zap.Error(err))
		writeError(w, http.StatusBadRequest, "cookie_security")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Status:  "ok",
		Access:  pair.Access,
		Refresh: pair.Refresh,
		User:    summarize(pair.Principal),
	})
}

// refreshRequest accepts both historical body key spellings.
type refreshRequest struct {
	Refresh      string `json:"refresh"`
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	bodyValue := req.Refresh
	if bodyValue == "" {
		bodyValue = req.RefreshToken
	}

	refreshToken, err := s.guard.ReadRefresh(r, bodyValue)
	if err != nil {
		writeError(w, http.StatusBadRequest, "no_refresh_token")
		return
	}

	pair, err := s.coord.Refresh(r.Context(), refreshToken, clientContext(r))
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrExpired):
			writeError(w, http.StatusUnauthorized, "token_expired")
		case errors.Is(err, session.ErrSessionRevoked):
			writeError(w, http.StatusUnauthorized, "session_revoked")
		case errors.Is(err, credential.ErrBadSignature), errors.Is(err, credential.ErrMalformed):
			writeError(w, http.StatusUnauthorized, "invalid_token")
		default:
			writeError(w, http.StatusInternalServerError, "server_error")
		}
		return
	}

	if err := s.guard.SetSession(w, pair.Access, pair.Refresh); err != nil {
		s.log.Error("refresh cookie issuance refused", zap.Error(err))
		writeError(w, http.StatusBadRequest, "cookie_security")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Status:  "ok",
		Access:  pair.Access,
		Refresh: pair.Refresh,
		User:    summarize(pair.Principal),
	})
}

type logoutRequest struct {
	Refresh       string `json:"refresh"`
	RefreshToken  string `json:"refresh_token"`
	InvalidateAll bool   `json:"invalidate_all_sessions"`
}

// handleLogout always answers 200 with cleared cookies: whatever the state
// of the backends, the client ends the exchange signed out.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req logoutRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		req = logoutRequest{}
	}
	bodyValue := req.Refresh
	if bodyValue == "" {
		bodyValue = req.RefreshToken
	}
	refreshToken, _ := s.guard.ReadRefresh(r, bodyValue)

	if claims != nil {
		s.coord.Logout(r.Context(), claims.Subject, refreshToken, req.InvalidateAll)
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	s.guard.Clear(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	if _, err := s.directory.GetByID(r.Context(), claims.Subject); err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	summaries, err := s.coord.Sessions(r.Context(), claims.Subject, clientContext(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": summaries,
		"count":    len(summaries),
	})
}

type revokeSessionRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req revokeSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "missing_session_id")
		return
	}

	newly, err := s.coord.RevokeSession(r.Context(), claims.Subject, req.SessionID)
	if err != nil {
		if errors.Is(err, revocation.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"newly_revoked": newly,
	})
}

// handleCSRF issues a script-readable CSRF token cookie for form posts.
func (s *Server) handleCSRF(w http.ResponseWriter, r *http.Request) {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	http.SetCookie(w, &http.Cookie{
		Name:     "csrftoken",
		Value:    token,
		Path:     "/",
		MaxAge:   365 * 24 * 3600,
		HttpOnly: false,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

// handleStatus reports whether the caller presents a valid access
// credential. Unauthenticated callers get a 200 too; this endpoint exists
// for front-end polling, not gating.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	raw := accessCredential(r)
	if raw == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"authenticated": false})
		return
	}
	claims, err := s.codec.Verify(raw)
	if err != nil || claims.Kind != credential.KindAccess {
		writeJSON(w, http.StatusOK, map[string]interface{}{"authenticated": false})
		return
	}

	resp := map[string]interface{}{"authenticated": true}
	if claims.Profile != nil {
		resp["user"] = userSummary{
			ID:        claims.Profile.ID,
			Username:  claims.Profile.Username,
			Email:     claims.Profile.Email,
			FirstName: claims.Profile.FirstName,
			LastName:  claims.Profile.LastName,
			Superuser: claims.Profile.Superuser,
			Roles:     claims.Roles,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := accessCredential(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := s.codec.Verify(raw)
		if err != nil || claims.Kind != credential.KindAccess {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *credential.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*credential.Claims)
	return claims
}

// accessCredential resolves the caller's access credential: explicit bearer
// header first, then the hardened cookie.
func accessCredential(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	for _, name := range []string{cookie.AccessCookie, "access_token"} {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func summarize(p model.Principal) userSummary {
	return userSummary{
		ID:        p.ID,
		Username:  p.Username,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Superuser: p.Superuser,
		Roles:     p.Roles,
	}
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// clientContext extracts the caller's network context, honoring the proxy
// headers the deployment's edge is known to set.
func clientContext(r *http.Request) model.ClientContext {
	return model.ClientContext{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" && !strings.EqualFold(ip, "unknown") {
			return ip
		}
	}
	for _, header := range []string{"X-Real-IP", "CF-Connecting-IP", "True-Client-IP"} {
		ip := strings.TrimSpace(r.Header.Get(header))
		if ip != "" && !strings.EqualFold(ip, "unknown") {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
