package devserver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/courseforge/gatekeeper/auth"
	"github.com/courseforge/gatekeeper/rbac"
)

type contextKey int

const principalKey contextKey = iota

// principal is the authenticated caller of a request.
type principal struct {
	User    auth.User
	TokenID string
}

func principalFromContext(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(principalKey).(principal)
	return p, ok
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// AuthMiddleware admits requests carrying a valid, unrevoked bearer token
// and stores the caller on the request context. Everything else gets a 401.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		claims, err := s.tokens.parse(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, ErrInvalidToken.Error())
			return
		}
		rec, ok := s.sessions.Get(claims.ID)
		if !ok || rec.UserID != claims.Subject || s.revokedBefore(rec.UserID, rec) {
			writeError(w, http.StatusUnauthorized, "session revoked")
			return
		}
		user, err := s.users.byUserID(claims.Subject)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "session revoked")
			return
		}
		ctx := context.WithValue(r.Context(), principalKey, principal{User: user, TokenID: claims.ID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission rejects authenticated callers whose role lacks perm.
// It must run after AuthMiddleware.
func (s *Server) RequirePermission(perm rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if msg := rbac.Require(&p.User, perm); msg != "" {
				s.audit.logEvent(AuditAccessDenied, r, p.User.ID,
					slog.String("role", p.User.Role.String()),
					slog.String("permission", perm.String()))
				writeError(w, http.StatusForbidden, msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets standard security response headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")
		if requestIsSecure(r) {
			w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
