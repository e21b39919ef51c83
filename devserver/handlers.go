package devserver

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/courseforge/gatekeeper/auth"
	"github.com/courseforge/gatekeeper/internal/util"
	"github.com/courseforge/gatekeeper/rbac"
)

// Course is an entry of the course catalog.
type Course struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	Microcourses int    `json:"microcourses"`
}

// RevokeRequest names either one token or every session of one user.
type RevokeRequest struct {
	UserID  string `json:"user_id,omitempty"`
	TokenID string `json:"token_id,omitempty"`
}

type RevokeResponse struct {
	Revoked bool `json:"revoked"`
}

var catalog = []Course{
	{ID: "c-101", Title: "Fundamentos de Programación", Status: "published", Microcourses: 6},
	{ID: "c-102", Title: "Diseño Instruccional Aplicado", Status: "published", Microcourses: 4},
	{ID: "c-201", Title: "Producción Audiovisual Educativa", Status: "in_production", Microcourses: 5},
	{ID: "c-301", Title: "Evaluación por Competencias", Status: "draft", Microcourses: 3},
}

// Login handles POST /auth/login.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[auth.LoginRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	email := util.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	if blocked, retryAfter := s.limiter.check(email); blocked {
		s.audit.logFailure(AuditLoginRateLimited, r, "rate limited")
		writeRateLimited(w, retryAfter)
		return
	}

	user, ok := s.users.authenticate(email, req.Password)
	if !ok {
		s.limiter.recordFailure(email)
		s.audit.logFailure(AuditLoginFailure, r, "invalid credentials")
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	s.limiter.recordSuccess(email)

	token, rec, jti, err := s.tokens.issue(user)
	if err != nil {
		s.logger.Error("issuing token failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := s.sessions.Put(jti, rec); err != nil {
		s.logger.Error("recording session failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.audit.logEvent(AuditLoginSuccess, r, user.ID, slog.String("role", user.Role.String()))
	writeJSON(w, http.StatusOK, auth.LoginResult{Token: token, User: user})
}

// Logout handles POST /auth/logout by revoking the calling token.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	if err := s.sessions.Delete(p.TokenID); err != nil {
		mapError(w, err)
		return
	}
	s.audit.logEvent(AuditLogout, r, p.User.ID)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /auth/me.
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	writeJSON(w, http.StatusOK, p.User)
}

// ListCourses handles GET /cursos. Roles that cannot manage courses only
// see published ones.
func (s *Server) ListCourses(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	manage := rbac.Can(&p.User, rbac.PermManageCourses)
	status := strings.TrimSpace(r.URL.Query().Get("status"))

	out := make([]Course, 0, len(catalog))
	for _, c := range catalog {
		if !manage && c.Status != "published" {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, c)
	}
	writeJSON(w, http.StatusOK, out)
}

// RevokeSessions handles POST /admin/sessions/revoke.
func (s *Server) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[RevokeRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if (req.UserID == "") == (req.TokenID == "") {
		writeError(w, http.StatusBadRequest, "exactly one of user_id or token_id is required")
		return
	}
	p, _ := principalFromContext(r.Context())

	if req.TokenID != "" {
		if err := s.sessions.Delete(req.TokenID); err != nil {
			mapError(w, err)
			return
		}
		s.audit.logEvent(AuditSessionRevoked, r, p.User.ID, slog.String("token_id", req.TokenID))
		writeJSON(w, http.StatusOK, RevokeResponse{Revoked: true})
		return
	}

	if err := s.RevokeUser(req.UserID); err != nil {
		mapError(w, err)
		return
	}
	s.audit.logEvent(AuditSessionRevoked, r, p.User.ID, slog.String("target_user_id", req.UserID))
	writeJSON(w, http.StatusOK, RevokeResponse{Revoked: true})
}
