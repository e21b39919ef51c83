// Package devserver is a small backend implementing the endpoints the
// gateway talks to. It issues HS256 tokens to seeded users, enforces role
// permissions on its resources and lets an admin revoke sessions, which is
// what drives the client's 401 revocation path end to end.
package devserver

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-openapi/runtime/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/courseforge/gatekeeper/auth"
	"github.com/courseforge/gatekeeper/internal/util"
	"github.com/courseforge/gatekeeper/rbac"
)

//go:embed openapi.yaml
var openapiSpec []byte

const issuer = "gatekeeper-devserver"

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	users    *userDirectory
	tokens   *tokenManager
	sessions SessionStore
	limiter  *loginRateLimiter
	audit    *auditLogger
	logger   *slog.Logger
	now      func() time.Time

	seeds      []SeedUser
	signingKey []byte
	ttl        time.Duration
	bcryptCost int

	cutoffMu sync.RWMutex
	cutoffs  map[string]time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger for request and audit events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSigningKey sets the HS256 key. A random key is generated otherwise,
// so tokens do not survive a restart.
func WithSigningKey(key []byte) Option {
	return func(s *Server) {
		s.signingKey = append([]byte(nil), key...)
	}
}

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) {
		s.ttl = d
	}
}

// WithUsers replaces the default seed users.
func WithUsers(users []SeedUser) Option {
	return func(s *Server) {
		s.seeds = users
	}
}

// WithSessionStore sets where issued sessions are tracked.
func WithSessionStore(store SessionStore) Option {
	return func(s *Server) {
		s.sessions = store
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithBcryptCost sets the cost used to hash seed passwords.
func WithBcryptCost(cost int) Option {
	return func(s *Server) {
		s.bcryptCost = cost
	}
}

// New creates a Server with its seed users loaded.
func New(opts ...Option) (*Server, error) {
	s := &Server{
		seeds:      DefaultUsers(),
		ttl:        DefaultTokenTTL,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
		cutoffs:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "devserver")
	s.audit = newAuditLogger(s.logger)
	if s.sessions == nil {
		store := NewMemorySessionStore()
		store.now = s.now
		s.sessions = store
	}
	if len(s.signingKey) == 0 {
		key, err := util.RandomBytes(32)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		s.signingKey = key
	}
	if s.ttl <= 0 {
		return nil, errors.New("devserver: token TTL must be positive")
	}
	s.tokens = &tokenManager{key: s.signingKey, ttl: s.ttl, issuer: issuer, now: s.now}
	s.limiter = newLoginRateLimiter(s.now)
	s.users = newUserDirectory(s.bcryptCost)
	for _, seed := range s.seeds {
		if _, err := s.users.add(seed.User, seed.Password); err != nil {
			return nil, fmt.Errorf("devserver: seed user: %w", err)
		}
	}
	return s, nil
}

// AddUser creates or replaces an account.
func (s *Server) AddUser(user auth.User, password string) (auth.User, error) {
	return s.users.add(user, password)
}

// RevokeUser invalidates every session of userID issued so far.
func (s *Server) RevokeUser(userID string) error {
	if _, err := s.users.byUserID(userID); err != nil {
		return err
	}
	s.cutoffMu.Lock()
	s.cutoffs[userID] = s.now()
	s.cutoffMu.Unlock()
	return nil
}

func (s *Server) revokedBefore(userID string, rec SessionRecord) bool {
	s.cutoffMu.RLock()
	cutoff, ok := s.cutoffs[userID]
	s.cutoffMu.RUnlock()
	return ok && !rec.IssuedAt.After(cutoff)
}

// Router returns a chi.Router with every route mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(openapiSpec)
	})
	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
		Title:   "gatekeeper dev server",
	}, nil))

	r.Group(func(r chi.Router) {
		r.Use(SecurityHeaders)
		r.Post("/auth/login", s.Login)

		r.Group(func(r chi.Router) {
			r.Use(s.AuthMiddleware)
			r.Post("/auth/logout", s.Logout)
			r.Get("/auth/me", s.Me)
			r.With(s.RequirePermission(rbac.PermViewCourses)).Get("/cursos", s.ListCourses)
			r.With(s.RequirePermission(rbac.PermManageSessions)).Post("/admin/sessions/revoke", s.RevokeSessions)
		})
	})
	return r
}
