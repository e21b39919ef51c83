// Package session is the single authoritative record of who is logged in.
//
// A Machine moves between Anonymous, Authenticating, Authenticated and Failed.
// It is the only writer of the credential store: login persists the session,
// logout and server-side revocation clear it. Everything else observes the
// machine through State and Subscribe.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/courseforge/gatekeeper/auth"
	"github.com/courseforge/gatekeeper/credstore"
	"github.com/courseforge/gatekeeper/internal/util"
	"github.com/courseforge/gatekeeper/internal/uuid"
)

// Authenticator exchanges credentials for a token and user.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
}

// Listener receives a snapshot after each transition.
type Listener func(State)

// Machine is the session state container. It is safe for concurrent use.
type Machine struct {
	mu         sync.Mutex
	state      State
	store      *credstore.Store
	authn      Authenticator
	logger     *slog.Logger
	now        func() time.Time
	rehydrated bool
	attempt    uint64
	// epoch counts logouts and revocations; a login that started in an
	// earlier epoch never installs its session.
	epoch uint64

	listenerMu sync.Mutex
	listeners  map[int]Listener
	order      []int
	nextID     int
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the structured logger for lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithClock overrides the time source used for EstablishedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// New creates a Machine in the Anonymous state. Call Rehydrate before the
// first guard evaluation or request, or use Open.
func New(store *credstore.Store, authn Authenticator, opts ...Option) *Machine {
	m := &Machine{
		store:     store,
		authn:     authn,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "session")
	return m
}

// Open creates a Machine and rehydrates it from the credential store.
func Open(store *credstore.Store, authn Authenticator, opts ...Option) *Machine {
	m := New(store, authn, opts...)
	m.Rehydrate()
	return m
}

// SetAuthenticator replaces the authenticator. It exists for wiring a
// gateway that itself needs the machine.
func (m *Machine) SetAuthenticator(authn Authenticator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authn = authn
}

// State returns a snapshot of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Subscribe registers fn to be called after every transition and returns a
// function that removes it.
func (m *Machine) Subscribe(fn Listener) (unsubscribe func()) {
	m.listenerMu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.order = append(m.order, id)
	m.listenerMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.listenerMu.Lock()
			defer m.listenerMu.Unlock()
			delete(m.listeners, id)
			for i, v := range m.order {
				if v == id {
					m.order = append(m.order[:i], m.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (m *Machine) notify(s State) {
	m.listenerMu.Lock()
	fns := make([]Listener, 0, len(m.order))
	for _, id := range m.order {
		fns = append(fns, m.listeners[id])
	}
	m.listenerMu.Unlock()
	for _, fn := range fns {
		fn(s.clone())
	}
}

// setLocked installs next and returns the snapshot to publish. Caller holds mu.
func (m *Machine) setLocked(next State) State {
	next.Version = m.state.Version + 1
	m.state = next
	m.rehydrated = true
	return next.clone()
}

// Rehydrate resolves the initial state from the credential store. Only the
// first call, and only if no transition happened before it, reads storage;
// later calls return the current state.
func (m *Machine) Rehydrate() State {
	m.mu.Lock()
	if m.rehydrated {
		s := m.state.clone()
		m.mu.Unlock()
		return s
	}
	m.rehydrated = true

	rec, ok := m.store.Read()
	if !ok {
		s := m.state.clone()
		m.mu.Unlock()
		m.logger.Debug("no persisted session")
		return s
	}
	sess := &auth.Session{
		ID:            uuid.New(),
		Token:         rec.Token,
		User:          rec.User,
		EstablishedAt: m.now(),
	}
	s := m.setLocked(State{Status: Authenticated, Session: sess})
	m.mu.Unlock()

	m.logger.Info("session rehydrated",
		slog.String("session_id", sess.ID),
		slog.String("user_id", sess.User.ID),
		slog.String("role", sess.User.Role.String()))
	m.notify(s)
	return s
}

// ErrLoginAborted is returned by a login whose response arrived after a
// logout or revocation that happened while it was pending.
var ErrLoginAborted = errors.New("session: login aborted by logout")

// Login authenticates with the backend. Empty input is rejected locally
// without contacting the authenticator: the error is recorded on the state
// without changing its status, and returned. On failure the machine moves to
// Failed with the error, which is also returned.
func (m *Machine) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	email = util.NormalizeEmail(email)
	if email == "" || password == "" {
		err := &auth.Error{Kind: auth.KindMissingCredentials}
		m.mu.Lock()
		next := m.state
		next.Err = err
		rehydrated := m.rehydrated
		s := m.setLocked(next)
		m.rehydrated = rehydrated
		m.mu.Unlock()
		m.notify(s)
		return nil, err
	}

	m.mu.Lock()
	authn := m.authn
	if authn == nil {
		m.mu.Unlock()
		return nil, errors.New("session: no authenticator configured")
	}
	m.attempt++
	attempt := m.attempt
	epoch := m.epoch
	prev := m.state
	if prev.Status == Authenticated {
		// The in-memory session is gone once we leave Authenticated; the
		// persisted record must not outlive it.
		if err := m.store.Clear(); err != nil {
			m.logger.Error("clearing previous session failed", slog.String("error", err.Error()))
		}
	}
	s := m.setLocked(State{Status: Authenticating, Err: prev.Err})
	m.mu.Unlock()
	m.notify(s)

	res, err := authn.Login(ctx, email, password)
	// gateway.Gateway checks these too; other Authenticators may not.
	if err == nil && (res == nil || res.Token == "") {
		err = auth.Rejected(0, "login response carried no token")
	} else if err == nil {
		if verr := res.User.Validate(); verr != nil {
			err = &auth.Error{Kind: auth.KindServerRejected, Message: "login response carried an invalid user", Err: verr}
		}
	}
	if err != nil {
		return nil, m.fail(attempt, toAuthError(err))
	}

	sess := &auth.Session{
		ID:            uuid.New(),
		Token:         res.Token,
		User:          res.User,
		EstablishedAt: m.now(),
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		m.logger.Info("discarding login that completed after logout",
			slog.String("user_id", sess.User.ID))
		return nil, ErrLoginAborted
	}
	if err := m.store.Write(sess.Token, sess.User); err != nil {
		m.logger.Warn("session not persisted", slog.String("error", err.Error()))
	}
	s = m.setLocked(State{Status: Authenticated, Session: sess})
	m.mu.Unlock()

	m.logger.Info("login succeeded",
		slog.String("session_id", sess.ID),
		slog.String("user_id", sess.User.ID),
		slog.String("role", sess.User.Role.String()))
	m.notify(s)

	out := *sess
	return &out, nil
}

// fail records err as the latest login error. The machine only moves to
// Failed if this attempt is the most recent one and is still pending.
func (m *Machine) fail(attempt uint64, err error) error {
	m.mu.Lock()
	if attempt != m.attempt || m.state.Status != Authenticating {
		m.mu.Unlock()
		m.logger.Debug("superseded login failed", slog.String("error", err.Error()))
		return err
	}
	s := m.setLocked(State{Status: Failed, Err: err})
	m.mu.Unlock()

	m.logger.Info("login failed", slog.String("kind", auth.KindOf(err).String()))
	m.notify(s)
	return err
}

func toAuthError(err error) error {
	if auth.KindOf(err) != auth.KindUnknown {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &auth.Error{Kind: auth.KindNetworkFailure, Err: err}
	}
	return &auth.Error{Kind: auth.KindServerRejected, Message: err.Error(), Err: err}
}

// Logout moves to Anonymous and clears the credential store. Calling it
// while already anonymous is a no-op transition.
func (m *Machine) Logout() error {
	m.mu.Lock()
	prev := m.state
	cerr := m.store.Clear()
	m.rehydrated = true
	m.epoch++
	changed := prev.Status != Anonymous || prev.Err != nil
	var s State
	if changed {
		s = m.setLocked(State{Status: Anonymous})
	}
	m.mu.Unlock()

	if changed {
		attrs := []any{slog.String("from", prev.Status.String())}
		if prev.Session != nil {
			attrs = append(attrs, slog.String("session_id", prev.Session.ID))
		}
		m.logger.Info("logged out", attrs...)
		m.notify(s)
	}
	if cerr != nil {
		return fmt.Errorf("session: logout: %w", cerr)
	}
	return nil
}

// Revoke handles a server-side revocation of the session holding token.
// It acts only while Authenticated under that same token, so repeated or
// stale revocations are no-ops. It reports whether it acted.
func (m *Machine) Revoke(token string) bool {
	m.mu.Lock()
	if m.state.Status != Authenticated || m.state.Session == nil || token == "" || m.state.Session.Token != token {
		m.mu.Unlock()
		return false
	}
	prev := m.state.Session
	m.epoch++
	if err := m.store.Clear(); err != nil {
		m.logger.Error("clearing revoked session failed", slog.String("error", err.Error()))
	}
	s := m.setLocked(State{Status: Anonymous})
	m.mu.Unlock()

	m.logger.Info("session revoked by server",
		slog.String("session_id", prev.ID),
		slog.String("user_id", prev.User.ID))
	m.notify(s)
	return true
}

// ClearError drops the last login error. A Failed machine becomes Anonymous.
func (m *Machine) ClearError() {
	m.mu.Lock()
	if m.state.Err == nil {
		m.mu.Unlock()
		return
	}
	next := m.state
	next.Err = nil
	if next.Status == Failed {
		next.Status = Anonymous
	}
	s := m.setLocked(next)
	m.mu.Unlock()
	m.notify(s)
}

// ErrNotAuthenticated is returned by UpdateUser outside an active session.
var ErrNotAuthenticated = errors.New("session: not authenticated")

// UpdateUser replaces the current user's profile, e.g. after the user edits
// it. The session token and identity are unchanged.
func (m *Machine) UpdateUser(user auth.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	if !m.state.IsAuthenticated() {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	sess := *m.state.Session
	if user.ID != sess.User.ID {
		m.mu.Unlock()
		return fmt.Errorf("session: user id %q does not match session user %q", user.ID, sess.User.ID)
	}
	sess.User = user
	if err := m.store.Write(sess.Token, sess.User); err != nil {
		m.mu.Unlock()
		return err
	}
	s := m.setLocked(State{Status: Authenticated, Session: &sess})
	m.mu.Unlock()
	m.notify(s)
	return nil
}
