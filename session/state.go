package session

import "github.com/courseforge/gatekeeper/auth"

// Status is the tag of a State.
type Status int

const (
	Anonymous Status = iota
	Authenticating
	Authenticated
	// Failed behaves like Anonymous but carries the last login error.
	Failed
)

func (s Status) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is an immutable snapshot of the machine.
type State struct {
	Status Status
	// Session is non-nil only when Status is Authenticated.
	Session *auth.Session
	// Err is the last login error, kept for passive display.
	Err error
	// Version increases with every transition. Listeners may be invoked
	// from several goroutines and can use it to drop stale snapshots.
	Version uint64
}

func (s State) IsAuthenticated() bool {
	return s.Status == Authenticated && s.Session != nil
}

func (s State) IsLoading() bool {
	return s.Status == Authenticating
}

// User returns the current user, or nil when not authenticated.
func (s State) User() *auth.User {
	if !s.IsAuthenticated() {
		return nil
	}
	u := s.Session.User
	return &u
}

// Role returns the current user's role.
func (s State) Role() (auth.Role, bool) {
	if !s.IsAuthenticated() {
		return "", false
	}
	return s.Session.User.Role, true
}

func (s State) clone() State {
	if s.Session != nil {
		cp := *s.Session
		s.Session = &cp
	}
	return s
}
