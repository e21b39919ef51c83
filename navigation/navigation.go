// Package navigation is the port through which guards and the HTTP gateway
// request redirects. Nothing in this module touches a real router; callers
// supply a Navigator.
package navigation

import "sync"

const (
	DefaultPublicEntry = "/login"
	DefaultLanding     = "/dashboard"
)

// Routes names the redirect targets.
type Routes struct {
	// PublicEntry is where anonymous callers are sent, e.g. the login screen.
	PublicEntry string
	// Landing is the default route for authenticated callers.
	Landing string
}

// DefaultRoutes returns the routes used when none are configured.
func DefaultRoutes() Routes {
	return Routes{PublicEntry: DefaultPublicEntry, Landing: DefaultLanding}
}

// WithDefaults fills empty fields from DefaultRoutes.
func (r Routes) WithDefaults() Routes {
	d := DefaultRoutes()
	if r.PublicEntry == "" {
		r.PublicEntry = d.PublicEntry
	}
	if r.Landing == "" {
		r.Landing = d.Landing
	}
	return r
}

// Navigator performs redirects.
type Navigator interface {
	Navigate(route string)
	CurrentRoute() string
}

// Recorder is a Navigator that records every redirect. It is safe for
// concurrent use.
type Recorder struct {
	mu      sync.Mutex
	current string
	history []string
}

var _ Navigator = (*Recorder)(nil)

// NewRecorder returns a Recorder positioned at route.
func NewRecorder(route string) *Recorder {
	return &Recorder{current: route}
}

func (r *Recorder) Navigate(route string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = route
	r.history = append(r.history, route)
}

func (r *Recorder) CurrentRoute() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Redirects returns a copy of every route navigated to, in order.
func (r *Recorder) Redirects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.history...)
}
