// Package guard gates navigation on session state.
//
// Guards are pure predicates over a session.State snapshot. They never fail
// or panic; a denial is a Decision carrying the route to redirect to.
package guard

import (
	"fmt"
	"strings"
	"sync"

	"github.com/courseforge/gatekeeper/auth"
	"github.com/courseforge/gatekeeper/navigation"
	"github.com/courseforge/gatekeeper/rbac"
	"github.com/courseforge/gatekeeper/session"
)

// Decision is the outcome of a guard evaluation.
type Decision struct {
	Allowed  bool
	Redirect string
	Reason   string
}

// Allow is the decision that lets navigation proceed.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny redirects to route.
func Deny(route, reason string) Decision {
	return Decision{Redirect: route, Reason: reason}
}

// Guard decides whether a route may be entered in a given state.
type Guard interface {
	Check(s session.State) Decision
}

// Func adapts a function to Guard.
type Func func(s session.State) Decision

func (f Func) Check(s session.State) Decision {
	return f(s)
}

// RequireAuthenticated sends anyone without a session to the public entry route.
func RequireAuthenticated(routes navigation.Routes) Guard {
	routes = routes.WithDefaults()
	return Func(func(s session.State) Decision {
		if !s.IsAuthenticated() {
			return Deny(routes.PublicEntry, "not authenticated")
		}
		return Allow()
	})
}

// RequireAnonymous sends authenticated users to the landing route, e.g. away
// from the login screen.
func RequireAnonymous(routes navigation.Routes) Guard {
	routes = routes.WithDefaults()
	return Func(func(s session.State) Decision {
		if s.IsAuthenticated() {
			return Deny(routes.Landing, "already authenticated")
		}
		return Allow()
	})
}

type roleGuard struct {
	routes   navigation.Routes
	allowed  auth.RoleSet
	fallback string
}

// RoleOption configures RequireRole.
type RoleOption func(*roleGuard)

// WithFallback sets where users with a disallowed role are sent. An empty
// route keeps the landing route.
func WithFallback(route string) RoleOption {
	return func(g *roleGuard) {
		if route != "" {
			g.fallback = route
		}
	}
}

// RequireRole admits authenticated users whose role is in allowed. Anonymous
// callers go to the public entry route; authenticated users with another role
// stay logged in and go to the fallback route.
func RequireRole(routes navigation.Routes, allowed auth.RoleSet, opts ...RoleOption) Guard {
	g := &roleGuard{routes: routes.WithDefaults(), allowed: allowed}
	g.fallback = g.routes.Landing
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *roleGuard) Check(s session.State) Decision {
	if !s.IsAuthenticated() {
		return Deny(g.routes.PublicEntry, "not authenticated")
	}
	user := s.User()
	if !rbac.HasRole(user, g.allowed) {
		return Deny(g.fallback, fmt.Sprintf("role %s not allowed", user.Role))
	}
	return Allow()
}

// Chain evaluates guards in order. The first denial wins and the rest are
// not evaluated. An empty chain allows.
type Chain []Guard

// Nest builds a chain with outer evaluated before inner.
func Nest(outer Guard, inner ...Guard) Chain {
	return append(Chain{outer}, inner...)
}

func (c Chain) Check(s session.State) Decision {
	for _, g := range c {
		if g == nil {
			continue
		}
		if d := g.Check(s); !d.Allowed {
			return d
		}
	}
	return Allow()
}

// StateSource provides the current session state. *session.Machine
// satisfies it.
type StateSource interface {
	State() session.State
}

// Enforce evaluates g against the current state and, on denial, redirects
// through nav unless it is already at the target route.
func Enforce(src StateSource, nav navigation.Navigator, g Guard) Decision {
	d := g.Check(src.State())
	if d.Allowed || d.Redirect == "" || nav == nil {
		return d
	}
	if nav.CurrentRoute() != d.Redirect {
		nav.Navigate(d.Redirect)
	}
	return d
}

// Table maps routes to guards. A pattern ending in "/*" covers every route
// below it; the longest matching pattern wins. Unregistered routes are public.
type Table struct {
	mu     sync.RWMutex
	guards map[string]Guard
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{guards: make(map[string]Guard)}
}

// Register protects pattern with the given guards, evaluated in order.
func (t *Table) Register(pattern string, guards ...Guard) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.guards[pattern] = Chain(guards)
}

// Lookup returns the guard for route and whether one is registered.
func (t *Table) Lookup(route string) (Guard, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if g, ok := t.guards[route]; ok {
		return g, true
	}
	best := ""
	for pattern := range t.guards {
		prefix, ok := strings.CutSuffix(pattern, "/*")
		if !ok {
			continue
		}
		if (route == prefix || strings.HasPrefix(route, prefix+"/")) && len(pattern) > len(best) {
			best = pattern
		}
	}
	if best == "" {
		return nil, false
	}
	return t.guards[best], true
}

// Check evaluates the guards registered for route.
func (t *Table) Check(route string, s session.State) Decision {
	g, ok := t.Lookup(route)
	if !ok {
		return Allow()
	}
	return g.Check(s)
}

// Navigate moves nav to route if its guards allow it, or to the redirect
// they name otherwise. A nil nav only evaluates the guards.
func (t *Table) Navigate(src StateSource, nav navigation.Navigator, route string) Decision {
	d := t.Check(route, src.State())
	if nav == nil {
		return d
	}
	switch {
	case d.Allowed:
		nav.Navigate(route)
	case d.Redirect != "" && nav.CurrentRoute() != d.Redirect:
		nav.Navigate(d.Redirect)
	}
	return d
}
