package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/courseforge/gatekeeper/credstore"
	"github.com/courseforge/gatekeeper/gateway"
	"github.com/courseforge/gatekeeper/internal/config"
	"github.com/courseforge/gatekeeper/navigation"
	"github.com/courseforge/gatekeeper/session"
	"github.com/courseforge/gatekeeper/storage"
	bboltstorage "github.com/courseforge/gatekeeper/storage/bbolt"
	"github.com/courseforge/gatekeeper/storage/memory"
	redisstorage "github.com/courseforge/gatekeeper/storage/redis"
)

const boltBucket = "gatekeeper"

// openBackend opens the configured credential backend, sealed when a seal
// secret is configured. The returned func releases it.
func openBackend(cfg *config.Config) (storage.Backend, func() error, error) {
	var (
		backend storage.Backend
		closeFn = func() error { return nil }
	)
	switch cfg.Storage.Backend {
	case config.BackendBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		db, err := bboltstorage.NewFromFile(cfg.Storage.Path, boltBucket, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open session storage: %w", err)
		}
		backend, closeFn = db, db.Close
	case config.BackendRedis:
		r := cfg.Storage.Redis
		rs, err := redisstorage.Dial(r.Addr, r.Password, r.DB, cfg.Storage.Namespace+":")
		if err != nil {
			return nil, nil, err
		}
		backend, closeFn = rs, rs.Close
	case config.BackendMemory:
		backend = memory.New()
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if cfg.Storage.SealSecret != "" {
		sealed, err := storage.NewSealed(backend, []byte(cfg.Storage.SealSecret), cfg.Storage.Namespace)
		if err != nil {
			_ = closeFn()
			return nil, nil, err
		}
		backend = sealed
	}
	return backend, closeFn, nil
}

// client is the session stack a command works with.
type client struct {
	store   *credstore.Store
	machine *session.Machine
	gw      *gateway.Gateway
	nav     *navigation.Recorder
	routes  navigation.Routes
	close   func() error
}

// openClient wires the credential store, session machine and gateway the
// way an embedding dashboard would, and rehydrates the stored session.
func openClient(cfg *config.Config) (*client, error) {
	backend, closeFn, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}
	logger := slog.Default()
	routes := cfg.Routes.Navigation()

	store := credstore.New(backend,
		credstore.WithNamespace(cfg.Storage.Namespace),
		credstore.WithLogger(logger))
	nav := navigation.NewRecorder(routes.Landing)
	gw, err := gateway.New(cfg.BaseURL, store,
		gateway.WithTimeout(cfg.Timeout),
		gateway.WithLogger(logger),
		gateway.WithUserAgent("gatekeeper/"+Version),
		gateway.WithNavigator(nav, routes))
	if err != nil {
		_ = closeFn()
		return nil, err
	}
	m := session.Open(store, gw, session.WithLogger(logger))
	gw.Bind(m)

	return &client{
		store:   store,
		machine: m,
		gw:      gw,
		nav:     nav,
		routes:  routes,
		close:   closeFn,
	}, nil
}

var errNotLoggedIn = errors.New("not logged in; run 'gatekeeper login'")

// expired reports whether a request sent the client back to the public
// entry during this run.
func (c *client) expired() bool {
	for _, r := range c.nav.Redirects() {
		if r == c.routes.PublicEntry {
			return true
		}
	}
	return false
}
