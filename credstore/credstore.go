// Package credstore persists the current session's token and user snapshot.
//
// The record is stored under two namespaced keys that are always written and
// cleared together. Reading a record that is incomplete or does not parse
// yields "no session" and removes both keys; a corrupt record is never an
// error and never fails open.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/courseforge/gatekeeper/auth"
	"github.com/courseforge/gatekeeper/storage"
)

// DefaultNamespace prefixes the persisted keys when no namespace is configured.
const DefaultNamespace = "gatekeeper"

// Record is the durable projection of a session.
type Record struct {
	Token string
	User  auth.User
}

// Store is the credential store. Only the session state machine writes it.
type Store struct {
	backend  storage.Backend
	tokenKey string
	userKey  string
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithNamespace prefixes both keys with ns.
func WithNamespace(ns string) Option {
	return func(s *Store) {
		if ns != "" {
			s.tokenKey, s.userKey = keys(ns)
		}
	}
}

// WithLogger sets the logger used to report discarded records.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func keys(ns string) (token, user string) {
	return ns + ".auth.token", ns + ".auth.user"
}

// New creates a Store over backend.
func New(backend storage.Backend, opts ...Option) *Store {
	s := &Store{backend: backend}
	s.tokenKey, s.userKey = keys(DefaultNamespace)
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "credstore")
	return s
}

// Keys returns the token and user keys in use.
func (s *Store) Keys() (token, user string) {
	return s.tokenKey, s.userKey
}

// Write stores token and user atomically.
func (s *Store) Write(token string, user auth.User) error {
	if token == "" {
		return errors.New("credstore: empty token")
	}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("credstore: marshaling user: %w", err)
	}
	err = s.backend.Batch(func(tx storage.Tx) error {
		if err := tx.Put(s.tokenKey, []byte(token)); err != nil {
			return err
		}
		return tx.Put(s.userKey, data)
	})
	if err != nil {
		return fmt.Errorf("credstore: writing record: %w", err)
	}
	return nil
}

// Read returns the persisted record. It returns false when there is no
// record or the record is invalid, in which case both keys are cleared.
func (s *Store) Read() (Record, bool) {
	tok, tokErr := s.backend.Get(s.tokenKey)
	usr, usrErr := s.backend.Get(s.userKey)

	if errors.Is(tokErr, storage.ErrNotFound) && errors.Is(usrErr, storage.ErrNotFound) {
		return Record{}, false
	}

	switch {
	case tokErr != nil:
		s.discard("token unreadable", tokErr)
		return Record{}, false
	case usrErr != nil:
		s.discard("user unreadable", usrErr)
		return Record{}, false
	case len(tok) == 0:
		s.discard("empty token", nil)
		return Record{}, false
	}

	var user auth.User
	if err := json.Unmarshal(usr, &user); err != nil {
		s.discard("user snapshot does not parse", err)
		return Record{}, false
	}
	if err := user.Validate(); err != nil {
		s.discard("user snapshot has wrong shape", err)
		return Record{}, false
	}
	return Record{Token: string(tok), User: user}, true
}

func (s *Store) discard(reason string, err error) {
	attrs := []any{slog.String("reason", reason)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.logger.Warn("discarding persisted session", attrs...)
	if cerr := s.Clear(); cerr != nil {
		s.logger.Error("clearing persisted session failed", slog.String("error", cerr.Error()))
	}
}

// Clear removes both keys. It is idempotent.
func (s *Store) Clear() error {
	err := s.backend.Batch(func(tx storage.Tx) error {
		if err := tx.Delete(s.tokenKey); err != nil {
			return err
		}
		return tx.Delete(s.userKey)
	})
	if err != nil {
		return fmt.Errorf("credstore: clearing record: %w", err)
	}
	return nil
}

// Token returns the persisted token when both keys are present. Unlike Read
// it never mutates storage, so request paths can call it freely.
func (s *Store) Token() (string, bool) {
	tok, err := s.backend.Get(s.tokenKey)
	if err != nil || len(tok) == 0 {
		return "", false
	}
	if _, err := s.backend.Get(s.userKey); err != nil {
		return "", false
	}
	return string(tok), true
}
