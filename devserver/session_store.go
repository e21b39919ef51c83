package devserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/courseforge/gatekeeper/storage"
)

// SessionStore tracks issued tokens by token id. A token whose id is not in
// the store is rejected even if its signature is valid.
type SessionStore interface {
	Get(tokenID string) (SessionRecord, bool)
	Put(tokenID string, rec SessionRecord) error
	Delete(tokenID string) error
}

// SessionRecord is the server-side state of an issued token.
type SessionRecord struct {
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MemorySessionStore is a thread-safe in-memory SessionStore. Sessions are
// lost on restart.
type MemorySessionStore struct {
	mu   sync.RWMutex
	data map[string]SessionRecord
	now  func() time.Time
}

var _ SessionStore = (*MemorySessionStore)(nil)

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{data: make(map[string]SessionRecord), now: time.Now}
}

func (s *MemorySessionStore) Get(tokenID string) (SessionRecord, bool) {
	s.mu.RLock()
	rec, ok := s.data[tokenID]
	s.mu.RUnlock()
	if !ok {
		return SessionRecord{}, false
	}
	if s.now().After(rec.ExpiresAt) {
		_ = s.Delete(tokenID)
		return SessionRecord{}, false
	}
	return rec, true
}

func (s *MemorySessionStore) Put(tokenID string, rec SessionRecord) error {
	s.mu.Lock()
	s.data[tokenID] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Delete(tokenID string) error {
	s.mu.Lock()
	delete(s.data, tokenID)
	s.mu.Unlock()
	return nil
}

const sessionKeyPrefix = "devserver.session."

// BackendSessionStore keeps sessions in a storage.Backend so they survive a
// restart when the backend is durable. Wrap the backend in storage.Sealed to
// encrypt records at rest.
type BackendSessionStore struct {
	backend storage.Backend
	logger  *slog.Logger
	now     func() time.Time
}

var _ SessionStore = (*BackendSessionStore)(nil)

func NewBackendSessionStore(backend storage.Backend, logger *slog.Logger) *BackendSessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackendSessionStore{backend: backend, logger: logger, now: time.Now}
}

func (s *BackendSessionStore) Get(tokenID string) (SessionRecord, bool) {
	data, err := s.backend.Get(sessionKeyPrefix + tokenID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("session lookup failed", slog.String("error", err.Error()))
		}
		if errors.Is(err, storage.ErrCorrupt) {
			_ = s.Delete(tokenID)
		}
		return SessionRecord{}, false
	}
	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		_ = s.Delete(tokenID)
		return SessionRecord{}, false
	}
	if s.now().After(rec.ExpiresAt) {
		_ = s.Delete(tokenID)
		return SessionRecord{}, false
	}
	return rec, true
}

func (s *BackendSessionStore) Put(tokenID string, rec SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.backend.Put(sessionKeyPrefix+tokenID, data)
}

func (s *BackendSessionStore) Delete(tokenID string) error {
	return s.backend.Delete(sessionKeyPrefix + tokenID)
}
