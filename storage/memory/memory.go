// Package memory provides a thread-safe in-memory implementation of storage.Backend.
package memory

import (
	"fmt"
	"sync"

	"github.com/courseforge/gatekeeper/storage"
)

// Backend is a thread-safe in-memory storage.Backend.
// Suitable for testing, demos, and single-process use cases.
type Backend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ storage.Backend = (*Backend)(nil)

// New creates a new empty in-memory Backend.
func New() *Backend {
	return &Backend{data: make(map[string][]byte)}
}

func (b *Backend) Get(key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, storage.ErrNotFound)
	}
	return append([]byte(nil), v...), nil
}

func (b *Backend) Put(key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.putLocked(key, value)
	return nil
}

func (b *Backend) putLocked(key string, value []byte) {
	b.data[key] = append([]byte(nil), value...)
}

func (b *Backend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

// Len returns the number of stored keys.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Batch executes fn within a batch transaction. On error, all writes are rolled back.
func (b *Backend) Batch(fn func(tx storage.Tx) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot := make(map[string][]byte, len(b.data))
	for k, v := range b.data {
		snapshot[k] = v
	}

	if err := fn(&memoryTx{b: b}); err != nil {
		b.data = snapshot
		return err
	}
	return nil
}

type memoryTx struct {
	b *Backend
}

func (tx *memoryTx) Put(key string, value []byte) error {
	tx.b.putLocked(key, value)
	return nil
}

func (tx *memoryTx) Delete(key string) error {
	delete(tx.b.data, key)
	return nil
}
