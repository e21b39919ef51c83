// Package storage provides the durable key/value layer behind the credential store.
package storage

import "errors"

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("key not found")
	// ErrCorrupt is returned by Get when a stored value cannot be decoded.
	ErrCorrupt = errors.New("corrupt record")
)

// Tx provides Put and Delete within an atomic batch.
type Tx interface {
	Put(key string, value []byte) error
	Delete(key string) error
}

// Backend is a synchronous key/value store. Delete is idempotent: removing a
// missing key is not an error.
type Backend interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	// Batch executes fn atomically. If fn returns an error no write is applied.
	Batch(fn func(tx Tx) error) error
}
