// Package bbolt provides a BBolt-backed storage backend.
package bbolt

import (
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/courseforge/gatekeeper/storage"
)

// DefaultBucket is the bucket used when none is given.
const DefaultBucket = "gatekeeper"

// Store implements storage.Backend backed by a BBolt database. All keys live
// in a single bucket.
type Store struct {
	db     *bbolt.DB
	bucket []byte
}

var _ storage.Backend = (*Store)(nil)

// New returns a Store backed by the given BBolt database. An empty bucket
// name selects DefaultBucket.
func New(db *bbolt.DB, bucket string) *Store {
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &Store{db: db, bucket: []byte(bucket)}
}

// NewFromFile opens a BBolt database at the given path and returns a new Store.
func NewFromFile(path, bucket string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return New(db, bucket), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return fmt.Errorf("%s: %w", key, storage.ErrNotFound)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s: %w", key, storage.ErrNotFound)
		}
		// data is only valid for the life of the transaction.
		out = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Put(key string, value []byte) error {
	return s.Batch(func(tx storage.Tx) error {
		return tx.Put(key, value)
	})
}

func (s *Store) Delete(key string) error {
	return s.Batch(func(tx storage.Tx) error {
		return tx.Delete(key)
	})
}

func (s *Store) Batch(fn func(tx storage.Tx) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		return fn(&boltTx{bucket: b})
	})
}

type boltTx struct {
	bucket *bbolt.Bucket
}

func (tx *boltTx) Put(key string, value []byte) error {
	return tx.bucket.Put([]byte(key), value)
}

// Delete on a missing key is a no-op in bbolt.
func (tx *boltTx) Delete(key string) error {
	return tx.bucket.Delete([]byte(key))
}
