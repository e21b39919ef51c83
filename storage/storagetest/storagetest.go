// Package storagetest provides helpers for testing code built on storage.Backend.
package storagetest

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/courseforge/gatekeeper/storage"
)

// Counting wraps a Backend and counts mutating calls. A batch counts once
// regardless of how many writes it carries.
type Counting struct {
	storage.Backend

	mu      sync.Mutex
	writes  int
	FailPut error
}

var _ storage.Backend = (*Counting)(nil)

// NewCounting wraps b.
func NewCounting(b storage.Backend) *Counting {
	return &Counting{Backend: b}
}

// Writes returns the number of Put, Delete and Batch calls seen so far.
func (c *Counting) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

func (c *Counting) count() {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
}

func (c *Counting) Put(key string, value []byte) error {
	c.count()
	if c.FailPut != nil {
		return c.FailPut
	}
	return c.Backend.Put(key, value)
}

func (c *Counting) Delete(key string) error {
	c.count()
	return c.Backend.Delete(key)
}

func (c *Counting) Batch(fn func(tx storage.Tx) error) error {
	c.count()
	return c.Backend.Batch(func(tx storage.Tx) error {
		if c.FailPut != nil {
			return c.FailPut
		}
		return fn(tx)
	})
}

// Has reports whether key exists in b.
func Has(b storage.Backend, key string) bool {
	_, err := b.Get(key)
	return err == nil
}

// RunBackendSuite runs the common conformance checks against any Backend.
// The backend must start empty.
func RunBackendSuite(t *testing.T, b storage.Backend) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := b.Get("suite.missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		if err := b.Put("suite.ow", []byte("v1")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := b.Put("suite.ow", []byte("v2")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := b.Get("suite.ow")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != "v2" {
			t.Fatalf("got %q, want %q", got, "v2")
		}
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		if err := b.Delete("suite.never-existed"); err != nil {
			t.Fatalf("Delete of missing key should succeed, got %v", err)
		}
	})

	t.Run("BatchAllOrNothing", func(t *testing.T) {
		err := b.Batch(func(tx storage.Tx) error {
			if err := tx.Put("suite.a", []byte("1")); err != nil {
				return err
			}
			return fmt.Errorf("simulated error")
		})
		if err == nil {
			t.Fatal("expected Batch to fail")
		}
		if Has(b, "suite.a") {
			t.Fatal("failed batch must not leave writes behind")
		}

		err = b.Batch(func(tx storage.Tx) error {
			if err := tx.Put("suite.a", []byte("1")); err != nil {
				return err
			}
			return tx.Put("suite.b", []byte("2"))
		})
		if err != nil {
			t.Fatalf("Batch failed: %v", err)
		}
		if !Has(b, "suite.a") || !Has(b, "suite.b") {
			t.Fatal("successful batch must apply every write")
		}
	})
}
