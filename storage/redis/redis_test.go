package redis

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseforge/gatekeeper/internal/uuid"
	"github.com/courseforge/gatekeeper/storage"
	"github.com/courseforge/gatekeeper/storage/storagetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("GATEKEEPER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GATEKEEPER_TEST_REDIS_ADDR not set; skipping Redis tests")
	}
	s, err := Dial(addr, os.Getenv("GATEKEEPER_TEST_REDIS_PASSWORD"), 0, "gatekeeper-test:"+uuid.New()+":")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisStore(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	require.NoError(t, s.Put("k", []byte("v")))
	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	require.NoError(t, s.Delete("k"))
	require.NoError(t, s.Delete("k"))
	_, err = s.Get("k")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestRedisBatch(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Batch(func(tx storage.Tx) error {
		tx.Put("a", []byte("1"))
		return tx.Put("b", []byte("2"))
	}))
	a, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "1", string(a))

	err = s.Batch(func(tx storage.Tx) error {
		tx.Delete("a")
		return fmt.Errorf("simulated error")
	})
	require.Error(t, err)
	_, err = s.Get("a")
	assert.NoError(t, err, "failed batch must not be executed")
}

func TestRedisBackendSuite(t *testing.T) {
	storagetest.RunBackendSuite(t, newTestStore(t))
}
