package devserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseforge/gatekeeper/storage"
	"github.com/courseforge/gatekeeper/storage/memory"
)

func sessionStoreTests(t *testing.T, store SessionStore, setNow func(func() time.Time)) {
	t.Helper()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	setNow(func() time.Time { return now })

	t.Run("PutAndGet", func(t *testing.T) {
		rec := SessionRecord{UserID: "1", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
		require.NoError(t, store.Put("jti-1", rec))
		got, ok := store.Get("jti-1")
		require.True(t, ok)
		assert.Equal(t, "1", got.UserID)
		assert.True(t, rec.ExpiresAt.Equal(got.ExpiresAt))
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, ok := store.Get("no-such-token")
		assert.False(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Put("jti-del", SessionRecord{UserID: "1", ExpiresAt: now.Add(time.Hour)}))
		require.NoError(t, store.Delete("jti-del"))
		_, ok := store.Get("jti-del")
		assert.False(t, ok)
		assert.NoError(t, store.Delete("never-existed"))
	})

	t.Run("Expired", func(t *testing.T) {
		require.NoError(t, store.Put("jti-old", SessionRecord{UserID: "1", ExpiresAt: now.Add(-time.Second)}))
		_, ok := store.Get("jti-old")
		assert.False(t, ok)
	})
}

func TestMemorySessionStore(t *testing.T) {
	s := NewMemorySessionStore()
	sessionStoreTests(t, s, func(f func() time.Time) { s.now = f })
}

func TestBackendSessionStore(t *testing.T) {
	b := memory.New()
	s := NewBackendSessionStore(b, nil)
	sessionStoreTests(t, s, func(f func() time.Time) { s.now = f })

	require.NoError(t, b.Put(sessionKeyPrefix+"garbage", []byte("{")))
	_, ok := s.Get("garbage")
	assert.False(t, ok)
	assert.Equal(t, 1, b.Len(), "unparsable records are dropped")
}

func TestSealedBackendSessionStore(t *testing.T) {
	inner := memory.New()
	sealed, err := storage.NewSealed(inner, []byte("signing-key-for-tests"), "devserver")
	require.NoError(t, err)
	s := NewBackendSessionStore(sealed, nil)
	sessionStoreTests(t, s, func(f func() time.Time) { s.now = f })

	raw, err := inner.Get(sessionKeyPrefix + "jti-1")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "user_id")
}
