package storage_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/courseforge/gatekeeper/internal/util"
	"github.com/courseforge/gatekeeper/storage"
	"github.com/courseforge/gatekeeper/storage/memory"
)

func TestEnvelope(t *testing.T) {
	key, _ := util.NewAESKey()
	plain := []byte("top secret")
	aad := []byte("context")

	env, err := storage.SealValue(key, plain, aad)
	if err != nil {
		t.Fatalf("SealValue failed: %v", err)
	}
	decrypted, err := storage.OpenValue(key, env, aad)
	if err != nil {
		t.Fatalf("OpenValue failed: %v", err)
	}
	if !bytes.Equal(plain, decrypted) {
		t.Errorf("expected %s, got %s", plain, decrypted)
	}

	t.Run("WrongAAD", func(t *testing.T) {
		if _, err := storage.OpenValue(key, env, []byte("wrong context")); err == nil {
			t.Error("expected error with wrong AAD, got nil")
		}
	})

	t.Run("UnsupportedScheme", func(t *testing.T) {
		bad := *env
		bad.Scheme = "unknown"
		if _, err := storage.OpenValue(key, &bad, aad); err == nil {
			t.Error("expected error with unsupported scheme, got nil")
		}
	})
}

func TestSealedBackend(t *testing.T) {
	inner := memory.New()
	s, err := storage.NewSealed(inner, []byte("correct horse"), "test-salt")
	if err != nil {
		t.Fatalf("NewSealed failed: %v", err)
	}

	if err := s.Put("k", []byte("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := s.Get("k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("expected v, got %s", got)
	}

	raw, _ := inner.Get("k")
	if bytes.Contains(raw, []byte(`"v"`)) || bytes.Equal(raw, []byte("v")) {
		t.Error("inner backend should only hold the sealed envelope")
	}

	t.Run("Batch", func(t *testing.T) {
		err := s.Batch(func(tx storage.Tx) error {
			if err := tx.Put("a", []byte("1")); err != nil {
				return err
			}
			return tx.Delete("k")
		})
		if err != nil {
			t.Fatalf("Batch failed: %v", err)
		}
		if v, err := s.Get("a"); err != nil || string(v) != "1" {
			t.Errorf("expected a=1, got %q (%v)", v, err)
		}
		if _, err := s.Get("k"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("TamperedValueIsCorrupt", func(t *testing.T) {
		_ = inner.Put("a", []byte("{not json"))
		if _, err := s.Get("a"); !errors.Is(err, storage.ErrCorrupt) {
			t.Errorf("expected ErrCorrupt, got %v", err)
		}
	})

	t.Run("WrongSecretIsCorrupt", func(t *testing.T) {
		_ = s.Put("b", []byte("2"))
		other, err := storage.NewSealed(inner, []byte("other secret"), "test-salt")
		if err != nil {
			t.Fatalf("NewSealed failed: %v", err)
		}
		if _, err := other.Get("b"); !errors.Is(err, storage.ErrCorrupt) {
			t.Errorf("expected ErrCorrupt, got %v", err)
		}
	})

	t.Run("EmptySecret", func(t *testing.T) {
		if _, err := storage.NewSealed(inner, nil, "salt"); err == nil {
			t.Error("expected error for empty secret")
		}
	})
}
