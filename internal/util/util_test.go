package util

import (
	"bytes"
	"testing"
)

func TestAES(t *testing.T) {
	key, _ := NewAESKey()
	plainText := []byte("hello world")
	aad := []byte("context")

	t.Run("EncryptDecryptWithAAD", func(t *testing.T) {
		cipherText, err := EncryptAESWithAAD(plainText, key, aad)
		if err != nil {
			t.Fatalf("EncryptAESWithAAD failed: %v", err)
		}
		decrypted, err := DecryptAESWithAAD(cipherText, key, aad)
		if err != nil {
			t.Fatalf("DecryptAESWithAAD failed: %v", err)
		}
		if !bytes.Equal(plainText, decrypted) {
			t.Errorf("expected %s, got %s", plainText, decrypted)
		}
	})

	t.Run("TamperAAD", func(t *testing.T) {
		cipherText, _ := EncryptAESWithAAD(plainText, key, aad)
		if _, err := DecryptAESWithAAD(cipherText, key, []byte("wrong context")); err == nil {
			t.Error("expected error with wrong AAD, got nil")
		}
	})

	t.Run("TamperCipherText", func(t *testing.T) {
		cipherText, _ := EncryptAESWithAAD(plainText, key, aad)
		cipherText[len(cipherText)-1] ^= 0xFF
		if _, err := DecryptAESWithAAD(cipherText, key, aad); err == nil {
			t.Error("expected error with tampered ciphertext, got nil")
		}
	})

	t.Run("ShortCipherText", func(t *testing.T) {
		if _, err := DecryptAESWithAAD([]byte{1, 2, 3}, key, aad); err == nil {
			t.Error("expected error with short ciphertext, got nil")
		}
	})

	t.Run("BadKeySize", func(t *testing.T) {
		if _, err := EncryptAESWithAAD(plainText, []byte("short"), aad); err == nil {
			t.Error("expected error with bad key size, got nil")
		}
	})
}

func TestDeriveKey(t *testing.T) {
	secret := []byte("device-secret")

	key1, err := DeriveKey(secret, "salt", "credential_store")
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	if len(key1) != AESKeySize {
		t.Errorf("expected key length %d, got %d", AESKeySize, len(key1))
	}

	key2, _ := DeriveKey(secret, "salt", "credential_store")
	if !bytes.Equal(key1, key2) {
		t.Error("DeriveKey should be deterministic")
	}

	key3, _ := DeriveKey(secret, "salt", "session_cache")
	if bytes.Equal(key1, key3) {
		t.Error("different purposes should yield different keys")
	}

	key4, _ := DeriveKey(secret, "other", "credential_store")
	if bytes.Equal(key1, key4) {
		t.Error("different salts should yield different keys")
	}

	if _, err := DeriveKey(nil, "salt", "credential_store"); err == nil {
		t.Error("expected error for empty secret")
	}
	if _, err := DeriveKey(secret, "salt", ""); err == nil {
		t.Error("expected error for empty purpose")
	}

	sealed, err := EncryptAESWithAAD([]byte("t1"), key1, []byte("aad"))
	if err != nil {
		t.Fatalf("derived key should be usable for AES: %v", err)
	}
	plain, err := DecryptAESWithAAD(sealed, key1, []byte("aad"))
	if err != nil || string(plain) != "t1" {
		t.Errorf("round trip with derived key failed: %q, %v", plain, err)
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("cafe\u0301"); got != "caf\u00e9" {
		t.Errorf("Normalize should compose to NFKC, got %q", got)
	}
	if got := Normalize("\uff41dmin"); got != "admin" {
		t.Errorf("Normalize should fold fullwidth letters, got %q", got)
	}
	if got := NormalizeEmail("  Admin@X.com "); got != "admin@x.com" {
		t.Errorf("NormalizeEmail returned %q", got)
	}
}

func TestRandomBytes(t *testing.T) {
	b1, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes failed: %v", err)
	}
	b2, _ := RandomBytes(32)
	if len(b1) != 32 {
		t.Errorf("expected 32 bytes, got %d", len(b1))
	}
	if bytes.Equal(b1, b2) {
		t.Error("RandomBytes should produce different outputs")
	}
}
