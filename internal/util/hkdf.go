package util

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey expands secret into an AESKeySize key with HKDF-SHA256. The
// purpose string binds the key to one use, so the same secret yields
// unrelated keys for different purposes. An empty salt is allowed.
func DeriveKey(secret []byte, salt, purpose string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("derive key: empty secret")
	}
	if purpose == "" {
		return nil, errors.New("derive key: empty purpose")
	}
	r := hkdf.New(sha256.New, secret, []byte(salt), []byte(purpose))
	key := make([]byte, AESKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key %q: %w", purpose, err)
	}
	return key, nil
}
