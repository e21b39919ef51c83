package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/courseforge/gatekeeper/internal/util"
)

const (
	sealScheme  = "aes256gcm"
	sealVersion = 1
	sealAADTag  = "gatekeeper:sealed:"
	sealKDFInfo = "gatekeeper:credential_store:v1"
)

// Envelope is a sealed value containing AES-256-GCM encrypted data.
type Envelope struct {
	Ver        int    `json:"ver"`
	Scheme     string `json:"scheme"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// SealValue encrypts plaintext into an Envelope bound to aad.
func SealValue(key, plaintext, aad []byte) (*Envelope, error) {
	cipher, err := util.EncryptAESWithAAD(plaintext, key, aad)
	if err != nil {
		return nil, err
	}
	// nonce || ciphertext
	return &Envelope{
		Ver:        sealVersion,
		Scheme:     sealScheme,
		Nonce:      cipher[:12],
		Ciphertext: cipher[12:],
	}, nil
}

// OpenValue decrypts an Envelope produced by SealValue.
func OpenValue(key []byte, env *Envelope, aad []byte) ([]byte, error) {
	if env.Ver != sealVersion {
		return nil, fmt.Errorf("unsupported envelope version: %d", env.Ver)
	}
	if env.Scheme != sealScheme {
		return nil, fmt.Errorf("unsupported envelope scheme: %s", env.Scheme)
	}
	full := make([]byte, len(env.Nonce)+len(env.Ciphertext))
	copy(full, env.Nonce)
	copy(full[len(env.Nonce):], env.Ciphertext)
	return util.DecryptAESWithAAD(full, key, aad)
}

// Sealed wraps a Backend so that every value is encrypted at rest. The
// encryption key is derived from a caller secret and kept in a memguard
// Enclave between uses.
type Sealed struct {
	inner Backend
	key   *memguard.Enclave
}

var _ Backend = (*Sealed)(nil)

// NewSealed derives a 32-byte key from secret and salt and wraps inner.
func NewSealed(inner Backend, secret []byte, salt string) (*Sealed, error) {
	if len(secret) == 0 {
		return nil, errors.New("seal secret must not be empty")
	}
	key, err := util.DeriveKey(secret, salt, sealKDFInfo)
	if err != nil {
		return nil, fmt.Errorf("deriving seal key: %w", err)
	}
	// NewEnclave wipes key.
	return &Sealed{inner: inner, key: memguard.NewEnclave(key)}, nil
}

func (s *Sealed) seal(key string, value []byte) ([]byte, error) {
	buf, err := s.key.Open()
	if err != nil {
		return nil, fmt.Errorf("opening seal key: %w", err)
	}
	defer buf.Destroy()
	env, err := SealValue(buf.Bytes(), value, []byte(sealAADTag+key))
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func (s *Sealed) Get(key string) ([]byte, error) {
	data, err := s.inner.Get(key)
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%s: %w", key, ErrCorrupt)
	}
	buf, err := s.key.Open()
	if err != nil {
		return nil, fmt.Errorf("opening seal key: %w", err)
	}
	defer buf.Destroy()
	plain, err := OpenValue(buf.Bytes(), &env, []byte(sealAADTag+key))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", key, ErrCorrupt, err)
	}
	return plain, nil
}

func (s *Sealed) Put(key string, value []byte) error {
	data, err := s.seal(key, value)
	if err != nil {
		return err
	}
	return s.inner.Put(key, data)
}

func (s *Sealed) Delete(key string) error {
	return s.inner.Delete(key)
}

func (s *Sealed) Batch(fn func(tx Tx) error) error {
	return s.inner.Batch(func(tx Tx) error {
		return fn(&sealedTx{s: s, tx: tx})
	})
}

type sealedTx struct {
	s  *Sealed
	tx Tx
}

func (t *sealedTx) Put(key string, value []byte) error {
	data, err := t.s.seal(key, value)
	if err != nil {
		return err
	}
	return t.tx.Put(key, data)
}

func (t *sealedTx) Delete(key string) error {
	return t.tx.Delete(key)
}
