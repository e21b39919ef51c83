// Package redis provides a Redis-backed storage backend for hosts where the
// credential record must outlive the local filesystem.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/courseforge/gatekeeper/storage"
)

const defaultOpTimeout = 2 * time.Second

// Store implements storage.Backend on top of a Redis client.
type Store struct {
	client  *goredis.Client
	prefix  string
	timeout time.Duration
}

var _ storage.Backend = (*Store)(nil)

// New returns a Store using client. Every key is prefixed with prefix.
func New(client *goredis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix, timeout: defaultOpTimeout}
}

// Dial connects to addr and verifies the connection with a PING.
func Dial(addr, password string, db int, prefix string) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return New(client, prefix), nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Store) Get(key string) ([]byte, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%s: %w", key, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *Store) Put(key string, value []byte) error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.Set(ctx, s.key(key), value, 0).Err()
}

func (s *Store) Delete(key string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.Del(ctx, s.key(key)).Err()
}

// Batch queues the writes made by fn and executes them in a MULTI/EXEC
// transaction. Nothing is sent if fn fails.
func (s *Store) Batch(fn func(tx storage.Tx) error) error {
	ctx, cancel := s.ctx()
	defer cancel()
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		return fn(&redisTx{s: s, ctx: ctx, pipe: pipe})
	})
	return err
}

type redisTx struct {
	s    *Store
	ctx  context.Context
	pipe goredis.Pipeliner
}

func (tx *redisTx) Put(key string, value []byte) error {
	tx.pipe.Set(tx.ctx, tx.s.key(key), value, 0)
	return nil
}

func (tx *redisTx) Delete(key string) error {
	tx.pipe.Del(tx.ctx, tx.s.key(key))
	return nil
}
