package migration

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Store.Get when the key has never been
// written (spec §4.11 restore step 1: "If absent -> no restore").
var ErrNotFound = errors.New("key not found")

// Store is the external K/V contract C11 depends on. In production
// it is backed by Redis (mirroring the teacher's FileStorage), and in
// tests by the same client pointed at miniredis.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// RedisStore is the production Store, grounded in the teacher's
// file_storage.go FileStorage wrapper around *redis.Client.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore builds a RedisStore against addr (host:port).
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewRedisStoreFromClient wraps an already-constructed client (used by
// tests to point at miniredis).
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get fetches value for key, returning ErrNotFound if unset.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Set stores value for key with no expiry — migration state must
// survive until the next successful restore consumes it.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, key, value, 0).Err()
}
