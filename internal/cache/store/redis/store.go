// Package redis persists cache snapshots in Redis so classifications survive
// sidecar restarts.
package redis

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"

	"crmscan/internal/cache"
	platformredis "crmscan/internal/platform/redis"
)

// Store implements cache.Store on a Redis connection. Snapshots are plain
// string values with no expiry; invalidation is only via explicit clear.
type Store struct {
	client *platformredis.Client
	prefix string
}

// New creates a Store namespacing its keys under prefix.
func New(client *platformredis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, cache.ErrNotFound
		}
		return nil, err
	}
	return raw, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.prefix+key, value, 0).Err()
}
