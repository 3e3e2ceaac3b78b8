package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces every tag-statistics key in Redis.
// Example: "mimir:taginfo:amenity:V"
const KeyPrefix = "mimir:taginfo:"

// RedisStore is the L2 tier. Entries are JSON documents so that other
// instances, and operators using redis-cli, can read them.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps client. A ttl of zero stores entries without expiry.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("cache: redis client cannot be nil")
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Get loads the entry for key. A missing key is not an error.
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := s.client.Get(ctx, KeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to read %q from redis: %w", key, err)
	}

	e, err := decodeEntry(data)
	if err != nil {
		return Entry{}, false, fmt.Errorf("corrupt redis entry %q: %w", key, err)
	}
	return e, true, nil
}

// Set writes the entry for key.
func (s *RedisStore) Set(ctx context.Context, key string, e Entry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, KeyPrefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write %q to redis: %w", key, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
