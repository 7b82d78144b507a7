package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps the variants of each key prefix in one Redis hash.
type RedisBackend struct {
	redis     *redis.Client
	namespace string
}

// NewRedisBackend creates a backend storing hashes under the given namespace.
// The backend owns the client and closes it on Close.
func NewRedisBackend(redisClient *redis.Client, namespace string) *RedisBackend {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if namespace == "" {
		namespace = "autocache"
	}
	return &RedisBackend{
		redis:     redisClient,
		namespace: namespace,
	}
}

func (b *RedisBackend) hashKey(prefix string) string {
	return b.namespace + ":" + prefix
}

func (b *RedisBackend) Variants(ctx context.Context, prefix string) ([]Entry, error) {
	values, err := b.redis.HGetAll(ctx, b.hashKey(prefix)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	entries := make([]Entry, 0, len(values))
	for key, value := range values {
		entries = append(entries, Entry{Key: key, Bytes: []byte(value)})
	}
	return entries, nil
}

func (b *RedisBackend) Put(ctx context.Context, prefix, key string, bytes []byte) error {
	if err := b.redis.HSet(ctx, b.hashKey(prefix), key, bytes).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, prefix, key string) error {
	if err := b.redis.HDel(ctx, b.hashKey(prefix), key).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}

func (b *RedisBackend) Close() error {
	return b.redis.Close()
}
