package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/always-cache/autocache/cache"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// openBackend creates the storage engine named in the store settings.
func openBackend(ctx context.Context, settings StoreConfig) (cache.Backend, error) {
	switch settings.Type {
	case "", "memory":
		return cache.NewMemoryBackend(), nil
	case "sqlite":
		dbFilename := settings.DB
		if dbFilename == "memory" {
			dbFilename = ""
		}
		backend, err := cache.NewSQLiteBackend(dbFilename)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: settings.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis ping %s: %w", settings.RedisAddr, err)
		}
		return cache.NewRedisBackend(client, settings.Namespace), nil
	case "s3":
		if settings.S3Bucket == "" {
			return nil, errors.New("s3 store needs a bucket")
		}
		backend, err := cache.NewS3BackendFromConfig(ctx, settings.S3Bucket, settings.S3Region, settings.Namespace)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("bucket", settings.S3Bucket).Msg("Using S3 store")
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown store type %q", settings.Type)
	}
}
