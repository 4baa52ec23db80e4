package kv

import (
	"context"
	"fmt"
	"time"

	"placemap/internal/storage"
)

// Options tune backend-specific behaviour.
type Options struct {
	// RedisPrefix is prepended to every Redis key
	RedisPrefix string
	// RedisTTL expires untouched Redis values; zero disables expiry
	RedisTTL time.Duration
}

// New builds the repository that matches the open storage connection.
// A nil store selects the in-memory backend.
func New(ctx context.Context, store storage.Storage, opts Options) (Repository, error) {
	if store == nil {
		return NewMemory(), nil
	}

	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteRepository(store.SQLiteDB())
	case storage.TypePostgreSQL:
		return NewPostgreSQLRepository(ctx, store.PostgreSQLPool())
	case storage.TypeMongoDB:
		return NewMongoDBRepository(store.MongoDatabase())
	case storage.TypeRedis:
		return NewRedisRepository(store.RedisClient(), opts.RedisPrefix, opts.RedisTTL)
	default:
		return nil, fmt.Errorf("unsupported storage type for kv: %s", store.Type())
	}
}
