package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key written by RedisRepository.
const DefaultRedisPrefix = "placemap:"

// RedisRepository stores values as Redis strings, suitable for deployments
// with several instances behind a load balancer.
type RedisRepository struct {
	client *redis.Client
	prefix string
	// ttl bounds how long an untouched value survives; zero keeps it forever
	ttl time.Duration
}

// NewRedisRepository wraps client. An empty prefix uses DefaultRedisPrefix.
func NewRedisRepository(client *redis.Client, prefix string, ttl time.Duration) (*RedisRepository, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisRepository{client: client, prefix: prefix, ttl: ttl}, nil
}

func (r *RedisRepository) GetRaw(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from redis: %w", key, err)
	}
	return data, nil
}

func (r *RedisRepository) SetRaw(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in redis: %w", key, err)
	}
	return nil
}

func (r *RedisRepository) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s from redis: %w", key, err)
	}
	return nil
}

// Close is a no-op; the client belongs to storage.
func (r *RedisRepository) Close() error { return nil }
