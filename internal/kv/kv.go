// Package kv is a small typed key-value repository for persisted client
// state: filters, locations, favorites and recent searches. Values are
// stored as JSON.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("kv: key not found")

// Repository stores raw values by key.
// Implementations must be safe for concurrent use.
type Repository interface {
	// GetRaw returns the stored bytes or ErrNotFound.
	GetRaw(ctx context.Context, key string) ([]byte, error)

	// SetRaw stores value under key, replacing any previous value.
	SetRaw(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources owned by the repository. It does not close
	// shared storage connections.
	Close() error
}

// Get decodes the JSON value stored under key into a T.
// A value that fails to decode is reported as a *DecodeError.
func Get[T any](ctx context.Context, repo Repository, key string) (T, error) {
	var out T
	raw, err := repo.GetRaw(ctx, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		var zero T
		return zero, &DecodeError{Key: key, Err: err}
	}
	return out, nil
}

// Set encodes value as JSON and stores it under key.
func Set[T any](ctx context.Context, repo Repository, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	return repo.SetRaw(ctx, key, raw)
}

// DecodeError reports a stored value that is not valid JSON for the target type.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("kv: decode %s: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Namespaced prefixes every key with prefix and a colon.
func Namespaced(repo Repository, prefix string) Repository {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		return repo
	}
	return &namespaced{repo: repo, prefix: prefix + ":"}
}

type namespaced struct {
	repo   Repository
	prefix string
}

func (n *namespaced) GetRaw(ctx context.Context, key string) ([]byte, error) {
	return n.repo.GetRaw(ctx, n.prefix+key)
}

func (n *namespaced) SetRaw(ctx context.Context, key string, value []byte) error {
	return n.repo.SetRaw(ctx, n.prefix+key, value)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.repo.Delete(ctx, n.prefix+key)
}

// Close is a no-op; the wrapped repository is owned by whoever created it.
func (n *namespaced) Close() error { return nil }
