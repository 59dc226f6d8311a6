// Package redis provides a Redis-backed implementation of the document store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/goclaw/dayloop/pkg/storage"
	goredis "github.com/redis/go-redis/v9"
)

// Config holds connection settings for RedisStorage.
type Config struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// DefaultKeyPrefix is prepended to every Redis key.
const DefaultKeyPrefix = "dayloop:"

// RedisStorage implements storage.DocumentStore on top of a Redis client.
// Each document is a string value; a set per (actor, kind) indexes names.
type RedisStorage struct {
	client goredis.Cmdable
	closer func() error
	prefix string
}

// NewRedisStorage dials Redis and verifies the connection.
func NewRedisStorage(ctx context.Context, cfg *Config) (*RedisStorage, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &storage.StorageUnavailableError{Cause: fmt.Errorf("ping redis %s: %w", cfg.Address, err)}
	}

	s := NewWithClient(client, cfg.KeyPrefix)
	s.closer = client.Close
	return s, nil
}

// NewWithClient wraps an existing client. The caller keeps ownership of it.
func NewWithClient(client goredis.Cmdable, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStorage{client: client, prefix: prefix}
}

func (r *RedisStorage) docKey(key storage.Key) string {
	return r.prefix + "doc:" + key.String()
}

func (r *RedisStorage) indexKey(actor string, kind storage.Kind) string {
	return r.prefix + "idx:" + storage.Prefix(actor, kind)
}

// Get retrieves a document.
func (r *RedisStorage) Get(ctx context.Context, key storage.Key) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	data, err := r.client.Get(ctx, r.docKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.NewNotFound(key)
		}
		return nil, &storage.StorageUnavailableError{Cause: err}
	}
	return data, nil
}

// Put stores a document and indexes its name.
func (r *RedisStorage) Put(ctx context.Context, key storage.Key, data []byte) error {
	if err := key.Validate(); err != nil {
		return err
	}

	if err := r.client.Set(ctx, r.docKey(key), data, 0).Err(); err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	if err := r.client.SAdd(ctx, r.indexKey(key.Actor, key.Kind), key.Name).Err(); err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	return nil
}

// Delete removes a document and its index entry.
func (r *RedisStorage) Delete(ctx context.Context, key storage.Key) error {
	if err := key.Validate(); err != nil {
		return err
	}

	n, err := r.client.Del(ctx, r.docKey(key)).Result()
	if err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	if n == 0 {
		return storage.NewNotFound(key)
	}
	if err := r.client.SRem(ctx, r.indexKey(key.Actor, key.Kind), key.Name).Err(); err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	return nil
}

// List returns indexed names for one actor and kind.
func (r *RedisStorage) List(ctx context.Context, actor string, kind storage.Kind) ([]string, error) {
	names, err := r.client.SMembers(ctx, r.indexKey(actor, kind)).Result()
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}
	if names == nil {
		names = make([]string, 0)
	}
	sort.Strings(names)
	return names, nil
}

// Close closes the client if this store opened it.
func (r *RedisStorage) Close() error {
	if r.closer != nil {
		return r.closer()
	}
	return nil
}
