package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisKV stores each key as a Redis string under a prefix.
type RedisKV struct {
	client redis.Cmdable
	prefix string
}

var _ KV = (*RedisKV)(nil)

// RedisOption configures a RedisKV.
type RedisOption func(*RedisKV)

// WithKeyPrefix namespaces all keys, e.g. per extension install.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisKV) {
		r.prefix = prefix
	}
}

func NewRedisKV(client redis.Cmdable, opts ...RedisOption) *RedisKV {
	r := &RedisKV{client: client}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRedisKVFromURL parses a redis:// URL and connects lazily.
func NewRedisKVFromURL(url string, opts ...RedisOption) (*RedisKV, *redis.Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("[NewRedisKVFromURL] %w", err)
	}
	client := redis.NewClient(options)
	return NewRedisKV(client, opts...), client, nil
}

func (r *RedisKV) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("[RedisKV.Get] %w", err)
	}
	return val, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("[RedisKV.Set] %w", err)
	}
	return nil
}

func (r *RedisKV) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("[RedisKV.Remove] %w", err)
	}
	return nil
}
