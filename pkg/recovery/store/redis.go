package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`

	// KeyPrefix scopes every key this store touches, including Clear.
	// Default: "archicomm:"
	KeyPrefix string `yaml:"key_prefix"`
}

// RedisStore persists values in Redis under a key prefix.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	closed atomic.Bool
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreFromClient(rdb, cfg.KeyPrefix), nil
}

// NewRedisStoreFromClient wraps an existing client. The store takes
// ownership and closes the client on Close.
func NewRedisStoreFromClient(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "archicomm:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (r *RedisStore) key(k string) string {
	return r.prefix + k
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if r.closed.Load() {
		return nil, ErrStoreClosed
	}
	data, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return data, nil
}

// Set implements Store.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if r.closed.Load() {
		return ErrStoreClosed
	}
	if err := r.rdb.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Remove implements Store.
func (r *RedisStore) Remove(ctx context.Context, key string) error {
	if r.closed.Load() {
		return ErrStoreClosed
	}
	if err := r.rdb.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Keys implements Store using SCAN, so it never blocks the server.
func (r *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if r.closed.Load() {
		return nil, ErrStoreClosed
	}
	full, err := r.scan(ctx, r.key(prefix))
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(full))
	for _, k := range full {
		keys = append(keys, strings.TrimPrefix(k, r.prefix))
	}
	slices.Sort(keys)
	return keys, nil
}

// Take implements Taker with GETDEL.
func (r *RedisStore) Take(ctx context.Context, key string) ([]byte, error) {
	if r.closed.Load() {
		return nil, ErrStoreClosed
	}
	data, err := r.rdb.GetDel(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("take %s: %w", key, err)
	}
	return data, nil
}

// Clear implements Clearer. Only keys under the store prefix are removed.
func (r *RedisStore) Clear(ctx context.Context) error {
	if r.closed.Load() {
		return ErrStoreClosed
	}
	keys, err := r.scan(ctx, r.prefix)
	if err != nil {
		return err
	}
	for chunk := range slices.Chunk(keys, 500) {
		if err := r.rdb.Del(ctx, chunk...).Err(); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
	}
	return nil
}

// Close implements Store.
func (r *RedisStore) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.rdb.Close()
}

func (r *RedisStore) scan(ctx context.Context, prefix string) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	match := escapeGlob(prefix) + "*"
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, match, 200).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", prefix, err)
		}
		out = append(out, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	// SCAN may return a key more than once.
	slices.Sort(out)
	return slices.Compact(out), nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
