package tokenstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding the record when no key is configured.
const DefaultRedisKey = "session:tokens"

// RedisBackend stores the record as the fields of one redis hash. Saves run in
// a MULTI/EXEC block so readers never observe a partial record.
type RedisBackend struct {
	client redis.UniversalClient
	key    string
	grace  time.Duration
}

// RedisOption customizes a RedisBackend.
type RedisOption func(*RedisBackend)

// WithRedisKey overrides DefaultRedisKey.
func WithRedisKey(key string) RedisOption {
	return func(b *RedisBackend) {
		if key != "" {
			b.key = key
		}
	}
}

// WithExpiryGrace makes the hash expire grace after the token expiry.
// Zero keeps the hash until it is cleared.
func WithExpiryGrace(grace time.Duration) RedisOption {
	return func(b *RedisBackend) {
		b.grace = grace
	}
}

// NewRedisBackend wraps an existing client.
func NewRedisBackend(client redis.UniversalClient, opts ...RedisOption) *RedisBackend {
	b := &RedisBackend{client: client, key: DefaultRedisKey}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// NewRedis returns a Store backed by client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Store {
	return New(NewRedisBackend(client, opts...))
}

// Key returns the hash key.
func (b *RedisBackend) Key() string {
	return b.key
}

func (b *RedisBackend) Load(ctx context.Context) (map[string]string, error) {
	entries, err := b.client.HGetAll(ctx, b.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", b.key, err)
	}
	return entries, nil
}

func (b *RedisBackend) Save(ctx context.Context, entries map[string]string) error {
	values := make(map[string]any, len(entries))
	for k, v := range entries {
		values[k] = v
	}

	expireAt := b.expireAt(entries)

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.key)
		pipe.HSet(ctx, b.key, values)
		if !expireAt.IsZero() {
			pipe.ExpireAt(ctx, b.key, expireAt)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", b.key, err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context) error {
	if err := b.client.Del(ctx, b.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", b.key, err)
	}
	return nil
}

func (b *RedisBackend) expireAt(entries map[string]string) time.Time {
	if b.grace <= 0 {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(entries[KeyExpiration], 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).Add(b.grace)
}
