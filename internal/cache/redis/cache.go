// Package redis implements the idempotency cache on Redis with SET NX EX,
// so every intake instance shares one view of the claimed request ids.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	interfaces "github.com/sheikh-saqib/checking-account-ledger/internal/interfaces"
)

const defaultKeyPrefix = "ledger:idempotency:"

// Cache is a Redis backed IdempotencyCache.
type Cache struct {
	client redis.UniversalClient
	prefix string
}

// Option configures a Cache.
type Option func(*Cache)

// WithKeyPrefix namespaces every key. The default is "ledger:idempotency:".
func WithKeyPrefix(prefix string) Option {
	return func(c *Cache) {
		c.prefix = prefix
	}
}

func NewCache(client redis.UniversalClient, opts ...Option) *Cache {
	c := &Cache{
		client: client,
		prefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect builds a client for addr and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (c *Cache) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	claimed, err := c.client.SetNX(ctx, c.prefix+key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis set-if-absent %s: %w", key, err)
	}
	return claimed, nil
}

func (c *Cache) Release(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis release %s: %w", key, err)
	}
	return nil
}

var _ interfaces.IdempotencyCache = (*Cache)(nil)
