package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// IdempotencyCache implements ports.IdempotencyCache using Redis.
type IdempotencyCache struct {
	client  *goredis.Client
	breaker *Breaker
	prefix  string
}

// NewIdempotencyCache creates a new Redis-backed idempotency cache.
// breaker may be nil.
func NewIdempotencyCache(client *goredis.Client, breaker *Breaker) *IdempotencyCache {
	return &IdempotencyCache{
		client:  client,
		breaker: breaker,
		prefix:  "idempotency:",
	}
}

// Get retrieves a cached response by idempotency key.
// Returns nil, nil if the key does not exist.
func (c *IdempotencyCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := execute(c.breaker, func() ([]byte, error) {
		val, err := c.client.Get(ctx, c.prefix+key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return val, err
	})
	if err != nil {
		return nil, fmt.Errorf("redis idempotency get: %w", err)
	}
	return val, nil
}

// Set stores a response in the idempotency cache with TTL.
func (c *IdempotencyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := execute(c.breaker, func() (string, error) {
		return c.client.Set(ctx, c.prefix+key, value, ttl).Result()
	})
	if err != nil {
		return fmt.Errorf("redis idempotency set: %w", err)
	}
	return nil
}

// Claim marks key as in flight with SET NX. It returns false when another
// request already holds the claim.
func (c *IdempotencyCache) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := execute(c.breaker, func() (bool, error) {
		return c.client.SetNX(ctx, c.prefix+"lock:"+key, 1, ttl).Result()
	})
	if err != nil {
		return false, fmt.Errorf("redis idempotency claim: %w", err)
	}
	return ok, nil
}

// Release drops the in-flight claim on key.
func (c *IdempotencyCache) Release(ctx context.Context, key string) error {
	_, err := execute(c.breaker, func() (int64, error) {
		return c.client.Del(ctx, c.prefix+"lock:"+key).Result()
	})
	if err != nil {
		return fmt.Errorf("redis idempotency release: %w", err)
	}
	return nil
}
