package redis

import (
	"context"
	"fmt"
	"time"

	"bank-ledger/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
)

// RateLimitStore implements ports.RateLimitStore with fixed-window counters.
type RateLimitStore struct {
	client  *goredis.Client
	breaker *Breaker
	prefix  string
	now     func() time.Time
}

// NewRateLimitStore creates a new Redis-backed rate limit store.
// breaker may be nil.
func NewRateLimitStore(client *goredis.Client, breaker *Breaker) *RateLimitStore {
	return &RateLimitStore{
		client:  client,
		breaker: breaker,
		prefix:  "ratelimit:",
		now:     time.Now,
	}
}

// Allow counts one request against key in the current window.
// The counter key is scoped by window id (unix time / window), so each window
// starts from zero.
func (s *RateLimitStore) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*ports.RateLimitResult, error) {
	windowSecs := int64(window / time.Second)
	if windowSecs <= 0 {
		windowSecs = 1
	}
	windowID := s.now().Unix() / windowSecs
	redisKey := fmt.Sprintf("%s%s:%d", s.prefix, key, windowID)

	count, err := execute(s.breaker, func() (int64, error) {
		count, err := s.client.Incr(ctx, redisKey).Result()
		if err != nil {
			return 0, err
		}
		if count == 1 {
			if err := s.client.Expire(ctx, redisKey, time.Duration(windowSecs+1)*time.Second).Err(); err != nil {
				return 0, err
			}
		}
		return count, nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis rate limit incr: %w", err)
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return &ports.RateLimitResult{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   (windowID + 1) * windowSecs,
	}, nil
}
