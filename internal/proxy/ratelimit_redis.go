package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindowStore is a distributed fixed-window counter for deployments
// running more than one gateway process. It falls back to a local counter
// for a partition whenever Redis is unreachable, so a Redis outage
// degrades admission accuracy rather than blocking it.
type RedisWindowStore struct {
	client   *redis.Client
	logger   *slog.Logger
	fallback *memoryWindowStore
}

// NewRedisWindowStore wraps client as a WindowStore.
func NewRedisWindowStore(client *redis.Client, logger *slog.Logger) *RedisWindowStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisWindowStore{
		client:   client,
		logger:   logger.With("component", "ratelimit_redis"),
		fallback: newMemoryWindowStore(),
	}
}

// Increment uses INCR with an expiring key as the window counter: the
// first increment in a window sets the TTL, every later increment in the
// same window observes a key that already has one.
func (s *RedisWindowStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	redisKey := s.redisKey(key)

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		s.logger.Warn("redis rate limit error, falling back to in-memory", "key", key, "error", err)
		return s.fallback.Increment(ctx, key, window)
	}
	if count == 1 {
		s.client.Expire(ctx, redisKey, window)
	}

	ttl, err := s.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return count, ttl, nil
}

func (s *RedisWindowStore) redisKey(key string) string {
	return fmt.Sprintf("ingressgw:ratelimit:%s", key)
}
