package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatsCache keeps the per-source stats aggregation in Redis for a short
// TTL so a dashboard polling the endpoint does not hammer the run log.
// Every cache failure is a miss; the caller falls through to SQL.
type StatsCache struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

func NewStatsCache(client *redis.Client, logger *slog.Logger, ttl time.Duration) *StatsCache {
	return &StatsCache{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// GetJSON reads key into out. Returns false on a miss or any Redis error.
func (c *StatsCache) GetJSON(ctx context.Context, key string, out interface{}) bool {
	b, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed",
				slog.String("key", key),
				slog.Any("error", err),
			)
		}
		return false
	}

	if err := json.Unmarshal(b, out); err != nil {
		c.logger.Warn("cache entry corrupt, ignoring",
			slog.String("key", key),
			slog.Any("error", err),
		)
		return false
	}

	return true
}

// SetJSON writes value under key with the cache TTL
func (c *StatsCache) SetJSON(ctx context.Context, key string, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, b, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}

	return nil
}
