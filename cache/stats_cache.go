package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"TrackLens/core/catalog"
	"TrackLens/logger"

	"github.com/redis/go-redis/v9"
)

// StatsKey holds the cached catalog statistics.
const StatsKey = "tracklens:stats"

// StatsCache caches the catalog summary between writes.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatsCache returns a cache on client. A nil client yields a cache that
// always misses.
func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{client: client, ttl: ttl}
}

// Get returns the cached stats. ok is false on a miss.
func (c *StatsCache) Get(ctx context.Context) (stats catalog.Stats, ok bool, err error) {
	if c == nil || c.client == nil {
		return stats, false, nil
	}
	data, err := c.client.Get(ctx, StatsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return stats, false, nil
	}
	if err != nil {
		return stats, false, fmt.Errorf("failed to get stats from Redis: %w", err)
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		// 缓存损坏，直接丢弃
		logger.Warn("discarding corrupt stats cache entry", logger.ErrorField(err))
		_ = c.client.Del(ctx, StatsKey).Err()
		return catalog.Stats{}, false, nil
	}
	return stats, true, nil
}

// Set stores stats with the configured TTL.
func (c *StatsCache) Set(ctx context.Context, stats catalog.Stats) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	if err := c.client.Set(ctx, StatsKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache stats: %w", err)
	}
	return nil
}

// Invalidate drops the cached stats after the catalog changes.
func (c *StatsCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, StatsKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate stats cache: %w", err)
	}
	return nil
}
