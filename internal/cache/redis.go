// Package cache keeps a short-lived snapshot of dashboard counts in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/erazemk/armarios/internal/model"
)

const statsKey = "armarios:dashboard:stats"

// Connect creates a Redis client from a redis:// URL or a host:port address.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// StatsCache stores dashboard counts for a bounded time. Rentals invalidate
// it, and the TTL bounds how stale the overdue count can get.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatsCache returns a cache backed by client.
func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{client: client, ttl: ttl}
}

// Get returns the cached counts, or nil on a miss.
func (c *StatsCache) Get(ctx context.Context) (*model.DashboardStats, error) {
	raw, err := c.client.Get(ctx, statsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cached stats: %w", err)
	}

	var stats model.DashboardStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, fmt.Errorf("decoding cached stats: %w", err)
	}
	return &stats, nil
}

// Put stores the counts until the TTL expires.
func (c *StatsCache) Put(ctx context.Context, stats *model.DashboardStats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	if err := c.client.Set(ctx, statsKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("caching stats: %w", err)
	}
	return nil
}

// Invalidate drops the cached counts.
func (c *StatsCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, statsKey).Err(); err != nil {
		return fmt.Errorf("invalidating stats: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *StatsCache) Close() error {
	return c.client.Close()
}
