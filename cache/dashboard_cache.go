package cache

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const dashboardSummaryKey = "dashboard:summary"

// DashboardCache keeps the rendered dashboard summary for a short TTL
type DashboardCache struct {
	redis *RedisClient
	ttl   time.Duration
}

// NewDashboardCache creates a dashboard cache. A nil client or non-positive TTL disables caching.
func NewDashboardCache(redis *RedisClient, ttl time.Duration) *DashboardCache {
	return &DashboardCache{redis: redis, ttl: ttl}
}

func (c *DashboardCache) enabled() bool {
	return c.redis.ready() && c.ttl > 0
}

// Load decodes the cached summary into dest and reports whether it was found
func (c *DashboardCache) Load(ctx context.Context, dest any) bool {
	if !c.enabled() {
		return false
	}
	if err := c.redis.Get(ctx, dashboardSummaryKey, dest); err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("⚠️  Dashboard cache read failed: %v", err)
		}
		return false
	}
	return true
}

// Store caches the summary
func (c *DashboardCache) Store(ctx context.Context, value any) {
	if !c.enabled() {
		return
	}
	if err := c.redis.Set(ctx, dashboardSummaryKey, value, c.ttl); err != nil {
		log.Printf("⚠️  Dashboard cache write failed: %v", err)
	}
}

// Invalidate drops the cached summary
func (c *DashboardCache) Invalidate(ctx context.Context) {
	if !c.enabled() {
		return
	}
	if err := c.redis.Delete(ctx, dashboardSummaryKey); err != nil {
		log.Printf("⚠️  Dashboard cache invalidation failed: %v", err)
	}
}
