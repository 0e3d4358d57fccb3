package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/pcr-tracker-go/internal/models"
)

// LatestEntry is the cached form of the most recent reconciled row.
type LatestEntry struct {
	Row      models.ReconciledRow `json:"row"`
	RowIndex int                  `json:"row_index"`
	CachedAt time.Time            `json:"cached_at"`
}

// LatestCacheStats tracks cache performance metrics
type LatestCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	mu     sync.RWMutex
}

// RedisLatestCache keeps the last written row in Redis so every instance
// can serve it.
type RedisLatestCache struct {
	redis *redis.Client
	ttl   time.Duration
	stats *LatestCacheStats
	key   string
}

// NewRedisLatestCache creates a new Redis-based latest-row cache
func NewRedisLatestCache(redisClient *redis.Client, ttl time.Duration) *RedisLatestCache {
	return &RedisLatestCache{
		redis: redisClient,
		ttl:   ttl,
		stats: &LatestCacheStats{},
		key:   "pcr:latest",
	}
}

// Get returns the cached entry.
func (c *RedisLatestCache) Get(ctx context.Context) (LatestEntry, bool) {
	data, err := c.redis.Get(ctx, c.key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logrus.WithError(err).Warn("Redis error getting latest row")
		}
		c.miss()
		return LatestEntry{}, false
	}

	var entry LatestEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		logrus.WithError(err).Warn("Error deserializing cached latest row")
		c.miss()
		return LatestEntry{}, false
	}

	c.stats.mu.Lock()
	c.stats.Hits++
	c.stats.mu.Unlock()
	return entry, true
}

// Set stores the row written at rowIndex.
func (c *RedisLatestCache) Set(ctx context.Context, row models.ReconciledRow, rowIndex int) {
	entry := LatestEntry{Row: row, RowIndex: rowIndex, CachedAt: time.Now()}
	data, err := json.Marshal(entry)
	if err != nil {
		logrus.WithError(err).Warn("Error serializing latest row")
		return
	}
	if err := c.redis.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		logrus.WithError(err).Warn("Redis error setting latest row")
		return
	}

	c.stats.mu.Lock()
	c.stats.Sets++
	c.stats.mu.Unlock()
}

// Clear removes the cached row, used after a reset.
func (c *RedisLatestCache) Clear(ctx context.Context) {
	if err := c.redis.Del(ctx, c.key).Err(); err != nil {
		logrus.WithError(err).Warn("Redis error clearing latest row")
	}
}

// GetStats returns current cache statistics
func (c *RedisLatestCache) GetStats() LatestCacheStats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()
	return LatestCacheStats{
		Hits:   c.stats.Hits,
		Misses: c.stats.Misses,
		Sets:   c.stats.Sets,
	}
}

func (c *RedisLatestCache) miss() {
	c.stats.mu.Lock()
	c.stats.Misses++
	c.stats.mu.Unlock()
}
