package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/v0idhrt/radar/internal/models"
)

const keyPrefix = "radar:results:"

// ResultCache keeps recent collection results in Redis so repeated requests
// for the same company and window do not re-query every upstream provider.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats is a read-only snapshot of cache effectiveness.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

func NewResultCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ResultCache{client: client, ttl: ttl, logger: logger}
}

// Key derives a stable cache key from the company and request parameters.
func Key(companyName string, maxResults int, start, end *time.Time) string {
	raw := fmt.Sprintf("%s|%d|%s|%s", companyName, maxResults, formatBound(start), formatBound(end))
	sum := sha256.Sum256([]byte(raw))
	return keyPrefix + hex.EncodeToString(sum[:16])
}

func formatBound(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// Get returns cached items for the key, or (nil, false) on a miss. Redis
// errors are logged and treated as misses so the collector stays available.
func (c *ResultCache) Get(ctx context.Context, key string) ([]models.NewsItem, bool) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).Warn("Result cache read failed")
		c.misses.Add(1)
		return nil, false
	}

	var items []models.NewsItem
	if err := json.Unmarshal(payload, &items); err != nil {
		c.logger.WithError(err).Warn("Result cache entry corrupted, dropping")
		_ = c.client.Del(ctx, key).Err()
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return items, true
}

// Set stores items under the key with the cache TTL.
func (c *ResultCache) Set(ctx context.Context, key string, items []models.NewsItem) {
	payload, err := json.Marshal(items)
	if err != nil {
		c.logger.WithError(err).Warn("Result cache marshal failed")
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("Result cache write failed")
	}
}

// Invalidate removes one cached entry.
func (c *ResultCache) Invalidate(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.WithError(err).Warn("Result cache invalidate failed")
	}
}

func (c *ResultCache) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}
