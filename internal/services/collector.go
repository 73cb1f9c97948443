package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/v0idhrt/radar/internal/cache"
	"github.com/v0idhrt/radar/internal/models"
)

// Collector fronts the aggregator with a short-lived result cache so bursts
// of requests for the same company reuse one upstream sweep.
type Collector struct {
	aggregator *Aggregator
	cache      *cache.ResultCache
	logger     *logrus.Logger
}

func NewCollector(aggregator *Aggregator, resultCache *cache.ResultCache, logger *logrus.Logger) *Collector {
	return &Collector{
		aggregator: aggregator,
		cache:      resultCache,
		logger:     logger,
	}
}

// Collect returns cached results when a fresh entry exists, otherwise runs a
// full aggregation batch and caches its items. force bypasses the cache
// entirely and overwrites the entry.
func (c *Collector) Collect(ctx context.Context, companyName string, maxResults int, start, end *time.Time, force bool) (*CollectionResult, error) {
	key := cache.Key(companyName, maxResults, start, end)

	if !force && c.cache != nil {
		if items, ok := c.cache.Get(ctx, key); ok {
			c.logger.WithField("company", companyName).Debug("Serving collection from cache")
			return &CollectionResult{
				CompanyName: companyName,
				Items:       items,
				Sources:     []models.SourceResult{{Source: "cache", Count: len(items)}},
			}, nil
		}
	}

	result, err := c.aggregator.Collect(ctx, companyName, maxResults, start, end)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Set(ctx, key, result.Items)
	}
	return result, nil
}

// CacheStats exposes the underlying cache counters, zero-valued when caching
// is disabled.
func (c *Collector) CacheStats() cache.CacheStats {
	if c.cache == nil {
		return cache.CacheStats{}
	}
	return c.cache.Stats()
}
