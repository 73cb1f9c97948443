package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/v0idhrt/radar/internal/database"
	"github.com/v0idhrt/radar/internal/services"
)

// StatsHandler exposes operational counters: queue depth, rate limiter
// windows, pool occupancy and cache effectiveness.
type StatsHandler struct {
	queue      *services.TaskQueue
	limiters   *services.ServiceRateLimiters
	aggregator *services.Aggregator
	collector  *services.Collector
	pool       *database.ConnPool
}

func NewStatsHandler(queue *services.TaskQueue, limiters *services.ServiceRateLimiters, aggregator *services.Aggregator, collector *services.Collector, pool *database.ConnPool) *StatsHandler {
	return &StatsHandler{
		queue:      queue,
		limiters:   limiters,
		aggregator: aggregator,
		collector:  collector,
		pool:       pool,
	}
}

// GetSources processes GET /api/v1/sources.
func (h *StatsHandler) GetSources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": h.aggregator.Sources()})
}

// GetQueueStats processes GET /api/v1/queue/stats.
func (h *StatsHandler) GetQueueStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.queue.Stats())
}

// GetSystemStats processes GET /api/v1/stats.
func (h *StatsHandler) GetSystemStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"queue":       h.queue.Stats(),
		"rate_limits": h.limiters.Stats(),
		"pool":        h.pool.Stats(),
		"cache":       h.collector.CacheStats(),
	})
}
