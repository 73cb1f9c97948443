package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/v0idhrt/radar/internal/api/handlers"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Services  Services  `json:"services"`
}

type Services struct {
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

// HealthChecker verifies one backing service is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handlers bundles the route handlers wired up by the bootstrap.
type Handlers struct {
	Webhook *handlers.WebhookHandler
	Collect *handlers.CollectHandler
	News    *handlers.NewsHandler
	Stats   *handlers.StatsHandler
}

func SetupRoutes(router *gin.Engine, h Handlers, db, redis HealthChecker) {
	// Health check endpoint
	router.GET("/health", healthCheck(db, redis))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		anomaly := v1.Group("/anomaly")
		{
			anomaly.POST("/webhook", h.Webhook.HandleAnomaly)
			anomaly.GET("/stats/:ticker", h.Webhook.GetTickerStats)
		}

		v1.POST("/collect", h.Collect.HandleCollect)
		v1.POST("/analyze", h.Collect.HandleAnalyze)

		v1.GET("/news/:company", h.News.GetNews)
		v1.GET("/stats/:company", h.News.GetCompanyStats)

		v1.GET("/sources", h.Stats.GetSources)
		v1.GET("/queue/stats", h.Stats.GetQueueStats)
		v1.GET("/stats", h.Stats.GetSystemStats)
	}
}

func healthCheck(db, redis HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now(),
			Version:   "1.0.0",
			Services: Services{
				Database: "ok",
				Redis:    "ok",
			},
		}

		if err := db.HealthCheck(c.Request.Context()); err != nil {
			response.Services.Database = "error"
			response.Status = "degraded"
		}

		if err := redis.HealthCheck(c.Request.Context()); err != nil {
			response.Services.Redis = "error"
			response.Status = "degraded"
		}

		statusCode := http.StatusOK
		if response.Status == "degraded" {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, response)
	}
}
