package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/v0idhrt/radar/internal/api"
	"github.com/v0idhrt/radar/internal/api/handlers"
	"github.com/v0idhrt/radar/internal/cache"
	"github.com/v0idhrt/radar/internal/config"
	"github.com/v0idhrt/radar/internal/database"
	"github.com/v0idhrt/radar/internal/logging"
	"github.com/v0idhrt/radar/internal/providers"
	"github.com/v0idhrt/radar/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment)

	ctx := context.Background()

	// Initialize database pool and schema
	pool, err := database.NewPostgresPool(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = pool.Close(context.Background()) }()

	store := database.NewStore(pool, logger)
	if err := store.InitSchema(ctx); err != nil {
		logger.Fatalf("Failed to initialize schema: %v", err)
	}

	// Initialize Redis
	redis, err := database.NewRedisConnection(cfg.Redis, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	// Core services
	limiters := services.NewServiceRateLimiters(cfg.RateLimits, logger)
	filter := services.NewSignificanceFilter(cfg.Filter, logger)

	requestTimeout := time.Duration(cfg.Providers.RequestTimeout) * time.Second
	newsProviders := []providers.Provider{
		providers.NewGoogleProvider(cfg.Providers.GoogleAPIKey, cfg.Providers.GoogleCX, requestTimeout, cfg.Providers.MaxRetries),
		providers.NewSerperProvider(cfg.Providers.SerperAPIKey, requestTimeout, cfg.Providers.MaxRetries),
		providers.NewYandexProvider(cfg.Providers.YandexAPIKey, cfg.Providers.YandexFolderID, requestTimeout, cfg.Providers.MaxRetries),
		providers.NewRSSProvider(cfg.Providers.RSSFeeds),
	}

	aggregator := services.NewAggregator(newsProviders, limiters, store, logger)

	resultCache := cache.NewResultCache(
		redis.Client,
		time.Duration(cfg.Collector.CacheTTLSeconds)*time.Second,
		logger,
	)
	collector := services.NewCollector(aggregator, resultCache, logger)
	analysis := services.NewAnalysisService(cfg.Analysis, limiters, logger)

	// Task queue and the collection worker
	queue := services.NewTaskQueue(logger)
	queue.RegisterHandler(handlers.TaskCollectNews, func(ctx context.Context, payload map[string]any) error {
		companyName, _ := payload["company_name"].(string)
		if companyName == "" {
			return fmt.Errorf("collect_news payload missing company_name")
		}
		_, err := collector.Collect(ctx, companyName, cfg.Collector.MaxResultsPerSource, nil, nil, false)
		return err
	})

	if err := queue.Start(ctx, cfg.Queue.Workers); err != nil {
		logger.Fatalf("Failed to start task queue: %v", err)
	}
	defer queue.Stop()

	dedupWindow := time.Duration(cfg.Queue.DedupWindowSeconds) * time.Second

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	api.SetupRoutes(router, api.Handlers{
		Webhook: handlers.NewWebhookHandler(filter, queue, store, store, dedupWindow, logger),
		Collect: handlers.NewCollectHandler(collector, analysis, cfg.Collector.MaxResultsPerSource, logger),
		News:    handlers.NewNewsHandler(store, logger),
		Stats:   handlers.NewStatsHandler(queue, limiters, aggregator, collector, pool),
	}, store, redis)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
