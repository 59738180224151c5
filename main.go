package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"clientpulse/api/cache"
	"clientpulse/api/config"
	"clientpulse/api/crm"
	"clientpulse/api/database"
	"clientpulse/api/handlers"
	"clientpulse/api/leadmetrics"
	"clientpulse/api/middleware"
	"clientpulse/api/observability"
	"clientpulse/api/report"
	"clientpulse/api/rollup"
	"clientpulse/api/store"
	"clientpulse/api/utils"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if cfg.Server.GinMode != "" {
		gin.SetMode(cfg.Server.GinMode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)
	clock := quartz.NewReal()

	// --- PostgreSQL: clients, daily aggregates, metrics snapshots ---
	dbClient, err := database.NewPostgresDB(cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("initialize PostgreSQL: %w", err)
	}
	defer dbClient.Close()

	// --- ClickHouse: raw visit events ---
	chClient, err := database.NewClickHouseDB(cfg.ClickHouse, logger)
	if err != nil {
		return fmt.Errorf("initialize ClickHouse: %w", err)
	}
	defer chClient.Close()

	snapshots, closeSnapshots, err := newSnapshotStore(cfg, dbClient, logger)
	if err != nil {
		return err
	}
	defer closeSnapshots()

	// --- Stores ---
	eventStore := store.NewEventStore(chClient, logger)
	aggregateStore := store.NewAggregateStore(dbClient.DB)
	clientStore := store.NewClientStore(dbClient.DB)

	// --- Services ---
	aggregator := rollup.NewAggregator(eventStore, clientStore, aggregateStore, rollup.Options{
		Concurrency: cfg.Rollup.Concurrency,
		MaxRetries:  cfg.Rollup.MaxRetries,
	}, logger.Named("rollup"), metrics)
	engine := leadmetrics.NewEngine(crm.NewClient(cfg.CRM, logger.Named("crm"), metrics), leadmetrics.EngineOptions{
		ConversationLimit: cfg.CRM.ConversationLimit,
		MessagePageSize:   cfg.CRM.MessagePageSize,
		BatchSize:         cfg.CRM.BatchSize,
	}, logger.Named("leadmetrics"))
	snapshotCache := cache.NewSnapshotCache(snapshots, clock, leadmetrics.EmptyBundle, logger.Named("cache"), metrics)
	metricsService := leadmetrics.NewService(clientStore, engine, snapshotCache, clock, cfg.Snapshot.TTL, logger.Named("leadmetrics"))
	reportService := report.NewService(aggregateStore)

	// --- Handlers ---
	trackHandlers := handlers.NewTrackHandlers(eventStore, clock, logger, metrics)
	trafficHandlers := handlers.NewTrafficHandlers(reportService, clock, logger)
	metricsHandlers := handlers.NewMetricsHandlers(metricsService, logger)
	rollupHandlers := handlers.NewRollupHandlers(aggregator, clock, logger)
	tokens := utils.NewTokenManager(cfg.Auth.JWTSecret, time.Hour)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.LoggerMiddleware(logger), middleware.CORSMiddleware(cfg.Server.FEOrigin))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	{
		// The tracking snippet runs on client websites and carries no credentials.
		api.POST("/track", trackHandlers.TrackEvent)

		protected := api.Group("/")
		protected.Use(middleware.AuthRequired(tokens, cfg.Auth.DefaultAPIKey, logger))
		{
			protected.POST("/rollup", rollupHandlers.TriggerRollup)

			clientGroup := protected.Group("/clients/:clientId", middleware.ClientScope())
			{
				clientGroup.GET("/metrics/crm", metricsHandlers.GetCRMMetrics)
				clientGroup.GET("/traffic/daily", trafficHandlers.GetDaily)
				clientGroup.GET("/traffic/summary", trafficHandlers.GetSummary)
				clientGroup.GET("/traffic/monthly", trafficHandlers.GetMonthly)
			}
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-quit:
	}
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exiting")
	return nil
}

// newSnapshotStore returns the snapshot backend named by snapshot.backend and a func that
// releases whatever connection it opened.
func newSnapshotStore(cfg *config.Config, dbClient *database.DBClient, logger *zap.Logger) (cache.SnapshotStore, func(), error) {
	if cfg.Snapshot.Backend != config.BackendRedis {
		return store.NewSnapshotStore(dbClient.DB), func() {}, nil
	}

	rdb, err := database.NewRedisClient(cfg.Redis, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize Redis: %w", err)
	}
	return store.NewRedisSnapshotStore(rdb), func() {
		if err := rdb.Close(); err != nil {
			logger.Error("error closing Redis connection", zap.Error(err))
		}
	}, nil
}
