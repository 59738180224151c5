// Command rollup runs the daily traffic rollup on a cron schedule, or once for a given date.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"clientpulse/api/config"
	"clientpulse/api/database"
	"clientpulse/api/observability"
	"clientpulse/api/rollup"
	"clientpulse/api/store"
	"clientpulse/api/utils"
)

var (
	runOnce = flag.Bool("run-once", false, "Run the rollup once and exit")
	date    = flag.String("date", "", "Date to roll up (YYYY-MM-DD). Defaults to today (UTC); the previous day is always included. Only used with --run-once")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	dbClient, err := database.NewPostgresDB(cfg.Postgres, logger)
	if err != nil {
		logger.Error("Failed to initialize PostgreSQL", zap.Error(err))
		return 1
	}
	defer dbClient.Close()

	chClient, err := database.NewClickHouseDB(cfg.ClickHouse, logger)
	if err != nil {
		logger.Error("Failed to initialize ClickHouse", zap.Error(err))
		return 1
	}
	defer chClient.Close()

	aggregator := rollup.NewAggregator(
		store.NewEventStore(chClient, logger),
		store.NewClientStore(dbClient.DB),
		store.NewAggregateStore(dbClient.DB),
		rollup.Options{Concurrency: cfg.Rollup.Concurrency, MaxRetries: cfg.Rollup.MaxRetries},
		logger.Named("rollup"),
		observability.NewMetrics(prometheus.NewRegistry()),
	)

	if *runOnce {
		day, err := utils.ParseDate(*date, time.Now())
		if err != nil {
			logger.Error("Invalid --date", zap.Error(err))
			return 1
		}
		if failed := runRollup(aggregator, day, logger); failed > 0 {
			logger.Error("Rollup finished with failed clients", zap.Int("failed", failed))
			return 1
		}
		return 0
	}

	c := cron.New(cron.WithLocation(time.UTC))
	_, err = c.AddFunc(cfg.Rollup.Schedule, func() {
		runRollup(aggregator, time.Now(), logger)
	})
	if err != nil {
		logger.Error("Failed to schedule rollup", zap.String("schedule", cfg.Rollup.Schedule), zap.Error(err))
		return 1
	}

	c.Start()
	logger.Info("Rollup scheduler started", zap.String("schedule", cfg.Rollup.Schedule))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down gracefully...")

	ctx := c.Stop()
	<-ctx.Done()
	logger.Info("Rollup scheduler stopped")
	return 0
}

// runRollup aggregates day and the day before it and returns the number of failed
// (client, day) pairs, counting a day whose client list could not be read as one failure.
func runRollup(aggregator *rollup.Aggregator, day time.Time, logger *zap.Logger) int {
	reports, err := aggregator.AggregateWithBackfill(context.Background(), day)
	failed := 0
	for _, r := range reports {
		failed += len(r.Failed)
	}
	if err != nil {
		logger.Error("Rollup aborted", zap.Error(err))
		failed++
	}
	return failed
}
