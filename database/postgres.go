package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"clientpulse/api/config"
)

const pingTimeout = 5 * time.Second

type DBClient struct {
	DB     *sql.DB
	logger *zap.Logger
}

// NewPostgresDB opens the Postgres pool that holds clients, daily aggregates and metrics snapshots.
func NewPostgresDB(cfg config.PostgresConfig, logger *zap.Logger) (*DBClient, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database (ping failed): %w", err)
	}

	logger.Info("connected to PostgreSQL")
	return &DBClient{DB: db, logger: logger}, nil
}

func (c *DBClient) Close() {
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.logger.Error("error closing PostgreSQL connection", zap.Error(err))
		} else {
			c.logger.Info("PostgreSQL connection closed")
		}
	}
}
