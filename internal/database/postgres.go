package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/v0idhrt/radar/internal/config"
)

// sessionSettings tune each pooled handle for read/write concurrency:
// asynchronous commit keeps writers from stalling on WAL flushes, and larger
// temp buffers keep sort/dedup scratch work in memory. Applied once per
// handle at creation, not per use.
var sessionSettings = []string{
	"SET synchronous_commit = off",
	"SET temp_buffers = '64MB'",
}

// NewConnFactory returns a factory that dials and configures one Postgres
// handle according to the database config.
func NewConnFactory(cfg config.DatabaseConfig, logger *logrus.Logger) ConnFactory {
	return func(ctx context.Context) (*pgx.Conn, error) {
		conn, err := pgx.Connect(ctx, cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}

		for _, setting := range sessionSettings {
			if _, err := conn.Exec(ctx, setting); err != nil {
				_ = conn.Close(ctx)
				return nil, fmt.Errorf("configure session (%s): %w", setting, err)
			}
		}

		logger.Debug("PostgreSQL connection established")
		return conn, nil
	}
}

// NewPostgresPool builds the bounded connection pool used by the store.
func NewPostgresPool(ctx context.Context, cfg config.DatabaseConfig, logger *logrus.Logger) (*ConnPool, error) {
	pool, err := NewConnPool(ctx, NewConnFactory(cfg, logger), cfg.PoolSize, cfg.PoolWait(), logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Successfully connected to PostgreSQL")
	return pool, nil
}
