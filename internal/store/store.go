// Package store opens the book repository for the configured driver.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bookservice/internal/book"
	"bookservice/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

const pingTimeout = 2 * time.Second

// Open connects to the database selected by cfg.Driver and makes sure the
// books table exists. The returned func releases the connection.
func Open(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (book.Repository, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return openPostgres(ctx, cfg, logger)
	case config.DriverSQLite:
		return openSQLite(ctx, cfg, logger)
	default:
		return nil, nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (book.Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("create db pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database (%s): %w", config.RedactDSN(cfg.DSN), err)
	}

	repo := book.NewPostgresRepo(pool, cfg.Timeout)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	logger.Info("database connection OK", "driver", cfg.Driver, "dsn", config.RedactDSN(cfg.DSN))
	return repo, pool.Close, nil
}

func openSQLite(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (book.Repository, func(), error) {
	repo, err := book.OpenSQLite(ctx, cfg.SQLitePath, cfg.Timeout)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("database connection OK", "driver", cfg.Driver, "path", cfg.SQLitePath)
	return repo, func() {
		if err := repo.Close(); err != nil {
			logger.Error("close sqlite", "error", err)
		}
	}, nil
}
