package database

import (
	"context"
	"fmt"
	"time"

	"sgl-admin/internal/config"
	"sgl-admin/internal/docstore"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// NewPool creates a new PostgreSQL connection pool.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = time.Duration(cfg.MaxConnLifetime) * time.Second
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Int("max_connections", cfg.MaxConnections).
		Int("min_connections", cfg.MinConnections).
		Msg("creating database connection pool")

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().Msg("database connection pool created successfully")

	return pool, nil
}

// OpenStore opens the document store selected by cfg.Store.Backend.
// For the postgres backend the documents table is created if missing.
// The returned close function releases the store and any pool behind it.
func OpenStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (docstore.Store, func(), error) {
	opts := []docstore.Option{docstore.WithMaxAttempts(cfg.Store.MaxAttempts)}

	switch cfg.Store.Backend {
	case config.BackendMemory:
		logger.Warn().Msg("using in-memory document store, data will not survive a restart")
		store := docstore.NewMemoryStore(logger, opts...)
		return store, func() { store.Close() }, nil

	case config.BackendPostgres:
		pool, err := NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}

		if err := docstore.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}

		store := docstore.NewPostgresStore(pool, logger, opts...)
		return store, func() {
			store.Close()
			pool.Close()
		}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}
