// File: internal/records/postgres.go
package records

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed schema/postgres.sql
var postgresSchema string

// NewPostgres wraps an existing pool and verifies the connection.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*DB, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return newDB(pgEngine{pgQuerier: pgQuerier{conn: pool}, pool: pool}, postgresSchema, logger), nil
}

// OpenPostgres creates a pgx pool for dsn.
func OpenPostgres(ctx context.Context, dsn string, maxConns int32, logger *zap.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	db, err := NewPostgres(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}
