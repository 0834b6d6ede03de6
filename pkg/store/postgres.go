// Package store persists a coarse operational projection of research
// sessions for the HTTP server: session metadata and the ordered event log,
// so a client can poll a session or replay its stream after the fact. The
// core deepresearch engine itself never touches this package.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDB wraps the database connection pool
type PostgresDB struct {
	Pool *pgxpool.Pool
}

// PoolOptions controls pgxpool sizing, sourced from pkg/config.Config
// rather than hardcoded so an operator can tune it per deployment the same
// way every other adapter's knobs (rate limiter, timeouts) are tuned.
type PoolOptions struct {
	MaxConns   int32
	MinConns   int32
	MaxConnAge time.Duration
}

// NewPostgresDB creates a new PostgreSQL database connection pool sized per
// opts. A zero field in opts leaves pgxpool's own default for that setting
// in place rather than forcing a value.
func NewPostgresDB(ctx context.Context, databaseURL string, opts PoolOptions) (*PostgresDB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		config.MinConns = opts.MinConns
	}
	if opts.MaxConnAge > 0 {
		config.MaxConnLifetime = opts.MaxConnAge
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *PostgresDB) Close() {
	db.Pool.Close()
}
