package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"liquidity-hunter/config"
	"liquidity-hunter/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	db, err := Connect(ctx, cfg.DSN())
	if err != nil {
		return nil, err
	}
	logging.DatabaseContext("connect", "").Info("Connected to PostgreSQL", "database", cfg.Database)
	return db, nil
}

// Connect opens a pool on a DSN or postgres:// URL
func Connect(ctx context.Context, dsn string) (*DB, error) {
	// Parse connection string
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	// Configure connection pool
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		logging.DatabaseContext("close", "").Debug("Database connection closed")
	}
}

// migrations are applied in order; every statement is idempotent
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS liquidity_signals (
		id VARCHAR(64) PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL,
		direction VARCHAR(10) NOT NULL,
		score DECIMAL(10, 4) NOT NULL,
		grade VARCHAR(4),
		breakdown JSONB,
		entry_price DECIMAL(20, 8) NOT NULL,
		stop_loss DECIMAL(20, 8) NOT NULL,
		take_profit DECIMAL(20, 8) NOT NULL,
		risk_reward DECIMAL(10, 4) NOT NULL,
		session VARCHAR(20),
		sweep_id VARCHAR(64),
		structure_id VARCHAR(64),
		reasoning TEXT,
		candle_time TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_liquidity_signals_symbol ON liquidity_signals(symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_liquidity_signals_created_at ON liquidity_signals(created_at)`,

	`CREATE TABLE IF NOT EXISTS liquidity_sweeps (
		id VARCHAR(64) PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL,
		pool_id VARCHAR(64) NOT NULL,
		pool_type VARCHAR(32) NOT NULL,
		pool_price DECIMAL(20, 8) NOT NULL,
		price DECIMAL(20, 8) NOT NULL,
		direction VARCHAR(8) NOT NULL,
		wick_ratio DECIMAL(10, 4) NOT NULL,
		rejection_strength DECIMAL(10, 4) NOT NULL,
		swept_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_liquidity_sweeps_symbol ON liquidity_sweeps(symbol, swept_at)`,
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log := logging.DatabaseContext("migrate", "")
	log.Info("Running database migrations", "count", len(migrations))

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	log.Info("Database migrations completed")
	return nil
}
