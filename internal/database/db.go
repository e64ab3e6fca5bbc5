package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

// Config holds database configuration
type Config struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode"`
}

// NewDB creates a new database connection
func NewDB(cfg Config, log zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Info().Str("database", cfg.Database).Msg("connected to PostgreSQL")

	return &DB{Pool: pool, log: log}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.log.Info().Msg("database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.log.Info().Msg("running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			ticker VARCHAR(12) PRIMARY KEY,
			quantity DECIMAL(20, 6) NOT NULL,
			entry_price DECIMAL(20, 6) NOT NULL,
			entry_time TIMESTAMPTZ NOT NULL,
			stop_loss DECIMAL(20, 6) NOT NULL,
			take_profit DECIMAL(20, 6) NOT NULL,
			high_water_mark DECIMAL(20, 6) NOT NULL,
			trailing_price DECIMAL(20, 6) NOT NULL DEFAULT 0,
			current_price DECIMAL(20, 6) NOT NULL,
			price_at TIMESTAMPTZ,
			status VARCHAR(16) NOT NULL,
			signal_id VARCHAR(64),
			entry_order_id VARCHAR(64),
			exit_order_id VARCHAR(64),
			commission DECIMAL(20, 6) NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(64) PRIMARY KEY,
			broker_id VARCHAR(64),
			ticker VARCHAR(12) NOT NULL,
			side VARCHAR(4) NOT NULL,
			requested_qty DECIMAL(20, 6) NOT NULL,
			filled_qty DECIMAL(20, 6) NOT NULL DEFAULT 0,
			status VARCHAR(16) NOT NULL,
			filled_price DECIMAL(20, 6),
			commission DECIMAL(20, 6) NOT NULL DEFAULT 0,
			signal_id VARCHAR(64),
			created_at TIMESTAMPTZ NOT NULL,
			submitted_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		)`,

		`CREATE TABLE IF NOT EXISTS trade_records (
			id VARCHAR(64) PRIMARY KEY,
			ticker VARCHAR(12) NOT NULL,
			quantity DECIMAL(20, 6) NOT NULL,
			entry_price DECIMAL(20, 6) NOT NULL,
			entry_time TIMESTAMPTZ NOT NULL,
			exit_price DECIMAL(20, 6) NOT NULL,
			exit_time TIMESTAMPTZ NOT NULL,
			hold_seconds BIGINT NOT NULL,
			reason VARCHAR(24) NOT NULL,
			realized_pnl DECIMAL(20, 6) NOT NULL,
			realized_pnl_pct DECIMAL(10, 4) NOT NULL,
			commissions DECIMAL(20, 6) NOT NULL DEFAULT 0,
			capital_before DECIMAL(20, 6) NOT NULL,
			capital_after DECIMAL(20, 6) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS risk_events (
			id SERIAL PRIMARY KEY,
			event_type VARCHAR(32) NOT NULL,
			ticker VARCHAR(12),
			detail TEXT,
			value DECIMAL(20, 6),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS risk_state (
			session_date DATE PRIMARY KEY,
			session_start_equity DECIMAL(20, 6) NOT NULL,
			current_equity DECIMAL(20, 6) NOT NULL,
			consecutive_losses INT NOT NULL DEFAULT 0,
			breaker_state VARCHAR(16) NOT NULL,
			quarantined TEXT[] NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_trade_records_exit_time ON trade_records(exit_time)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_records_ticker ON trade_records(ticker)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_ticker ON orders(ticker)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_events_created ON risk_events(created_at)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.log.Info().Int("count", len(migrations)).Msg("migrations complete")
	return nil
}
