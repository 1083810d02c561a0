// Package storage is the embedded analytical store backing the core's
// persistence contracts (spec §4.7): a DuckDB-via-sqlx connection factory
// plus writers for its tables (ReconciliationWriter covers both
// reconciliation tables).
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/duckdb/duckdb-go/v2" // DuckDB database/sql driver, registers as "duckdb"
)

// Config configures the embedded store connection.
type Config struct {
	DSN          string        `yaml:"dsn"`
	Threads      int           `yaml:"threads"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// DefaultConfig mirrors the single-threaded in-memory default of
// original_source's DuckDBFactoryConfig.
func DefaultConfig() Config {
	return Config{DSN: ":memory:", Threads: 1, QueryTimeout: 30 * time.Second}
}

// Conn wraps the opened *sqlx.DB and the timeout applied to every writer
// operation.
type Conn struct {
	DB      *sqlx.DB
	Timeout time.Duration
}

// Open establishes a DuckDB connection via sqlx and applies the configured
// PRAGMA threads tunable (spec §4.7 "factory ... with process-wide
// tunables like thread count").
func Open(ctx context.Context, cfg Config) (*Conn, error) {
	db, err := sqlx.Open("duckdb", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("storage: open duckdb: %w", err)
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = 1
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA threads=%d", threads)); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: set threads pragma: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping duckdb: %w", err)
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Conn{DB: db, Timeout: timeout}, nil
}

// Close releases the underlying connection.
func (c *Conn) Close() error {
	return c.DB.Close()
}
