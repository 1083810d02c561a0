package storage

import (
	"context"
	"fmt"
	"time"
)

// DriftMetricRow is one append-only row of the drift_metrics table.
type DriftMetricRow struct {
	Date      time.Time
	Market    string
	Symbol    string
	Metric    string
	Value     float64
	Status    string
	Window    int
	RunID     string
	CreatedAt time.Time
}

// DriftMetricsWriter appends drift metric rows.
type DriftMetricsWriter struct {
	conn *Conn
}

// NewDriftMetricsWriter constructs a writer bound to conn.
func NewDriftMetricsWriter(conn *Conn) *DriftMetricsWriter {
	return &DriftMetricsWriter{conn: conn}
}

// Ensure bootstraps the drift_metrics table if absent.
func (w *DriftMetricsWriter) Ensure(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.conn.Timeout)
	defer cancel()
	_, err := w.conn.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS drift_metrics (
			date DATE NOT NULL,
			market TEXT NOT NULL,
			symbol TEXT NOT NULL,
			metric TEXT NOT NULL,
			value DOUBLE NOT NULL,
			status TEXT NOT NULL,
			window INTEGER NOT NULL,
			run_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("storage: ensure drift_metrics table: %w", err)
	}
	return nil
}

// Append inserts one row per metric; drift_metrics is append-only (spec
// §4.7 "one row per (metric, date, run_id)").
func (w *DriftMetricsWriter) Append(ctx context.Context, rows []DriftMetricRow) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, w.conn.Timeout)
	defer cancel()

	tx, err := w.conn.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin drift_metrics append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO drift_metrics (date, market, symbol, metric, value, status, window, run_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		return fmt.Errorf("storage: prepare drift_metrics append: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Date, r.Market, r.Symbol, r.Metric, r.Value, r.Status, r.Window, r.RunID, r.CreatedAt); err != nil {
			return fmt.Errorf("storage: insert drift_metrics row: %w", err)
		}
	}
	return tx.Commit()
}
