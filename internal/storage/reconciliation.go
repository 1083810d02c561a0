package storage

import (
	"context"
	"fmt"
	"time"
)

// ReconciliationRunRow is one append-only row of the reconciliation_runs
// table.
type ReconciliationRunRow struct {
	RunID          string
	Market         string
	Start          time.Time
	End            time.Time
	PassCount      int
	WarnCount      int
	FailCount      int
	P95CloseBPDiff float64
	CreatedAt      time.Time
}

// ReconciliationDiffRow is one append-only row of the reconciliation_diffs
// table.
type ReconciliationDiffRow struct {
	RunID       string
	Symbol      string
	Date        time.Time
	CloseBPDiff *float64
	VolumeRatio *float64
	Status      string
}

// ReconciliationWriter persists reconciliation run and diff rows.
type ReconciliationWriter struct {
	conn *Conn
}

// NewReconciliationWriter constructs a writer bound to conn.
func NewReconciliationWriter(conn *Conn) *ReconciliationWriter {
	return &ReconciliationWriter{conn: conn}
}

// Ensure bootstraps both reconciliation tables if absent.
func (w *ReconciliationWriter) Ensure(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.conn.Timeout)
	defer cancel()
	if _, err := w.conn.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS reconciliation_runs (
			run_id TEXT NOT NULL PRIMARY KEY,
			market TEXT NOT NULL,
			start_date DATE NOT NULL,
			end_date DATE NOT NULL,
			pass_count INTEGER NOT NULL,
			warn_count INTEGER NOT NULL,
			fail_count INTEGER NOT NULL,
			p95_close_bp_diff DOUBLE NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`); err != nil {
		return fmt.Errorf("storage: ensure reconciliation_runs table: %w", err)
	}
	if _, err := w.conn.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS reconciliation_diffs (
			run_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			date DATE NOT NULL,
			close_bp_diff DOUBLE,
			volume_ratio DOUBLE,
			status TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("storage: ensure reconciliation_diffs table: %w", err)
	}
	return nil
}

// WriteRun appends one row to reconciliation_runs (spec §4.7
// "one row per run_id").
func (w *ReconciliationWriter) WriteRun(ctx context.Context, row ReconciliationRunRow) error {
	ctx, cancel := context.WithTimeout(ctx, w.conn.Timeout)
	defer cancel()
	_, err := w.conn.DB.ExecContext(ctx, `
		INSERT INTO reconciliation_runs (run_id, market, start_date, end_date, pass_count, warn_count, fail_count, p95_close_bp_diff, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		row.RunID, row.Market, row.Start, row.End, row.PassCount, row.WarnCount, row.FailCount, row.P95CloseBPDiff, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("storage: insert reconciliation_runs row: %w", err)
	}
	return nil
}

// WriteDiffs appends one row per sample to reconciliation_diffs (spec
// §4.7 "one row per (run_id, symbol, date)").
func (w *ReconciliationWriter) WriteDiffs(ctx context.Context, rows []ReconciliationDiffRow) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, w.conn.Timeout)
	defer cancel()

	tx, err := w.conn.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin reconciliation_diffs append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO reconciliation_diffs (run_id, symbol, date, close_bp_diff, volume_ratio, status)
		VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return fmt.Errorf("storage: prepare reconciliation_diffs append: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.RunID, r.Symbol, r.Date, r.CloseBPDiff, r.VolumeRatio, r.Status); err != nil {
			return fmt.Errorf("storage: insert reconciliation_diffs row: %w", err)
		}
	}
	return tx.Commit()
}
