package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AdjustmentRow is one persisted row of the adjustments table, upserted by
// (market, supplier_symbol, date).
type AdjustmentRow struct {
	Date             time.Time
	Market           string
	SupplierSymbol   string
	AdjFactorQFQ     decimal.Decimal
	AdjFactorHFQ     decimal.Decimal
	Version          string
	BuildTime        time.Time
	SourceEventsHash string
}

// AdjustmentsWriter persists adjustment factor rows.
type AdjustmentsWriter struct {
	conn *Conn
}

// NewAdjustmentsWriter constructs a writer bound to conn.
func NewAdjustmentsWriter(conn *Conn) *AdjustmentsWriter {
	return &AdjustmentsWriter{conn: conn}
}

// Ensure bootstraps the adjustments table if absent.
func (w *AdjustmentsWriter) Ensure(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.conn.Timeout)
	defer cancel()
	_, err := w.conn.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS adjustments (
			market TEXT NOT NULL,
			supplier_symbol TEXT NOT NULL,
			date DATE NOT NULL,
			adj_factor_qfq DOUBLE NOT NULL,
			adj_factor_hfq DOUBLE NOT NULL,
			version TEXT NOT NULL,
			build_time TIMESTAMP NOT NULL,
			source_events_hash TEXT NOT NULL,
			PRIMARY KEY (market, supplier_symbol, date)
		)`)
	if err != nil {
		return fmt.Errorf("storage: ensure adjustments table: %w", err)
	}
	return nil
}

// Upsert writes rows, overwriting any existing row sharing the same
// (market, supplier_symbol, date) key (spec §4.7 "adjustments").
func (w *AdjustmentsWriter) Upsert(ctx context.Context, rows []AdjustmentRow) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, w.conn.Timeout)
	defer cancel()

	tx, err := w.conn.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin adjustments upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO adjustments (market, supplier_symbol, date, adj_factor_qfq, adj_factor_hfq, version, build_time, source_events_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (market, supplier_symbol, date) DO UPDATE SET
			adj_factor_qfq = excluded.adj_factor_qfq,
			adj_factor_hfq = excluded.adj_factor_hfq,
			version = excluded.version,
			build_time = excluded.build_time,
			source_events_hash = excluded.source_events_hash`)
	if err != nil {
		return fmt.Errorf("storage: prepare adjustments upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		qfq, _ := r.AdjFactorQFQ.Float64()
		hfq, _ := r.AdjFactorHFQ.Float64()
		if _, err := stmt.ExecContext(ctx, r.Market, r.SupplierSymbol, r.Date, qfq, hfq, r.Version, r.BuildTime, r.SourceEventsHash); err != nil {
			return fmt.Errorf("storage: upsert adjustment row: %w", err)
		}
	}
	return tx.Commit()
}
