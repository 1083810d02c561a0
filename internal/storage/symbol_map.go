package storage

import (
	"context"
	"fmt"
)

// SymbolMapRow is one row of the symbol_map table.
type SymbolMapRow struct {
	RawSymbol string
	Market    string
	AssetType string
	Canonical string
	RuleID    string
}

// SymbolMapWriter persists resolved symbol mappings.
type SymbolMapWriter struct {
	conn *Conn
}

// NewSymbolMapWriter constructs a writer bound to conn.
func NewSymbolMapWriter(conn *Conn) *SymbolMapWriter {
	return &SymbolMapWriter{conn: conn}
}

// Ensure bootstraps the symbol_map table if absent.
func (w *SymbolMapWriter) Ensure(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.conn.Timeout)
	defer cancel()
	_, err := w.conn.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS symbol_map (
			raw_symbol TEXT NOT NULL,
			market TEXT NOT NULL,
			asset_type TEXT NOT NULL,
			canonical TEXT NOT NULL,
			rule_id TEXT NOT NULL,
			PRIMARY KEY (raw_symbol, market, asset_type)
		)`)
	if err != nil {
		return fmt.Errorf("storage: ensure symbol_map table: %w", err)
	}
	return nil
}

// InsertIgnore writes a row, leaving any existing (raw_symbol, market,
// asset_type) entry untouched (spec §4.7 "insert-or-ignore").
func (w *SymbolMapWriter) InsertIgnore(ctx context.Context, row SymbolMapRow) error {
	ctx, cancel := context.WithTimeout(ctx, w.conn.Timeout)
	defer cancel()
	_, err := w.conn.DB.ExecContext(ctx, `
		INSERT INTO symbol_map (raw_symbol, market, asset_type, canonical, rule_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (raw_symbol, market, asset_type) DO NOTHING`,
		row.RawSymbol, row.Market, row.AssetType, row.Canonical, row.RuleID)
	if err != nil {
		return fmt.Errorf("storage: insert-or-ignore symbol_map row: %w", err)
	}
	return nil
}
