package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func openTestConn(t *testing.T) *Conn {
	t.Helper()
	conn, err := Open(context.Background(), DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestAdjustmentsWriter_Upsert_OverwritesOnConflictKey(t *testing.T) {
	conn := openTestConn(t)
	w := NewAdjustmentsWriter(conn)
	require.NoError(t, w.Ensure(context.Background()))

	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	row := AdjustmentRow{
		Date: date, Market: "cn", SupplierSymbol: "600000",
		AdjFactorQFQ: decimal.RequireFromString("0.49"), AdjFactorHFQ: decimal.RequireFromString("1"),
		Version: "adj-v1:abc", BuildTime: time.Now(), SourceEventsHash: "abc",
	}
	require.NoError(t, w.Upsert(context.Background(), []AdjustmentRow{row}))

	row.AdjFactorQFQ = decimal.RequireFromString("0.5")
	require.NoError(t, w.Upsert(context.Background(), []AdjustmentRow{row}))

	var count int
	require.NoError(t, conn.DB.Get(&count, "SELECT COUNT(*) FROM adjustments WHERE market=? AND supplier_symbol=? AND date=?", "cn", "600000", date))
	require.Equal(t, 1, count)

	var qfq float64
	require.NoError(t, conn.DB.Get(&qfq, "SELECT adj_factor_qfq FROM adjustments WHERE market=? AND supplier_symbol=?", "cn", "600000"))
	require.InDelta(t, 0.5, qfq, 1e-9)
}

func TestDriftMetricsWriter_Append_IsAppendOnly(t *testing.T) {
	conn := openTestConn(t)
	w := NewDriftMetricsWriter(conn)
	require.NoError(t, w.Ensure(context.Background()))

	row := DriftMetricRow{
		Date: time.Now(), Market: "us", Symbol: "AAPL", Metric: "close_mean",
		Value: 11.0, Status: "OK", Window: 3, RunID: "run-1", CreatedAt: time.Now(),
	}
	require.NoError(t, w.Append(context.Background(), []DriftMetricRow{row, row}))

	var count int
	require.NoError(t, conn.DB.Get(&count, "SELECT COUNT(*) FROM drift_metrics"))
	require.Equal(t, 2, count)
}

func TestReconciliationWriter_WriteRunAndDiffs(t *testing.T) {
	conn := openTestConn(t)
	w := NewReconciliationWriter(conn)
	require.NoError(t, w.Ensure(context.Background()))

	now := time.Now()
	run := ReconciliationRunRow{
		RunID: "run-1", Market: "us", Start: now, End: now,
		PassCount: 1, WarnCount: 0, FailCount: 0, P95CloseBPDiff: 1.5, CreatedAt: now,
	}
	require.NoError(t, w.WriteRun(context.Background(), run))

	bp := 1.5
	diff := ReconciliationDiffRow{RunID: "run-1", Symbol: "AAPL", Date: now, CloseBPDiff: &bp, Status: "PASS"}
	require.NoError(t, w.WriteDiffs(context.Background(), []ReconciliationDiffRow{diff}))

	var runCount, diffCount int
	require.NoError(t, conn.DB.Get(&runCount, "SELECT COUNT(*) FROM reconciliation_runs"))
	require.NoError(t, conn.DB.Get(&diffCount, "SELECT COUNT(*) FROM reconciliation_diffs"))
	require.Equal(t, 1, runCount)
	require.Equal(t, 1, diffCount)
}

func TestSymbolMapWriter_InsertIgnore_KeepsFirstRowOnConflict(t *testing.T) {
	conn := openTestConn(t)
	w := NewSymbolMapWriter(conn)
	require.NoError(t, w.Ensure(context.Background()))

	first := SymbolMapRow{RawSymbol: "600000.SS", Market: "cn", AssetType: "stock", Canonical: "CN:STOCK:SH600000", RuleID: "cn_stock_yfinance"}
	require.NoError(t, w.InsertIgnore(context.Background(), first))

	second := first
	second.Canonical = "SHOULD_NOT_OVERWRITE"
	require.NoError(t, w.InsertIgnore(context.Background(), second))

	var canonical string
	require.NoError(t, conn.DB.Get(&canonical, "SELECT canonical FROM symbol_map WHERE raw_symbol=? AND market=? AND asset_type=?", "600000.SS", "cn", "stock"))
	require.Equal(t, "CN:STOCK:SH600000", canonical)
}
