package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wxxb789/vprism-core/internal/model"
	"github.com/wxxb789/vprism-core/internal/quality/drift"
	"github.com/wxxb789/vprism-core/internal/quality/reconcile"
	"github.com/wxxb789/vprism-core/internal/storage"
)

func openTestConn(t *testing.T) *storage.Conn {
	t.Helper()
	conn, err := storage.Open(context.Background(), storage.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestOpenStorage_BlankDSNReturnsNilConn(t *testing.T) {
	flags := &globalFlags{}
	conn, err := openStorage(context.Background(), flags)
	require.NoError(t, err)
	require.Nil(t, conn)
}

func TestOpenStorage_DSNOpensConn(t *testing.T) {
	flags := &globalFlags{storageDSN: ":memory:", storageThreads: 1, storageQueryTimeout: time.Second}
	conn, err := openStorage(context.Background(), flags)
	require.NoError(t, err)
	require.NotNil(t, conn)
	defer conn.Close()
}

func TestDriftMetricsAdapter_WriteDrift_PersistsRows(t *testing.T) {
	conn := openTestConn(t)
	writer, err := newDriftWriter(context.Background(), conn)
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	err = writer.WriteDrift(context.Background(), []drift.Row{
		{Date: now, Market: "cn", Symbol: "600000", Metric: "mean_close", Value: 1.5, Status: drift.StatusOK, Window: 20, RunID: "run-1", CreatedAt: now},
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, conn.DB.Get(&count, "SELECT COUNT(*) FROM drift_metrics WHERE run_id = ?", "run-1"))
	require.Equal(t, 1, count)
}

func TestReconciliationAdapter_WriteRunThenDiffs_Persists(t *testing.T) {
	conn := openTestConn(t)
	adapter, err := newReconciliationWriter(context.Background(), conn)
	require.NoError(t, err)

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	run := reconcile.Run{RunID: "run-1", Market: "us", Start: day, End: day, PassCount: 1, CreatedAt: day}
	require.NoError(t, adapter.WriteRun(context.Background(), run))

	diff := 1.5
	require.NoError(t, adapter.WriteDiffs(context.Background(), "run-1", []reconcile.Sample{
		{Symbol: "AAPL", Date: day, CloseBPDiff: &diff, Status: reconcile.StatusPass},
	}))

	var runCount, diffCount int
	require.NoError(t, conn.DB.Get(&runCount, "SELECT COUNT(*) FROM reconciliation_runs WHERE run_id = ?", "run-1"))
	require.Equal(t, 1, runCount)
	require.NoError(t, conn.DB.Get(&diffCount, "SELECT COUNT(*) FROM reconciliation_diffs WHERE run_id = ?", "run-1"))
	require.Equal(t, 1, diffCount)
}

func TestSymbolMapAdapter_RecordSymbol_InsertsIgnoringDuplicates(t *testing.T) {
	conn := openTestConn(t)
	hook, err := newSymbolMapHook(context.Background(), conn)
	require.NoError(t, err)

	cs := model.CanonicalSymbol{RawSymbol: "600000", Canonical: "600000.SH", Market: model.MarketCN, AssetType: model.AssetStock, RuleID: "cn-stock"}
	now := time.Now()
	require.NoError(t, hook.RecordSymbol(context.Background(), cs, "", now))
	require.NoError(t, hook.RecordSymbol(context.Background(), cs, "", now))

	var count int
	require.NoError(t, conn.DB.Get(&count, "SELECT COUNT(*) FROM symbol_map WHERE raw_symbol = ?", "600000"))
	require.Equal(t, 1, count)
}

func TestNewCache_WithoutRedisAddr_ReturnsUsableCache(t *testing.T) {
	c := newCache(&globalFlags{})
	require.NotNil(t, c)

	q := model.Query{Asset: model.AssetStock, RawSymbols: []string{"600000"}}
	_, found, err := c.Get(context.Background(), q)
	require.NoError(t, err)
	require.False(t, found)
}
