package main

import (
	"context"
	"time"

	"github.com/wxxb789/vprism-core/internal/cache"
	"github.com/wxxb789/vprism-core/internal/model"
	"github.com/wxxb789/vprism-core/internal/quality/drift"
	"github.com/wxxb789/vprism-core/internal/quality/reconcile"
	"github.com/wxxb789/vprism-core/internal/storage"
	"github.com/wxxb789/vprism-core/internal/symbol"
)

// newCache builds the query cache, layering a RedisSlowPath underneath
// when --redis-addr is set (spec §4.4's "storage-backed contract").
func newCache(flags *globalFlags) *cache.Cache {
	if flags.redisAddr == "" {
		return cache.New()
	}
	return cache.New(cache.WithSlowPath(cache.NewRedisSlowPath(flags.redisAddr, flags.redisDB, flags.redisTTL)))
}

// openStorage opens the embedded store configured via --storage-dsn (or its
// --config equivalent). A blank DSN means no persistence was requested;
// commands must treat a nil *storage.Conn as "run without the writer/hook"
// per spec §4.1/§4.8/§4.9 ("if a writer/hook is configured").
func openStorage(ctx context.Context, flags *globalFlags) (*storage.Conn, error) {
	if flags.storageDSN == "" {
		return nil, nil
	}
	cfg := storage.Config{
		DSN:          flags.storageDSN,
		Threads:      flags.storageThreads,
		QueryTimeout: flags.storageQueryTimeout,
	}
	return storage.Open(ctx, cfg)
}

// driftMetricsAdapter bridges storage.DriftMetricsWriter to drift.Writer.
type driftMetricsAdapter struct {
	writer *storage.DriftMetricsWriter
}

func newDriftWriter(ctx context.Context, conn *storage.Conn) (drift.Writer, error) {
	w := storage.NewDriftMetricsWriter(conn)
	if err := w.Ensure(ctx); err != nil {
		return nil, err
	}
	return &driftMetricsAdapter{writer: w}, nil
}

func (a *driftMetricsAdapter) WriteDrift(ctx context.Context, rows []drift.Row) error {
	out := make([]storage.DriftMetricRow, len(rows))
	for i, r := range rows {
		out[i] = storage.DriftMetricRow{
			Date:      r.Date,
			Market:    r.Market,
			Symbol:    r.Symbol,
			Metric:    r.Metric,
			Value:     r.Value,
			Status:    string(r.Status),
			Window:    r.Window,
			RunID:     r.RunID,
			CreatedAt: r.CreatedAt,
		}
	}
	return a.writer.Append(ctx, out)
}

// reconciliationAdapter bridges storage.ReconciliationWriter to
// reconcile.RunWriter and reconcile.DiffWriter.
type reconciliationAdapter struct {
	writer *storage.ReconciliationWriter
}

func newReconciliationWriter(ctx context.Context, conn *storage.Conn) (*reconciliationAdapter, error) {
	w := storage.NewReconciliationWriter(conn)
	if err := w.Ensure(ctx); err != nil {
		return nil, err
	}
	return &reconciliationAdapter{writer: w}, nil
}

func (a *reconciliationAdapter) WriteRun(ctx context.Context, run reconcile.Run) error {
	return a.writer.WriteRun(ctx, storage.ReconciliationRunRow{
		RunID:          run.RunID,
		Market:         run.Market,
		Start:          run.Start,
		End:            run.End,
		PassCount:      run.PassCount,
		WarnCount:      run.WarnCount,
		FailCount:      run.FailCount,
		P95CloseBPDiff: run.P95CloseBPDiff,
		CreatedAt:      run.CreatedAt,
	})
}

func (a *reconciliationAdapter) WriteDiffs(ctx context.Context, runID string, samples []reconcile.Sample) error {
	out := make([]storage.ReconciliationDiffRow, len(samples))
	for i, s := range samples {
		out[i] = storage.ReconciliationDiffRow{
			RunID:       runID,
			Symbol:      s.Symbol,
			Date:        s.Date,
			CloseBPDiff: s.CloseBPDiff,
			VolumeRatio: s.VolumeRatio,
			Status:      string(s.Status),
		}
	}
	return a.writer.WriteDiffs(ctx, out)
}

// symbolMapAdapter bridges storage.SymbolMapWriter to symbol.PersistenceHook.
type symbolMapAdapter struct {
	writer *storage.SymbolMapWriter
}

func newSymbolMapHook(ctx context.Context, conn *storage.Conn) (symbol.PersistenceHook, error) {
	w := storage.NewSymbolMapWriter(conn)
	if err := w.Ensure(ctx); err != nil {
		return nil, err
	}
	return &symbolMapAdapter{writer: w}, nil
}

// RecordSymbol implements symbol.PersistenceHook with insert-or-ignore
// semantics keyed on (raw_symbol, market, asset_type); providerHint isn't
// part of the symbol_map schema and is not persisted.
func (a *symbolMapAdapter) RecordSymbol(ctx context.Context, canonical model.CanonicalSymbol, providerHint string, createdAt time.Time) error {
	return a.writer.InsertIgnore(ctx, storage.SymbolMapRow{
		RawSymbol: canonical.RawSymbol,
		Market:    string(canonical.Market),
		AssetType: string(canonical.AssetType),
		Canonical: canonical.Canonical,
		RuleID:    canonical.RuleID,
	})
}
