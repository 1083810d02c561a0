package adjustment

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/wxxb789/vprism-core/internal/model"
)

func closePtr(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

type fakePriceLoader struct {
	points []model.DataPoint
	err    error
}

func (f *fakePriceLoader) LoadPrices(ctx context.Context, symbol, market string, start, end time.Time) ([]model.DataPoint, error) {
	return f.points, f.err
}

type fakeActionLoader struct {
	set CorporateActionSet
	err error
}

func (f *fakeActionLoader) LoadActions(ctx context.Context, symbol, market string) (CorporateActionSet, error) {
	return f.set, f.err
}

type fakeFactorWriter struct {
	records []FactorRecord
	calls   int
}

func (f *fakeFactorWriter) WriteFactors(ctx context.Context, records []FactorRecord) error {
	f.calls++
	f.records = records
	return nil
}

func dividendSplitPrices() []model.DataPoint {
	return []model.DataPoint{
		{Symbol: "600000", Timestamp: day("2024-01-01"), Close: closePtr("100")},
		{Symbol: "600000", Timestamp: day("2024-01-02"), Close: closePtr("98")},
		{Symbol: "600000", Timestamp: day("2024-01-03"), Close: closePtr("49")},
	}
}

func dividendSplitActions() CorporateActionSet {
	return CorporateActionSet{
		Dividends: []DividendEvent{
			{Symbol: "600000", Market: "cn", ExDate: day("2024-01-02"), CashAmount: decimal.RequireFromString("2")},
		},
		Splits: []SplitEvent{
			{Symbol: "600000", Market: "cn", ExDate: day("2024-01-03"), Numerator: decimal.RequireFromString("2"), Denominator: decimal.RequireFromString("1")},
		},
	}
}

func roundTo4(d decimal.Decimal) string {
	return d.StringFixed(4)
}

func TestEngine_Compute_DividendAndSplitMatchesSpecExample(t *testing.T) {
	prices := &fakePriceLoader{points: dividendSplitPrices()}
	actions := &fakeActionLoader{set: dividendSplitActions()}
	eng := New(prices, actions)

	result, err := eng.Compute(context.Background(), "600000", "cn", day("2024-01-01"), day("2024-01-03"), model.AdjustmentForward)
	require.NoError(t, err)
	require.Len(t, result.Rows, 3)

	wantHFQ := []string{"1.0000", "1.0204", "2.0408"}
	wantQFQ := []string{"0.4900", "0.5000", "1.0000"}
	wantCloseHFQ := []string{"100.0000", "100.0000", "100.0000"}
	wantCloseQFQ := []string{"49.0000", "49.0000", "49.0000"}

	for i, row := range result.Rows {
		require.Equal(t, wantHFQ[i], roundTo4(row.AdjFactorHFQ), "row %d hfq", i)
		require.Equal(t, wantQFQ[i], roundTo4(row.AdjFactorQFQ), "row %d qfq", i)
		require.Equal(t, wantCloseHFQ[i], roundTo4(row.CloseHFQ), "row %d close_hfq", i)
		require.Equal(t, wantCloseQFQ[i], roundTo4(row.CloseQFQ), "row %d close_qfq", i)
	}
	require.False(t, result.ActionGapFlag)
}

func TestEngine_Compute_EmptyPricesRaisesValidationError(t *testing.T) {
	eng := New(&fakePriceLoader{points: nil}, &fakeActionLoader{})
	_, err := eng.Compute(context.Background(), "600000", "cn", day("2024-01-01"), day("2024-01-03"), model.AdjustmentNone)
	require.Error(t, err)
}

func TestEngine_Compute_DividendWithoutPriorCloseSetsActionGapFlag(t *testing.T) {
	prices := &fakePriceLoader{points: []model.DataPoint{
		{Symbol: "X", Timestamp: day("2024-01-01"), Close: closePtr("10")},
	}}
	actions := &fakeActionLoader{set: CorporateActionSet{
		Dividends: []DividendEvent{
			{Symbol: "X", Market: "us", ExDate: day("2024-01-01"), CashAmount: decimal.RequireFromString("1")},
		},
	}}
	eng := New(prices, actions)
	result, err := eng.Compute(context.Background(), "X", "us", day("2024-01-01"), day("2024-01-01"), model.AdjustmentNone)
	require.NoError(t, err)
	require.True(t, result.ActionGapFlag)
	require.True(t, result.Rows[0].AdjFactorHFQ.Equal(decimal.NewFromInt(1)))
}

func TestEngine_Compute_MemoizesByContentFingerprint(t *testing.T) {
	prices := &fakePriceLoader{points: dividendSplitPrices()}
	actions := &fakeActionLoader{set: dividendSplitActions()}
	eng := New(prices, actions)

	r1, err := eng.Compute(context.Background(), "600000", "cn", day("2024-01-01"), day("2024-01-03"), model.AdjustmentForward)
	require.NoError(t, err)
	r2, err := eng.Compute(context.Background(), "600000", "cn", day("2024-01-01"), day("2024-01-03"), model.AdjustmentForward)
	require.NoError(t, err)
	require.Equal(t, r1.Version, r2.Version)
	require.Equal(t, r1.SourceEventsHash, r2.SourceEventsHash)
}

func TestEngine_Compute_VersionFormat(t *testing.T) {
	prices := &fakePriceLoader{points: dividendSplitPrices()}
	actions := &fakeActionLoader{set: dividendSplitActions()}
	eng := New(prices, actions)

	result, err := eng.Compute(context.Background(), "600000", "cn", day("2024-01-01"), day("2024-01-03"), model.AdjustmentForward)
	require.NoError(t, err)
	require.Equal(t, algorithmVersion+":"+result.SourceEventsHash[:12], result.Version)
}

func TestEngine_Compute_PersistsViaFactorWriterWithInjectedClock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	writer := &fakeFactorWriter{}
	prices := &fakePriceLoader{points: dividendSplitPrices()}
	actions := &fakeActionLoader{set: dividendSplitActions()}
	eng := New(prices, actions, WithFactorWriter(writer), WithClock(func() time.Time { return fixed }))

	_, err := eng.Compute(context.Background(), "600000", "cn", day("2024-01-01"), day("2024-01-03"), model.AdjustmentForward)
	require.NoError(t, err)
	require.Equal(t, 1, writer.calls)
	require.Len(t, writer.records, 3)
	for _, rec := range writer.records {
		require.True(t, rec.BuildTime.Equal(fixed))
		require.Equal(t, "600000", rec.SupplierSymbol)
		require.Equal(t, "cn", rec.Market)
	}
}

func TestSourceEventsHash_IsOrderIndependent(t *testing.T) {
	early := DividendEvent{Symbol: "600000", Market: "cn", ExDate: day("2024-01-02"), CashAmount: decimal.RequireFromString("2")}
	late := DividendEvent{Symbol: "600000", Market: "cn", ExDate: day("2024-01-05"), CashAmount: decimal.RequireFromString("1")}
	set := CorporateActionSet{Dividends: []DividendEvent{early, late}}
	reversed := CorporateActionSet{Dividends: []DividendEvent{late, early}}
	require.Equal(t, sourceEventsHash(set.Merge()), sourceEventsHash(reversed.Merge()))
}

func TestCorporateActionSet_Merge_CollapsesSameDayDividends(t *testing.T) {
	set := CorporateActionSet{
		Dividends: []DividendEvent{
			{Symbol: "X", Market: "us", ExDate: day("2024-01-01"), CashAmount: decimal.RequireFromString("1"), Source: "a"},
			{Symbol: "X", Market: "us", ExDate: day("2024-01-01"), CashAmount: decimal.RequireFromString("1.5"), Source: "b"},
		},
	}
	merged := set.Merge()
	require.Len(t, merged.Dividends, 1)
	require.True(t, merged.Dividends[0].CashAmount.Equal(decimal.RequireFromString("2.5")))
	require.Equal(t, 2, merged.Dividends[0].Metadata["merged_event_count"])
}

func TestCorporateActionSet_Merge_CollapsesSameDaySplitsMultiplicatively(t *testing.T) {
	set := CorporateActionSet{
		Splits: []SplitEvent{
			{Symbol: "X", Market: "us", ExDate: day("2024-01-01"), Numerator: decimal.RequireFromString("2"), Denominator: decimal.RequireFromString("1")},
			{Symbol: "X", Market: "us", ExDate: day("2024-01-01"), Numerator: decimal.RequireFromString("3"), Denominator: decimal.RequireFromString("1")},
		},
	}
	merged := set.Merge()
	require.Len(t, merged.Splits, 1)
	require.True(t, merged.Splits[0].Ratio().Equal(decimal.RequireFromString("6")))
}
