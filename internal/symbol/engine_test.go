package symbol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	vperrors "github.com/wxxb789/vprism-core/internal/errors"
	"github.com/wxxb789/vprism-core/internal/model"
)

func TestEngine_Normalize_DefaultRuleSet_CNStockSuffix(t *testing.T) {
	eng, err := NewEngine(DefaultRules())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	cs, err := eng.Normalize(context.Background(), "600000.SS", model.MarketCN, model.AssetStock)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cs.Canonical != "CN:STOCK:SH600000" {
		t.Errorf("canonical = %q, want %q", cs.Canonical, "CN:STOCK:SH600000")
	}
	if cs.RuleID != "cn_stock_yfinance" {
		t.Errorf("rule_id = %q, want %q", cs.RuleID, "cn_stock_yfinance")
	}
}

func TestEngine_Normalize_DefaultRuleSet_PrefixForm(t *testing.T) {
	eng, err := NewEngine(DefaultRules())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	cs, err := eng.Normalize(context.Background(), "sh600519", model.MarketCN, model.AssetStock)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cs.Canonical != "CN:STOCK:SH600519" {
		t.Errorf("canonical = %q, want %q", cs.Canonical, "CN:STOCK:SH600519")
	}
}

func TestEngine_Normalize_DefaultRuleSet_BareCode(t *testing.T) {
	eng, err := NewEngine(DefaultRules())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	cases := []struct {
		raw  string
		want string
	}{
		{"600000", "CN:STOCK:SH600000"},
		{"000001", "CN:STOCK:SZ000001"},
		{"300750", "CN:STOCK:SZ300750"},
	}
	for _, c := range cases {
		cs, err := eng.Normalize(context.Background(), c.raw, model.MarketCN, model.AssetStock)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", c.raw, err)
		}
		if cs.Canonical != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.raw, cs.Canonical, c.want)
		}
	}
}

func TestEngine_Normalize_Unresolved_ReturnsDetailedError(t *testing.T) {
	eng, err := NewEngine(DefaultRules())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	_, err = eng.Normalize(context.Background(), "!!!", model.MarketCN, model.AssetBond)
	require.Error(t, err)

	de, ok := vperrors.As(err)
	require.True(t, ok, "expected a DomainError")
	require.Equal(t, "symbol", de.Layer)
	require.False(t, de.Retryable)
	require.Equal(t, "!!!", de.Context["raw_symbol"])
}

func TestEngine_Normalize_IsIdempotentAndCachesOnSecondCall(t *testing.T) {
	eng, err := NewEngine(DefaultRules())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	first, err := eng.Normalize(context.Background(), "600000.SS", model.MarketCN, model.AssetStock)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	second, err := eng.Normalize(context.Background(), "600000.SS", model.MarketCN, model.AssetStock)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if first != second {
		t.Errorf("expected idempotent result, got %+v then %+v", first, second)
	}

	m := eng.Metrics()
	if m.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", m.TotalRequests)
	}
	if m.CacheHits != 1 {
		t.Errorf("CacheHits = %d, want 1", m.CacheHits)
	}
	if m.CacheMisses != 1 {
		t.Errorf("CacheMisses = %d, want 1", m.CacheMisses)
	}
	if m.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", m.HitRate)
	}
	if m.RuleUsage["cn_stock_yfinance"] != 1 {
		t.Errorf("RuleUsage[cn_stock_yfinance] = %d, want 1", m.RuleUsage["cn_stock_yfinance"])
	}
}

func TestEngine_NormalizeBatch_PartialSuccess(t *testing.T) {
	eng, err := NewEngine(DefaultRules())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	res := eng.NormalizeBatch(context.Background(), []string{"600000.SS", "!!!", "sh600519"}, model.MarketCN, model.AssetStock)
	if len(res.Resolved) != 2 {
		t.Errorf("Resolved count = %d, want 2", len(res.Resolved))
	}
	if len(res.Unresolved) != 1 {
		t.Fatalf("Unresolved count = %d, want 1", len(res.Unresolved))
	}
	if res.Unresolved[0].RawSymbol != "!!!" {
		t.Errorf("Unresolved[0].RawSymbol = %q, want %q", res.Unresolved[0].RawSymbol, "!!!")
	}
}

func TestEngine_Reload_ClearsCacheAndRuleUsage(t *testing.T) {
	eng, err := NewEngine(DefaultRules())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if _, err := eng.Normalize(context.Background(), "600000.SS", model.MarketCN, model.AssetStock); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if m := eng.Metrics(); m.RuleUsage["cn_stock_yfinance"] != 1 {
		t.Fatalf("expected rule usage before reload")
	}

	if err := eng.Reload(DefaultRules()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	m := eng.Metrics()
	if len(m.RuleUsage) != 0 {
		t.Errorf("RuleUsage after reload = %+v, want empty", m.RuleUsage)
	}

	// A repeat lookup must recompute (cache was purged), not serve a stale hit.
	if _, err := eng.Normalize(context.Background(), "600000.SS", model.MarketCN, model.AssetStock); err != nil {
		t.Fatalf("Normalize after reload: %v", err)
	}
	m = eng.Metrics()
	if m.CacheMisses != 2 {
		t.Errorf("CacheMisses after reload = %d, want 2", m.CacheMisses)
	}
}

func TestEngine_Reload_RejectsEmptyRuleSetWithoutMutatingState(t *testing.T) {
	eng, err := NewEngine(DefaultRules())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	err = eng.Reload(nil)
	require.Error(t, err)

	// Engine must still serve with the previous rule set.
	cs, err := eng.Normalize(context.Background(), "600000.SS", model.MarketCN, model.AssetStock)
	require.NoError(t, err)
	require.Equal(t, "CN:STOCK:SH600000", cs.Canonical)
}

func TestEngine_Normalize_GenericFallback(t *testing.T) {
	eng, err := NewEngine(DefaultRules())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	cs, err := eng.Normalize(context.Background(), "aapl", model.MarketUS, model.AssetStock)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cs.Canonical != "US:STOCK:AAPL" {
		t.Errorf("canonical = %q, want %q", cs.Canonical, "US:STOCK:AAPL")
	}
	if cs.RuleID != "generic_alpha_fallback" {
		t.Errorf("rule_id = %q, want %q", cs.RuleID, "generic_alpha_fallback")
	}
}
