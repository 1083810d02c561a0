package symbol

import (
	"context"
	"testing"

	"github.com/wxxb789/vprism-core/internal/model"
)

func TestLoadRuleFile_YAML(t *testing.T) {
	doc := []byte(`
rules:
  - id: cn_stock_yfinance
    priority: 10
    pattern: '(?P<code>\d{6})\.(?P<suffix>SS|SH|SZ)'
    market_scope: ["cn"]
    asset_scope: ["stock"]
    transform:
      kind: map_template
      template: "{mapped}{code}"
      group: suffix
      mapping:
        SS: SH
        SH: SH
        SZ: SZ
`)
	rules, err := LoadRuleFile("rules.yaml", doc)
	if err != nil {
		t.Fatalf("LoadRuleFile: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rules))
	}

	eng, err := NewEngine(rules)
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
}

func TestLoadRuleFile_JSON(t *testing.T) {
	doc := []byte(`{
		"rules": [
			{
				"id": "generic",
				"priority": 100,
				"pattern": "[A-Za-z]{1,10}",
				"transform": {"kind": "template", "template": "{match}", "uppercase": true}
			}
		]
	}`)
	rules, err := LoadRuleFile("rules.json", doc)
	if err != nil {
		t.Fatalf("LoadRuleFile: %v", err)
	}
	eng, err := NewEngine(rules)
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
}

func TestLoadRuleFile_UnsupportedExtension(t *testing.T) {
	_, err := LoadRuleFile("rules.toml", []byte("rules=[]"))
	if err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestLoadRuleFile_EmptyRulesRejected(t *testing.T) {
	_, err := LoadRuleFile("rules.yaml", []byte("rules: []"))
	if err == nil {
		t.Fatal("expected error for empty rules list")
	}
}

func TestLoadRuleFile_MissingIDRejected(t *testing.T) {
	doc := []byte(`
rules:
  - priority: 1
    pattern: ".*"
    transform:
      kind: template
      template: "{match}"
`)
	_, err := LoadRuleFile("rules.yaml", doc)
	if err == nil {
		t.Fatal("expected error for rule entry missing id")
	}
}

func TestTransformEntry_CaseInsensitiveDefaultsTrueUnlessExplicit(t *testing.T) {
	falseVal := false
	e := transformEntry{Kind: "map_template", Group: "g", Template: "{mapped}", CaseInsensitive: &falseVal}
	tr, err := e.toTransform()
	if err != nil {
		t.Fatalf("toTransform: %v", err)
	}
	if tr.CaseInsensitive {
		t.Error("expected explicit false to be honored")
	}

	e2 := transformEntry{Kind: "map_template", Group: "g", Template: "{mapped}"}
	tr2, err := e2.toTransform()
	if err != nil {
		t.Fatalf("toTransform: %v", err)
	}
	if !tr2.CaseInsensitive {
		t.Error("expected absent case_insensitive to default to true")
	}
}
