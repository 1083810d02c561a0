package symbol

import (
	"testing"

	"github.com/wxxb789/vprism-core/internal/model"
)

func TestRule_Compile_RejectsUnknownTemplateField(t *testing.T) {
	r := &Rule{
		ID:      "bad",
		Pattern: `(?P<code>\d+)`,
		Transform: Transform{
			Kind:     TransformTemplate,
			Template: "{missing}",
		},
	}
	if err := r.Compile(); err == nil {
		t.Fatal("expected Compile to reject unknown field reference")
	}
}

func TestRule_Compile_RejectsEmptyID(t *testing.T) {
	r := &Rule{Pattern: `.*`, Transform: Transform{Kind: TransformTemplate, Template: "{match}"}}
	if err := r.Compile(); err == nil {
		t.Fatal("expected Compile to reject empty id")
	}
}

func TestRule_Compile_MapTemplateRequiresGroup(t *testing.T) {
	r := &Rule{
		ID:      "map-rule",
		Pattern: `(?P<code>\d+)`,
		Transform: Transform{
			Kind:     TransformMapTemplate,
			Template: "{mapped}{code}",
		},
	}
	if err := r.Compile(); err == nil {
		t.Fatal("expected Compile to reject map_template with no group")
	}
}

func TestRule_Match_AppliesPrefixAndSuffix(t *testing.T) {
	r := &Rule{
		ID:      "with-affixes",
		Pattern: `(?P<code>\d{6})`,
		Prefix:  "X",
		Suffix:  "Y",
		Transform: Transform{
			Kind:     TransformTemplate,
			Template: "{code}",
		},
	}
	if err := r.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	core, matched, err := r.match("600000")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if !matched {
		t.Fatal("expected match")
	}
	if core != "X600000Y" {
		t.Errorf("core = %q, want %q", core, "X600000Y")
	}
}

func TestRule_Match_NoMatchReturnsFalse(t *testing.T) {
	r := &Rule{
		ID:        "digits-only",
		Pattern:   `\d+`,
		Transform: Transform{Kind: TransformTemplate, Template: "{match}"},
	}
	if err := r.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	_, matched, err := r.match("abc")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if matched {
		t.Fatal("expected no match for non-numeric input")
	}
}

func TestRule_AppliesTo_EmptyScopeAppliesToEverything(t *testing.T) {
	r := &Rule{ID: "any"}
	if !r.appliesTo(model.MarketUS, model.AssetCrypto) {
		t.Error("expected rule with empty scope to apply to every market/asset")
	}
}

func TestRule_AppliesTo_RespectsScope(t *testing.T) {
	r := &Rule{
		ID:          "cn-only",
		MarketScope: map[model.Market]bool{model.MarketCN: true},
	}
	if r.appliesTo(model.MarketUS, model.AssetStock) {
		t.Error("expected rule to not apply outside its market scope")
	}
	if !r.appliesTo(model.MarketCN, model.AssetStock) {
		t.Error("expected rule to apply within its market scope")
	}
}

func TestTransform_MapTemplate_CaseInsensitiveLookup(t *testing.T) {
	r := &Rule{
		ID:      "ci-map",
		Pattern: `(?P<ex>sh|sz)(?P<code>\d{6})`,
		Transform: Transform{
			Kind:            TransformMapTemplate,
			Template:        "{mapped}{code}",
			Group:           "ex",
			CaseInsensitive: true,
			Mapping:         map[string]string{"SH": "SH", "SZ": "SZ"},
		},
	}
	if err := r.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	core, matched, err := r.match("sh600000")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if !matched || core != "SH600000" {
		t.Errorf("core = %q matched=%v, want SH600000/true", core, matched)
	}
}

func TestTransform_MapTemplate_FallsBackToDefault(t *testing.T) {
	r := &Rule{
		ID:      "default-fallback",
		Pattern: `(?P<ex>[a-z]+)(?P<code>\d{6})`,
		Transform: Transform{
			Kind:     TransformMapTemplate,
			Template: "{mapped}{code}",
			Group:    "ex",
			Mapping:  map[string]string{"sh": "SH"},
			Default:  "UNKNOWN-{value}",
		},
	}
	if err := r.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	core, matched, err := r.match("zz600000")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if !matched || core != "UNKNOWN-zz600000" {
		t.Errorf("core = %q matched=%v, want UNKNOWN-zz600000/true", core, matched)
	}
}

func TestTransform_MapTemplate_NoMatchNoDefaultErrors(t *testing.T) {
	r := &Rule{
		ID:      "no-default",
		Pattern: `(?P<ex>[a-z]+)(?P<code>\d{6})`,
		Transform: Transform{
			Kind:     TransformMapTemplate,
			Template: "{mapped}{code}",
			Group:    "ex",
			Mapping:  map[string]string{"sh": "SH"},
		},
	}
	if err := r.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	_, _, err := r.match("zz600000")
	if err == nil {
		t.Fatal("expected error when group value has no mapping and no default")
	}
}
