package symbol

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wxxb789/vprism-core/internal/model"
)

// ruleEntry mirrors the declarative configuration shape from spec §4.1
// "Rule DSL loading": id, priority, pattern, optional flags, transform,
// optional market_scope / asset_scope.
type ruleEntry struct {
	ID          string   `yaml:"id" json:"id"`
	Priority    int      `yaml:"priority" json:"priority"`
	Pattern     string   `yaml:"pattern" json:"pattern"`
	Flags       []string `yaml:"flags" json:"flags"`
	MarketScope []string `yaml:"market_scope" json:"market_scope"`
	AssetScope  []string `yaml:"asset_scope" json:"asset_scope"`
	Prefix      string   `yaml:"prefix" json:"prefix"`
	Suffix      string   `yaml:"suffix" json:"suffix"`

	Transform transformEntry `yaml:"transform" json:"transform"`
}

type transformEntry struct {
	Kind      string            `yaml:"kind" json:"kind"` // "template" | "map_template"
	Template  string            `yaml:"template" json:"template"`
	Uppercase bool              `yaml:"uppercase" json:"uppercase"`

	Group           string            `yaml:"group" json:"group"`
	Mapping         map[string]string `yaml:"mapping" json:"mapping"`
	CaseInsensitive *bool             `yaml:"case_insensitive" json:"case_insensitive"`
	Default         string            `yaml:"default" json:"default"`
}

// ruleFile is the top-level configuration document: `rules: [...]`.
type ruleFile struct {
	Rules []ruleEntry `yaml:"rules" json:"rules"`
}

// LoadRuleFile parses a rule configuration file. The file suffix selects
// the parser: .json -> encoding/json, .yaml/.yml -> yaml.v3.
func LoadRuleFile(path string, data []byte) ([]*Rule, error) {
	var doc ruleFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse rule file %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse rule file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported rule file extension: %s", path)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("rule file %s: rules list must not be empty", path)
	}
	return buildRules(doc.Rules)
}

func buildRules(entries []ruleEntry) ([]*Rule, error) {
	out := make([]*Rule, 0, len(entries))
	for _, e := range entries {
		r, err := e.toRule()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (e ruleEntry) toRule() (*Rule, error) {
	if e.ID == "" {
		return nil, fmt.Errorf("rule entry missing id")
	}
	pattern := applyFlags(e.Pattern, e.Flags)

	tr, err := e.Transform.toTransform()
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", e.ID, err)
	}

	r := &Rule{
		ID:        e.ID,
		Priority:  e.Priority,
		Pattern:   pattern,
		Transform: tr,
		Prefix:    e.Prefix,
		Suffix:    e.Suffix,
	}
	if len(e.MarketScope) > 0 {
		r.MarketScope = make(map[model.Market]bool, len(e.MarketScope))
		for _, m := range e.MarketScope {
			r.MarketScope[model.Market(strings.ToLower(m))] = true
		}
	}
	if len(e.AssetScope) > 0 {
		r.AssetScope = make(map[model.AssetKind]bool, len(e.AssetScope))
		for _, a := range e.AssetScope {
			r.AssetScope[model.AssetKind(strings.ToLower(a))] = true
		}
	}
	if err := r.Compile(); err != nil {
		return nil, err
	}
	return r, nil
}

// applyFlags prefixes the pattern with inline regex flag groups, e.g.
// "i" -> "(?i)pattern".
func applyFlags(pattern string, flags []string) string {
	if len(flags) == 0 {
		return pattern
	}
	var sb strings.Builder
	sb.WriteString("(?")
	for _, f := range flags {
		sb.WriteString(f)
	}
	sb.WriteString(")")
	sb.WriteString(pattern)
	return sb.String()
}

func (t transformEntry) toTransform() (Transform, error) {
	caseInsensitive := true
	if t.CaseInsensitive != nil {
		caseInsensitive = *t.CaseInsensitive
	}
	switch t.Kind {
	case "", string(TransformTemplate):
		return Transform{Kind: TransformTemplate, Template: t.Template, Uppercase: t.Uppercase}, nil
	case string(TransformMapTemplate):
		return Transform{
			Kind:            TransformMapTemplate,
			Template:        t.Template,
			Uppercase:       t.Uppercase,
			Group:           t.Group,
			Mapping:         t.Mapping,
			CaseInsensitive: caseInsensitive,
			Default:         t.Default,
		}, nil
	default:
		return Transform{}, fmt.Errorf("unknown transform kind %q", t.Kind)
	}
}
