package symbol

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wxxb789/vprism-core/internal/model"
)

// TransformKind selects which of the two DSL transform forms a rule uses.
type TransformKind string

const (
	TransformTemplate    TransformKind = "template"
	TransformMapTemplate TransformKind = "map_template"
)

// Transform describes how a matched rule turns regex groups into the CORE
// segment of a canonical symbol (spec §4.1 "Rule DSL loading").
type Transform struct {
	Kind      TransformKind
	Template  string // e.g. "SH{code}" or "{mapped}{code}"
	Uppercase bool

	// map_template-only fields.
	Group           string
	Mapping         map[string]string
	CaseInsensitive bool // rule-file loading defaults this to true
	Default         string
}

// Rule is one entry of the symbol normalization rule set.
type Rule struct {
	ID          string
	Priority    int
	Pattern     string
	compiled    *regexp.Regexp
	Transform   Transform
	MarketScope map[model.Market]bool
	AssetScope  map[model.AssetKind]bool
	Prefix      string
	Suffix      string
}

// Compile validates the rule's regex and transform, preparing it for use.
// Must be called once per rule before evaluation (Engine.setRules does this
// for every rule on construction/reload).
func (r *Rule) Compile() error {
	if r.ID == "" {
		return fmt.Errorf("rule id must not be empty")
	}
	re, err := regexp.Compile("^(?:" + r.Pattern + ")$")
	if err != nil {
		return fmt.Errorf("rule %s: invalid pattern: %w", r.ID, err)
	}
	r.compiled = re
	if err := r.Transform.validate(re); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return nil
}

func (t Transform) validate(re *regexp.Regexp) error {
	names := map[string]bool{"match": true}
	for _, n := range re.SubexpNames() {
		if n != "" {
			names[n] = true
		}
	}
	switch t.Kind {
	case TransformTemplate:
		return checkFields(t.Template, names)
	case TransformMapTemplate:
		if t.Group == "" {
			return fmt.Errorf("map_template requires group")
		}
		if !names[t.Group] {
			return fmt.Errorf("map_template group %q is not a named capture group", t.Group)
		}
		fields := append(map2slice(names), "mapped")
		allowed := make(map[string]bool, len(fields))
		for _, f := range fields {
			allowed[f] = true
		}
		return checkFields(t.Template, allowed)
	default:
		return fmt.Errorf("unknown transform kind %q", t.Kind)
	}
}

func map2slice(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

var fieldRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

func checkFields(template string, allowed map[string]bool) error {
	for _, m := range fieldRe.FindAllStringSubmatch(template, -1) {
		if !allowed[m[1]] {
			return fmt.Errorf("unknown field reference {%s} in template %q", m[1], template)
		}
	}
	return nil
}

// appliesTo reports whether the rule's market/asset scope (if any) covers
// the request. Empty scope means "applies to everything".
func (r *Rule) appliesTo(market model.Market, asset model.AssetKind) bool {
	if len(r.MarketScope) > 0 && !r.MarketScope[market] {
		return false
	}
	if len(r.AssetScope) > 0 && !r.AssetScope[asset] {
		return false
	}
	return true
}

// match attempts the rule against raw, returning the rendered CORE segment
// and whether it matched.
func (r *Rule) match(raw string) (string, bool, error) {
	m := r.compiled.FindStringSubmatch(raw)
	if m == nil {
		return "", false, nil
	}
	groups := map[string]string{"match": raw}
	for i, name := range r.compiled.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		groups[name] = m[i]
	}

	core, err := r.Transform.render(groups)
	if err != nil {
		return "", false, err
	}
	core = r.Prefix + core + r.Suffix
	return core, true, nil
}

func (t Transform) render(groups map[string]string) (string, error) {
	switch t.Kind {
	case TransformTemplate:
		out := renderTemplate(t.Template, groups)
		if t.Uppercase {
			out = strings.ToUpper(out)
		}
		return out, nil
	case TransformMapTemplate:
		raw := groups[t.Group]
		mapped, ok := lookupMapping(t.Mapping, raw, t.CaseInsensitive)
		if !ok {
			if t.Default == "" {
				return "", fmt.Errorf("no mapping for group value %q and no default supplied", raw)
			}
			mapped = strings.ReplaceAll(t.Default, "{value}", raw)
		}
		groups2 := make(map[string]string, len(groups)+1)
		for k, v := range groups {
			groups2[k] = v
		}
		groups2["mapped"] = mapped
		out := renderTemplate(t.Template, groups2)
		if t.Uppercase {
			out = strings.ToUpper(out)
		}
		return out, nil
	default:
		return "", fmt.Errorf("unknown transform kind %q", t.Kind)
	}
}

func lookupMapping(mapping map[string]string, key string, caseInsensitive bool) (string, bool) {
	if !caseInsensitive {
		v, ok := mapping[key]
		return v, ok
	}
	for k, v := range mapping {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

func renderTemplate(template string, groups map[string]string) string {
	return fieldRe.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		return groups[name]
	})
}
