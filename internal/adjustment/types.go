// Package adjustment implements the corporate-action adjustment engine:
// dividend/split merge, deterministic hfq/qfq factor computation, and
// content-addressed memoization (spec §4.6).
package adjustment

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DividendEvent is one cash dividend observation.
type DividendEvent struct {
	Symbol     string
	Market     string
	ExDate     time.Time
	PayDate    *time.Time
	CashAmount decimal.Decimal
	Currency   string
	Source     string
	Metadata   map[string]any
}

// SplitEvent is one share split/consolidation observation.
type SplitEvent struct {
	Symbol      string
	Market      string
	ExDate      time.Time
	Numerator   decimal.Decimal
	Denominator decimal.Decimal
	Source      string
	Metadata    map[string]any
}

// Ratio returns numerator/denominator.
func (s SplitEvent) Ratio() decimal.Decimal {
	return s.Numerator.Div(s.Denominator)
}

// CorporateActionSet is the immutable pair of event sequences for one
// (symbol, market).
type CorporateActionSet struct {
	Dividends []DividendEvent
	Splits    []SplitEvent
}

// mergeDividends collapses events sharing (symbol, market, ex_date): cash
// amounts sum, sources join, metadata carries merged_event_count.
func mergeDividends(events []DividendEvent) []DividendEvent {
	type key struct {
		symbol string
		market string
		date   string
	}
	groups := make(map[key][]DividendEvent)
	var order []key
	for _, e := range events {
		k := key{e.Symbol, e.Market, e.ExDate.Format("2006-01-02")}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], e)
	}

	out := make([]DividendEvent, 0, len(order))
	for _, k := range order {
		group := groups[k]
		merged := group[0]
		if len(group) > 1 {
			total := decimal.Zero
			sources := make([]string, 0, len(group))
			for _, g := range group {
				total = total.Add(g.CashAmount)
				if g.Source != "" {
					sources = append(sources, g.Source)
				}
			}
			merged.CashAmount = total
			merged.Source = joinSources(sources)
			merged.Metadata = mergeMetadata(group, len(group))
		}
		out = append(out, merged)
	}
	return out
}

func mergeSplits(events []SplitEvent) []SplitEvent {
	type key struct {
		symbol string
		market string
		date   string
	}
	groups := make(map[key][]SplitEvent)
	var order []key
	for _, e := range events {
		k := key{e.Symbol, e.Market, e.ExDate.Format("2006-01-02")}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], e)
	}

	out := make([]SplitEvent, 0, len(order))
	for _, k := range order {
		group := groups[k]
		merged := group[0]
		if len(group) > 1 {
			num := decimal.NewFromInt(1)
			den := decimal.NewFromInt(1)
			sources := make([]string, 0, len(group))
			for _, g := range group {
				num = num.Mul(g.Numerator)
				den = den.Mul(g.Denominator)
				if g.Source != "" {
					sources = append(sources, g.Source)
				}
			}
			merged.Numerator = num
			merged.Denominator = den
			merged.Source = joinSources(sources)
		}
		out = append(out, merged)
	}
	return out
}

func joinSources(sources []string) string {
	seen := make(map[string]bool, len(sources))
	var out []string
	for _, s := range sources {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	result := ""
	for i, s := range out {
		if i > 0 {
			result += ","
		}
		result += s
	}
	return result
}

func mergeMetadata(group []DividendEvent, count int) map[string]any {
	md := make(map[string]any)
	for _, g := range group {
		for k, v := range g.Metadata {
			md[k] = v
		}
	}
	md["merged_event_count"] = count
	return md
}

// Merge applies spec §3's merge rule to both event sequences, returning a
// new CorporateActionSet sorted ascending by ex_date.
func (s CorporateActionSet) Merge() CorporateActionSet {
	divs := append([]DividendEvent(nil), s.Dividends...)
	sort.SliceStable(divs, func(i, j int) bool { return divs[i].ExDate.Before(divs[j].ExDate) })
	splits := append([]SplitEvent(nil), s.Splits...)
	sort.SliceStable(splits, func(i, j int) bool { return splits[i].ExDate.Before(splits[j].ExDate) })

	return CorporateActionSet{
		Dividends: mergeDividends(divs),
		Splits:    mergeSplits(splits),
	}
}
