package symbol

import "github.com/wxxb789/vprism-core/internal/model"

// DefaultRules returns the rule set the core ships with (spec §4.1
// "Default rule set"): CN A-share provider-suffix and prefix forms, bare
// 6-digit CN codes, CN open-fund forms, CN indexes, and a generic
// uppercase-alphabetic fallback.
func DefaultRules() []*Rule {
	rules := []*Rule{
		{
			ID:       "cn_stock_yfinance",
			Priority: 10,
			Pattern:  `(?P<code>\d{6})\.(?P<suffix>SS|SH|SZ)`,
			Transform: Transform{
				Kind:            TransformMapTemplate,
				Template:        "{mapped}{code}",
				Group:           "suffix",
				CaseInsensitive: true,
				Mapping: map[string]string{
					"SS": "SH",
					"SH": "SH",
					"SZ": "SZ",
				},
			},
			MarketScope: scope(model.MarketCN),
			AssetScope:  assetScope(model.AssetStock),
		},
		{
			ID:       "cn_stock_prefix",
			Priority: 20,
			Pattern:  `(?P<prefix>sh|sz)(?P<code>\d{6})`,
			Transform: Transform{
				Kind:            TransformMapTemplate,
				Template:        "{mapped}{code}",
				Group:           "prefix",
				CaseInsensitive: true,
				Mapping: map[string]string{
					"sh": "SH",
					"sz": "SZ",
				},
			},
			MarketScope: scope(model.MarketCN),
			AssetScope:  assetScope(model.AssetStock),
		},
		{
			ID:       "cn_stock_bare_sh",
			Priority: 30,
			Pattern:  `(?P<code>[69]\d{5})`,
			Transform: Transform{
				Kind:     TransformTemplate,
				Template: "SH{code}",
			},
			MarketScope: scope(model.MarketCN),
			AssetScope:  assetScope(model.AssetStock),
		},
		{
			ID:       "cn_stock_bare_sz",
			Priority: 31,
			Pattern:  `(?P<code>[023]\d{5})`,
			Transform: Transform{
				Kind:     TransformTemplate,
				Template: "SZ{code}",
			},
			MarketScope: scope(model.MarketCN),
			AssetScope:  assetScope(model.AssetStock),
		},
		{
			ID:       "cn_fund_suffix",
			Priority: 15,
			Pattern:  `(?P<code>\d{6})\.OF`,
			Transform: Transform{
				Kind:      TransformTemplate,
				Template:  "OF{code}",
				Uppercase: true,
			},
			MarketScope: scope(model.MarketCN),
			AssetScope:  assetScope(model.AssetFund),
		},
		{
			ID:       "cn_fund_prefix",
			Priority: 16,
			Pattern:  `(?i:of)(?P<code>\d{6})`,
			Transform: Transform{
				Kind:      TransformTemplate,
				Template:  "OF{code}",
				Uppercase: true,
			},
			MarketScope: scope(model.MarketCN),
			AssetScope:  assetScope(model.AssetFund),
		},
		{
			ID:       "cn_index",
			Priority: 12,
			Pattern:  `(?P<prefix>sh|sz)(?P<code>\d{6})`,
			Transform: Transform{
				Kind:            TransformMapTemplate,
				Template:        "{mapped}{code}",
				Group:           "prefix",
				CaseInsensitive: true,
				Mapping: map[string]string{
					"sh": "SH",
					"sz": "SZ",
				},
			},
			MarketScope: scope(model.MarketCN),
			AssetScope:  assetScope(model.AssetIndex),
		},
		{
			ID:       "generic_alpha_fallback",
			Priority: 1000,
			Pattern:  `[A-Za-z]{1,10}`,
			Transform: Transform{
				Kind:      TransformTemplate,
				Template:  "{match}",
				Uppercase: true,
			},
		},
	}
	for _, r := range rules {
		if err := r.Compile(); err != nil {
			panic("symbol: default rule set failed to compile: " + err.Error())
		}
	}
	return rules
}

func scope(markets ...model.Market) map[model.Market]bool {
	m := make(map[model.Market]bool, len(markets))
	for _, mk := range markets {
		m[mk] = true
	}
	return m
}

func assetScope(assets ...model.AssetKind) map[model.AssetKind]bool {
	m := make(map[model.AssetKind]bool, len(assets))
	for _, a := range assets {
		m[a] = true
	}
	return m
}
