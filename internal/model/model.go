// Package model defines the canonical data types shared by every layer of
// the core: DataPoint, Query, CanonicalSymbol and their supporting enums.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetKind enumerates the instrument classes a Query can target.
type AssetKind string

const (
	AssetStock            AssetKind = "stock"
	AssetBond             AssetKind = "bond"
	AssetETF              AssetKind = "etf"
	AssetFund             AssetKind = "fund"
	AssetFutures          AssetKind = "futures"
	AssetOptions          AssetKind = "options"
	AssetForex            AssetKind = "forex"
	AssetCrypto           AssetKind = "crypto"
	AssetIndex            AssetKind = "index"
	AssetCommodity        AssetKind = "commodity"
	AssetConvertibleBond  AssetKind = "convertible_bond"
)

// Market enumerates the market tags a Query or symbol can carry.
type Market string

const (
	MarketCN     Market = "cn"
	MarketUS     Market = "us"
	MarketHK     Market = "hk"
	MarketEU     Market = "eu"
	MarketJP     Market = "jp"
	MarketUK     Market = "uk"
	MarketAU     Market = "au"
	MarketGlobal Market = "global"
)

// Timeframe enumerates the bar granularities supported.
type Timeframe string

const (
	TimeframeTick   Timeframe = "tick"
	Timeframe1m     Timeframe = "1m"
	Timeframe5m     Timeframe = "5m"
	Timeframe15m    Timeframe = "15m"
	Timeframe30m    Timeframe = "30m"
	Timeframe1h     Timeframe = "1h"
	Timeframe4h     Timeframe = "4h"
	Timeframe1d     Timeframe = "1d"
	Timeframe1w     Timeframe = "1w"
	Timeframe1M     Timeframe = "1M"
)

// AdjustmentMode selects the corporate-action adjustment applied to a series.
type AdjustmentMode string

const (
	AdjustmentNone     AdjustmentMode = "none"
	AdjustmentForward  AdjustmentMode = "forward"  // qfq
	AdjustmentBackward AdjustmentMode = "backward" // hfq
)

// DataPoint is one OHLCV observation for one instrument at one timestamp.
// Points are immutable once produced by an adapter.
type DataPoint struct {
	Symbol    string // canonical symbol
	Market    Market
	Timestamp time.Time

	Open   *decimal.Decimal
	High   *decimal.Decimal
	Low    *decimal.Decimal
	Close  *decimal.Decimal
	Volume *decimal.Decimal
	Amount *decimal.Decimal

	Provider string
	Extra    map[string]any
}

// Validate enforces the invariants from spec §3: high >= low, high >=
// max(open, close), low <= min(open, close), volume >= 0.
func (p DataPoint) Validate() error {
	if p.High != nil && p.Low != nil && p.High.LessThan(*p.Low) {
		return invariantErr("high < low")
	}
	if p.Open != nil && p.Close != nil && p.High != nil {
		maxOC := p.Open.Max(*p.Close)
		if p.High.LessThan(maxOC) {
			return invariantErr("high < max(open, close)")
		}
	}
	if p.Open != nil && p.Close != nil && p.Low != nil {
		minOC := p.Open.Min(*p.Close)
		if p.Low.GreaterThan(minOC) {
			return invariantErr("low > min(open, close)")
		}
	}
	if p.Volume != nil && p.Volume.IsNegative() {
		return invariantErr("volume < 0")
	}
	return nil
}

type invariantViolation string

func (e invariantViolation) Error() string { return "data point invariant violated: " + string(e) }

func invariantErr(msg string) error { return invariantViolation(msg) }

// Query is a declarative request for OHLCV data.
type Query struct {
	Asset          AssetKind
	Market         *Market
	Provider       *string
	Timeframe      Timeframe
	Start          *time.Time
	End            *time.Time
	RawSymbols     []string
	CanonicalSymbols []string
	Adjustment     AdjustmentMode
}

// Validate enforces start <= end and non-empty symbols for fetch operations.
func (q Query) Validate() error {
	if q.Start != nil && q.End != nil && q.Start.After(*q.End) {
		return invariantErr("start > end")
	}
	if len(q.RawSymbols) == 0 && len(q.CanonicalSymbols) == 0 {
		return invariantErr("symbols must be non-empty")
	}
	return nil
}

// CanonicalSymbol is the resolved identity of a raw symbol under a fixed
// rule set.
type CanonicalSymbol struct {
	RawSymbol string
	Canonical string
	Market    Market
	AssetType AssetKind
	RuleID    string
}

// Response is the uniform result of a data service read.
type Response struct {
	Points     []DataPoint
	CacheHit   bool
	DataSource string // "cache" | "provider" | "repository"
	QueryTime  time.Duration
	Source     *ProviderRef
}

// ProviderRef identifies which provider served a response.
type ProviderRef struct {
	Name string
}
