package adjustment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	vperrors "github.com/wxxb789/vprism-core/internal/errors"
	"github.com/wxxb789/vprism-core/internal/model"
	"github.com/shopspring/decimal"
)

// algorithmVersion is embedded in every Version string (spec §4.6 step 6).
const algorithmVersion = "adj-v1"

// Row is one date's adjusted close series (spec §3 "Adjustment result").
type Row struct {
	Date         time.Time
	CloseRaw     decimal.Decimal
	CloseQFQ     decimal.Decimal
	CloseHFQ     decimal.Decimal
	AdjFactorQFQ decimal.Decimal
	AdjFactorHFQ decimal.Decimal
}

// Result is the full output of one adjustment computation.
type Result struct {
	Symbol          string
	Market          string
	Mode            model.AdjustmentMode
	Rows            []Row
	SourceEventsHash string
	Version         string
	ActionGapFlag   bool
}

// PriceLoader yields the ordered price window an adjustment is computed
// over.
type PriceLoader interface {
	LoadPrices(ctx context.Context, symbol, market string, start, end time.Time) ([]model.DataPoint, error)
}

// ActionLoader yields the corporate-action set for one (symbol, market).
type ActionLoader interface {
	LoadActions(ctx context.Context, symbol, market string) (CorporateActionSet, error)
}

// FactorRecord is one persisted row written by a FactorWriter (spec §4.6
// step 7).
type FactorRecord struct {
	Date             time.Time
	Market           string
	SupplierSymbol   string
	AdjFactorQFQ     decimal.Decimal
	AdjFactorHFQ     decimal.Decimal
	Version          string
	BuildTime        time.Time
	SourceEventsHash string
}

// FactorWriter persists computed factors with replace-on-key semantics
// keyed by (market, supplier_symbol, date).
type FactorWriter interface {
	WriteFactors(ctx context.Context, records []FactorRecord) error
}

// Engine computes corporate-action adjusted close series (spec §4.6).
type Engine struct {
	prices  PriceLoader
	actions ActionLoader
	writer  FactorWriter
	clock   func() time.Time

	mu    sync.Mutex
	memo  map[string]Result
}

// Option configures an Engine.
type Option func(*Engine)

// WithFactorWriter attaches the optional persistence collaborator.
func WithFactorWriter(w FactorWriter) Option { return func(e *Engine) { e.writer = w } }

// WithClock overrides the time source used for build_time and persistence
// (tests only).
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.clock = now } }

// New constructs an Engine from its price and action collaborators.
func New(prices PriceLoader, actions ActionLoader, opts ...Option) *Engine {
	e := &Engine{
		prices:  prices,
		actions: actions,
		clock:   time.Now,
		memo:    make(map[string]Result),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func normalizeDecimalString(d decimal.Decimal) string {
	s := d.String()
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// priceFingerprint hashes each point's (ISO timestamp, normalized close
// string) (spec §4.6 step 4).
func priceFingerprint(prices []model.DataPoint) string {
	h := sha256.New()
	for _, p := range prices {
		h.Write([]byte(p.Timestamp.UTC().Format(time.RFC3339)))
		h.Write([]byte{'|'})
		if p.Close != nil {
			h.Write([]byte(normalizeDecimalString(*p.Close)))
		}
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// sourceEventsHash canonically sorts and hashes the merged event set (spec
// §4.6 step 4).
func sourceEventsHash(set CorporateActionSet) string {
	divs := append([]DividendEvent(nil), set.Dividends...)
	sort.SliceStable(divs, func(i, j int) bool {
		if !divs[i].ExDate.Equal(divs[j].ExDate) {
			return divs[i].ExDate.Before(divs[j].ExDate)
		}
		if !divs[i].CashAmount.Equal(divs[j].CashAmount) {
			return divs[i].CashAmount.LessThan(divs[j].CashAmount)
		}
		if divs[i].Currency != divs[j].Currency {
			return divs[i].Currency < divs[j].Currency
		}
		return divs[i].Source < divs[j].Source
	})
	splits := append([]SplitEvent(nil), set.Splits...)
	sort.SliceStable(splits, func(i, j int) bool {
		if !splits[i].ExDate.Equal(splits[j].ExDate) {
			return splits[i].ExDate.Before(splits[j].ExDate)
		}
		if !splits[i].Numerator.Equal(splits[j].Numerator) {
			return splits[i].Numerator.LessThan(splits[j].Numerator)
		}
		if !splits[i].Denominator.Equal(splits[j].Denominator) {
			return splits[i].Denominator.LessThan(splits[j].Denominator)
		}
		return splits[i].Source < splits[j].Source
	})

	h := sha256.New()
	for _, d := range divs {
		fmt.Fprintf(h, "D|%s|%s|%s|%s\n",
			d.ExDate.UTC().Format(time.RFC3339), normalizeDecimalString(d.CashAmount), d.Currency, d.Source)
	}
	for _, s := range splits {
		fmt.Fprintf(h, "S|%s|%s|%s|%s\n",
			s.ExDate.UTC().Format(time.RFC3339), normalizeDecimalString(s.Numerator), normalizeDecimalString(s.Denominator), s.Source)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func cacheKey(symbol, market string, start, end time.Time, mode model.AdjustmentMode, priceCount int, priceFp, eventsHash string) string {
	return strings.Join([]string{
		symbol, market,
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339),
		string(mode), algorithmVersion,
		strconv.Itoa(priceCount), priceFp, eventsHash,
	}, "|")
}

type dailyEvent struct {
	cashDividend decimal.Decimal
	hasSplit     bool
	splitRatio   decimal.Decimal
}

// Compute runs the full §4.6 algorithm for one (symbol, market, window,
// mode), memoizing by content fingerprint.
func (e *Engine) Compute(ctx context.Context, symbol, market string, start, end time.Time, mode model.AdjustmentMode) (Result, error) {
	prices, err := e.prices.LoadPrices(ctx, symbol, market, start, end)
	if err != nil {
		return Result{}, err
	}
	if len(prices) == 0 {
		return Result{}, vperrors.New(vperrors.CodeValidation, "adjustment", "no prices in window", false, map[string]any{
			"symbol": symbol, "market": market,
		})
	}

	sorted := append([]model.DataPoint(nil), prices...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	actionSet := CorporateActionSet{}
	if e.actions != nil {
		actionSet, err = e.actions.LoadActions(ctx, symbol, market)
		if err != nil {
			return Result{}, err
		}
	}
	merged := actionSet.Merge()

	priceFp := priceFingerprint(sorted)
	eventsHash := sourceEventsHash(merged)
	key := cacheKey(symbol, market, start, end, mode, len(sorted), priceFp, eventsHash)

	e.mu.Lock()
	if cached, ok := e.memo[key]; ok {
		e.mu.Unlock()
		return cached, nil
	}
	e.mu.Unlock()

	result := e.computeFactors(symbol, market, mode, sorted, merged, eventsHash)

	e.mu.Lock()
	e.memo[key] = result
	e.mu.Unlock()

	if e.writer != nil {
		if err := e.persist(ctx, symbol, market, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (e *Engine) computeFactors(symbol, market string, mode model.AdjustmentMode, prices []model.DataPoint, set CorporateActionSet, eventsHash string) Result {
	byDate := make(map[string]dailyEvent)
	for _, d := range set.Dividends {
		key := d.ExDate.UTC().Format("2006-01-02")
		ev := byDate[key]
		ev.cashDividend = ev.cashDividend.Add(d.CashAmount)
		byDate[key] = ev
	}
	for _, s := range set.Splits {
		key := s.ExDate.UTC().Format("2006-01-02")
		ev := byDate[key]
		ev.hasSplit = true
		if ev.splitRatio.IsZero() {
			ev.splitRatio = s.Ratio()
		} else {
			ev.splitRatio = ev.splitRatio.Mul(s.Ratio())
		}
		byDate[key] = ev
	}

	hfqFactors := make([]decimal.Decimal, len(prices))
	actionGapFlag := false
	running := decimal.NewFromInt(1)

	for i, p := range prices {
		dateKey := p.Timestamp.UTC().Format("2006-01-02")
		if ev, ok := byDate[dateKey]; ok {
			if !ev.cashDividend.IsZero() {
				if i == 0 {
					actionGapFlag = true
				} else if prices[i-1].Close == nil {
					actionGapFlag = true
				} else {
					prevClose := *prices[i-1].Close
					denom := prevClose.Sub(ev.cashDividend)
					if !denom.IsZero() {
						running = running.Mul(prevClose.Div(denom))
					}
				}
			}
			if ev.hasSplit && !ev.splitRatio.IsZero() {
				running = running.Mul(ev.splitRatio)
			}
		}
		hfqFactors[i] = running
	}

	lastHfq := decimal.NewFromInt(1)
	if len(hfqFactors) > 0 {
		lastHfq = hfqFactors[len(hfqFactors)-1]
	}

	rows := make([]Row, len(prices))
	for i, p := range prices {
		closeRaw := decimal.Zero
		if p.Close != nil {
			closeRaw = *p.Close
		}
		hfq := hfqFactors[i]
		qfq := decimal.NewFromInt(1)
		if !lastHfq.IsZero() {
			qfq = hfq.Div(lastHfq)
		}
		rows[i] = Row{
			Date:         p.Timestamp,
			CloseRaw:     closeRaw,
			CloseQFQ:     closeRaw.Mul(qfq),
			CloseHFQ:     closeRaw.Mul(hfq),
			AdjFactorQFQ: qfq,
			AdjFactorHFQ: hfq,
		}
	}

	version := algorithmVersion + ":" + eventsHash[:12]
	return Result{
		Symbol:           symbol,
		Market:           market,
		Mode:             mode,
		Rows:             rows,
		SourceEventsHash: eventsHash,
		Version:          version,
		ActionGapFlag:    actionGapFlag,
	}
}

func (e *Engine) persist(ctx context.Context, symbol, market string, result Result) error {
	buildTime := e.clock()
	records := make([]FactorRecord, len(result.Rows))
	for i, r := range result.Rows {
		records[i] = FactorRecord{
			Date:             r.Date,
			Market:           market,
			SupplierSymbol:   symbol,
			AdjFactorQFQ:     r.AdjFactorQFQ,
			AdjFactorHFQ:     r.AdjFactorHFQ,
			Version:          result.Version,
			BuildTime:        buildTime,
			SourceEventsHash: result.SourceEventsHash,
		}
	}
	return e.writer.WriteFactors(ctx, records)
}
