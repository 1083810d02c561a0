// Package symbol implements the symbol normalization engine: rule DSL,
// priority evaluator, LRU cache, and reload/persistence hooks (spec §4.1).
package symbol

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	vperrors "github.com/wxxb789/vprism-core/internal/errors"
	"github.com/wxxb789/vprism-core/internal/model"
	"github.com/wxxb789/vprism-core/internal/rngclock"
)

// cacheKey is the LRU key: (raw, market, asset).
type cacheKey struct {
	raw    string
	market model.Market
	asset  model.AssetKind
}

// PersistenceHook records newly-resolved (non cache-hit) normalizations,
// per spec §4.1 "Persistence hook". Insert-or-ignore semantics on
// (raw, market, asset) are the writer's responsibility.
type PersistenceHook interface {
	RecordSymbol(ctx context.Context, canonical model.CanonicalSymbol, providerHint string, createdAt time.Time) error
}

// Metrics snapshots the engine's counters (spec §4.1 "Metrics exposed").
type Metrics struct {
	TotalRequests int64
	CacheHits     int64
	CacheMisses   int64
	HitRate       float64
	Unresolved    int64
	RuleUsage     map[string]int64
}

// Engine is the symbol normalization engine. Safe for concurrent use.
type Engine struct {
	mu    sync.RWMutex
	rules []*Rule // sorted by (priority asc, id asc)
	cache *lru.Cache[cacheKey, model.CanonicalSymbol]

	cacheSize int
	clock     rngclock.Clock
	hook      PersistenceHook

	// counters
	totalRequests int64
	cacheHits     int64
	cacheMisses   int64
	unresolved    int64
	ruleUsage     map[string]int64
}

// Option configures a new Engine.
type Option func(*Engine)

// WithCacheSize overrides the default LRU bound of 10,000.
func WithCacheSize(n int) Option { return func(e *Engine) { e.cacheSize = n } }

// WithClock injects a clock for persistence timestamps.
func WithClock(c rngclock.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithPersistenceHook enables the persistence side-effect on resolve.
func WithPersistenceHook(h PersistenceHook) Option { return func(e *Engine) { e.hook = h } }

// NewEngine constructs an Engine from an initial rule set.
func NewEngine(rules []*Rule, opts ...Option) (*Engine, error) {
	e := &Engine{cacheSize: 10000, clock: rngclock.RealClock{}, ruleUsage: map[string]int64{}}
	for _, o := range opts {
		o(e)
	}
	if err := e.setRules(rules); err != nil {
		return nil, err
	}
	c, err := lru.New[cacheKey, model.CanonicalSymbol](e.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("symbol engine: create cache: %w", err)
	}
	e.cache = c
	return e, nil
}

func (e *Engine) setRules(rules []*Rule) error {
	if len(rules) == 0 {
		return vperrors.New(vperrors.CodeValidation, "symbol", "rule set must not be empty", false, nil)
	}
	compiled := make([]*Rule, len(rules))
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if r.ID == "" {
			return vperrors.New(vperrors.CodeValidation, "symbol", "rule id must not be empty", false, nil)
		}
		if seen[r.ID] {
			return vperrors.New(vperrors.CodeValidation, "symbol", "duplicate rule id "+r.ID, false, nil)
		}
		seen[r.ID] = true
		rc := *r
		if rc.compiled == nil {
			if err := rc.Compile(); err != nil {
				return vperrors.New(vperrors.CodeValidation, "symbol", err.Error(), false, map[string]any{"rule_id": r.ID})
			}
		}
		compiled[i] = &rc
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		if compiled[i].Priority != compiled[j].Priority {
			return compiled[i].Priority < compiled[j].Priority
		}
		return compiled[i].ID < compiled[j].ID
	})
	e.rules = compiled
	return nil
}

// Normalize resolves one (raw, market, asset) tuple to a canonical symbol.
func (e *Engine) Normalize(ctx context.Context, raw string, market model.Market, asset model.AssetKind) (model.CanonicalSymbol, error) {
	raw = strings.TrimSpace(raw)

	key := cacheKey{raw: raw, market: market, asset: asset}

	e.mu.Lock()
	e.totalRequests++
	if cs, ok := e.cache.Get(key); ok {
		e.cacheHits++
		e.mu.Unlock()
		return cs, nil
	}
	e.cacheMisses++
	rules := e.rules
	e.mu.Unlock()

	var evaluated []string
	for _, r := range rules {
		if !r.appliesTo(market, asset) {
			continue
		}
		evaluated = append(evaluated, r.ID)
		core, matched, err := r.match(raw)
		if err != nil {
			return model.CanonicalSymbol{}, vperrors.New(vperrors.CodeValidation, "symbol", err.Error(), false, map[string]any{"rule_id": r.ID, "raw_symbol": raw})
		}
		if !matched {
			continue
		}

		canonical := fmt.Sprintf("%s:%s:%s", strings.ToUpper(string(market)), strings.ToUpper(string(asset)), core)
		cs := model.CanonicalSymbol{RawSymbol: raw, Canonical: canonical, Market: market, AssetType: asset, RuleID: r.ID}

		e.mu.Lock()
		e.ruleUsage[r.ID]++
		e.cache.Add(key, cs)
		e.mu.Unlock()

		if e.hook != nil {
			_ = e.hook.RecordSymbol(ctx, cs, "", e.clock.Now())
		}
		return cs, nil
	}

	e.mu.Lock()
	e.unresolved++
	e.mu.Unlock()

	return model.CanonicalSymbol{}, vperrors.New(vperrors.CodeValidation, "symbol",
		fmt.Sprintf("unable to resolve symbol %q", raw), false,
		map[string]any{
			"raw_symbol":      raw,
			"market":          string(market),
			"asset_type":      string(asset),
			"evaluated_rules": evaluated,
		})
}

// BatchResult partitions a batch normalize call into resolved and
// unresolved entries, preserving input order (spec §4.1 "Batch operation").
type BatchResult struct {
	Resolved   []model.CanonicalSymbol
	Unresolved []BatchFailure
}

// BatchFailure records one unresolved input and why.
type BatchFailure struct {
	RawSymbol string
	Err       error
}

// NormalizeBatch normalizes each raw symbol independently; partial success
// never raises.
func (e *Engine) NormalizeBatch(ctx context.Context, raws []string, market model.Market, asset model.AssetKind) BatchResult {
	var out BatchResult
	for _, raw := range raws {
		cs, err := e.Normalize(ctx, raw, market, asset)
		if err != nil {
			out.Unresolved = append(out.Unresolved, BatchFailure{RawSymbol: raw, Err: err})
			continue
		}
		out.Resolved = append(out.Resolved, cs)
	}
	return out
}

// Reload replaces the entire rule list and clears the cache and rule_usage
// stats. Malformed inputs are rejected without mutating state.
func (e *Engine) Reload(rules []*Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Validate against a throwaway copy before mutating engine state.
	prevRules := e.rules
	if err := e.setRules(rules); err != nil {
		e.rules = prevRules
		return err
	}
	e.cache.Purge()
	e.ruleUsage = map[string]int64{}
	return nil
}

// Metrics returns a snapshot of the engine's counters.
func (e *Engine) Metrics() Metrics {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var hitRate float64
	if e.totalRequests > 0 {
		hitRate = float64(e.cacheHits) / float64(e.totalRequests)
	}
	usage := make(map[string]int64, len(e.ruleUsage))
	for k, v := range e.ruleUsage {
		usage[k] = v
	}
	return Metrics{
		TotalRequests: e.totalRequests,
		CacheHits:     e.cacheHits,
		CacheMisses:   e.cacheMisses,
		HitRate:       hitRate,
		Unresolved:    e.unresolved,
		RuleUsage:     usage,
	}
}
