// Package router implements the fallback executor: capability-match
// selection, composite scoring, circuit breaker gating, and the
// execute-with-fallback loop (spec §4.3).
package router

import (
	"context"
	"sort"
	"time"

	vperrors "github.com/wxxb789/vprism-core/internal/errors"
	"github.com/wxxb789/vprism-core/internal/model"
	"github.com/wxxb789/vprism-core/internal/registry"
)

const defaultMaxFallbackAttempts = 3

// failureLatencyMs is the latency recorded against the registry score on a
// failed attempt, per spec §4.3 step "On any exception ... latency=5000".
const failureLatencyMs = 5000

// priorityRank is the configured provider_priority map from spec §4.3;
// unknown providers default to 4.
var priorityRank = map[string]int{
	"vprism_native": 1,
	"yfinance":      2,
	"alpha_vantage": 2,
	"akshare":       3,
}

// ProviderPriority returns the configured rank for a provider name; names
// without an entry rank 4.
func ProviderPriority(name string) int {
	if p, ok := priorityRank[name]; ok {
		return p
	}
	return 4
}

// PerformanceTracker supplies the success-rate/latency history a candidate's
// performance_score is computed from (spec §4.3 step 3). Implementations
// typically back this with the registry's running stats.
type PerformanceTracker interface {
	Stats(name string) (successRate float64, avgLatencyMs float64, hasRequests bool)
}

// Router selects and executes against a capable provider with fallback.
type Router struct {
	reg      *registry.Registry
	breakers *BreakerManager
	perf     PerformanceTracker

	maxFallbackAttempts int
	now                 func() time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithMaxFallbackAttempts overrides the default of 3.
func WithMaxFallbackAttempts(n int) Option { return func(r *Router) { r.maxFallbackAttempts = n } }

// WithPerformanceTracker supplies success-rate/latency history for scoring.
func WithPerformanceTracker(p PerformanceTracker) Option { return func(r *Router) { r.perf = p } }

// WithClock overrides the time source used to measure each provider call's
// latency.
func WithClock(now func() time.Time) Option { return func(r *Router) { r.now = now } }

// New constructs a Router bound to a registry and its breaker manager.
func New(reg *registry.Registry, breakers *BreakerManager, opts ...Option) *Router {
	r := &Router{
		reg:                 reg,
		breakers:            breakers,
		maxFallbackAttempts: defaultMaxFallbackAttempts,
		now:                 time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

type scoredCandidate struct {
	candidate registry.Candidate
	composite float64
}

// selectOne implements spec step 1-4: capable providers, breaker filter,
// composite scoring, pick the maximum.
func (r *Router) selectOne(q model.Query, exclude map[string]bool) (registry.Candidate, error) {
	candidates := r.reg.FindCapable(q)
	if len(candidates) == 0 {
		return registry.Candidate{}, noAvailableProviderErr(q, nil, "")
	}

	scored := make([]scoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		name := c.Provider.Name()
		if exclude[name] {
			continue
		}
		if r.breakers.IsOpen(name) {
			continue
		}
		scored = append(scored, scoredCandidate{candidate: c, composite: r.compositeScore(name, c, q)})
	}
	if len(scored) == 0 {
		return registry.Candidate{}, noAvailableProviderErr(q, nil, "")
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].composite > scored[j].composite })
	return scored[0].candidate, nil
}

func (r *Router) compositeScore(name string, c registry.Candidate, q model.Query) float64 {
	priorityScore := float64(5-ProviderPriority(name)) / 4.0

	performanceScore := 0.5
	if r.perf != nil {
		if successRate, avgLatencyMs, has := r.perf.Stats(name); has {
			lat := avgLatencyMs / 5000.0
			if lat > 0.5 {
				lat = 0.5
			}
			performanceScore = successRate * (1 - lat)
		}
	}

	pcap := c.Provider.Capability()
	capabilityBonus := 0.0
	if pcap.RealTime && q.Start == nil && q.End == nil {
		capabilityBonus += 0.2
	}
	switch {
	case pcap.DataDelaySeconds == 0:
		capabilityBonus += 0.3
	case pcap.DataDelaySeconds < 300:
		capabilityBonus += 0.1
	}
	symbolCount := len(q.CanonicalSymbols)
	if symbolCount == 0 {
		symbolCount = len(q.RawSymbols)
	}
	if pcap.MaxSymbolsPerReq > 0 && symbolCount > 0 {
		ratio := float64(symbolCount) / float64(pcap.MaxSymbolsPerReq)
		switch {
		case ratio <= 0.5:
			capabilityBonus += 0.2
		case ratio <= 0.8:
			capabilityBonus += 0.1
		}
	}
	if capabilityBonus > 1.0 {
		capabilityBonus = 1.0
	}

	return 0.7*priorityScore + 0.3*performanceScore + 0.1*capabilityBonus
}

// Execute runs the fallback loop from spec §4.3 "Execution with fallback".
func (r *Router) Execute(ctx context.Context, q model.Query) (model.Response, error) {
	attempted := make(map[string]bool)
	var lastErr error
	attemptedNames := make([]string, 0, r.maxFallbackAttempts)

	for attempt := 0; attempt < r.maxFallbackAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return model.Response{}, err
		}

		candidate, err := r.selectOne(q, attempted)
		if err != nil {
			if lastErr == nil {
				return model.Response{}, err
			}
			break
		}

		name := candidate.Provider.Name()
		attempted[name] = true
		attemptedNames = append(attemptedNames, name)

		start := r.now()
		resp, err := candidate.Provider.GetData(ctx, q)
		latencyMs := float64(r.now().Sub(start).Milliseconds())

		if err == nil {
			r.reg.UpdateScore(name, true, latencyMs)
			r.breakers.RecordSuccess(name)
			return resp, nil
		}

		r.reg.UpdateScore(name, false, failureLatencyMs)
		r.breakers.RecordFailure(name)
		r.reg.UpdateHealth(name, false)
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Response{}, ctxErr
		}
	}

	msg := ""
	if lastErr != nil {
		msg = lastErr.Error()
	}
	return model.Response{}, noAvailableProviderErr(q, attemptedNames, msg)
}

func noAvailableProviderErr(q model.Query, attempted []string, lastErrMsg string) error {
	ctx := map[string]any{
		"asset": string(q.Asset),
	}
	if len(attempted) > 0 {
		ctx["attempted_providers"] = attempted
	}
	if lastErrMsg != "" {
		ctx["last_error"] = lastErrMsg
	}
	return vperrors.New(vperrors.CodeNoProviderAvailable, "router", "no available provider for query", true, ctx)
}
