// Package provider defines the provider contract, capability matching, auth
// variants, and the base implementation shared by concrete market-data
// providers (spec §4.2 "Provider abstraction & registry").
package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	vperrors "github.com/wxxb789/vprism-core/internal/errors"
	"github.com/wxxb789/vprism-core/internal/model"
)

// Capability describes what a provider can serve: supported asset/market
// combinations, timeframes, and operating limits used by can_handle_query.
type Capability struct {
	Assets             map[model.AssetKind]bool
	Markets            map[model.Market]bool
	Timeframes         map[model.Timeframe]bool
	MaxSymbolsPerReq   int
	SupportsHistorical bool
	MaxHistoryDays     int
	RealTime           bool
	DataDelaySeconds   int
}

func (c Capability) allowsAsset(a model.AssetKind) bool {
	if len(c.Assets) == 0 {
		return true
	}
	return c.Assets[a]
}

func (c Capability) allowsMarket(m *model.Market) bool {
	if m == nil || len(c.Markets) == 0 {
		return true
	}
	return c.Markets[*m]
}

func (c Capability) allowsTimeframe(tf model.Timeframe) bool {
	if tf == "" || len(c.Timeframes) == 0 {
		return true
	}
	return c.Timeframes[tf]
}

// Provider is the contract every market-data source implements.
type Provider interface {
	Name() string
	Capability() Capability
	GetData(ctx context.Context, q model.Query) (model.Response, error)
	StreamData(ctx context.Context, q model.Query) (<-chan model.DataPoint, error)
	HealthCheck(ctx context.Context) bool
	CanHandleQuery(q model.Query) bool
}

// authenticator is implemented by providers with credential material;
// authenticate() is internal per spec §4.2 and not part of the public
// Provider contract.
type authenticator interface {
	authenticate(ctx context.Context) bool
}

// Base implements the rolling request-timestamp log, concurrency semaphore,
// and can_handle_query logic shared by every concrete provider.
type Base struct {
	name       string
	cap        Capability
	auth       Auth
	limits     RateLimitConfig
	concurrent int
	limiter    *rate.Limiter

	sem chan struct{}

	mu         sync.Mutex
	timestamps []time.Time
}

// NewBase constructs the shared provider base. concurrentRequests bounds
// in-flight outbound calls via a semaphore. limits.newLimiter() builds the
// per-second token-bucket shaper consulted by CheckRateLimit ahead of the
// rolling-window check.
func NewBase(name string, cap Capability, auth Auth, limits RateLimitConfig, concurrentRequests int) *Base {
	if concurrentRequests <= 0 {
		concurrentRequests = 4
	}
	return &Base{
		name:       name,
		cap:        cap,
		auth:       auth,
		limits:     limits,
		concurrent: concurrentRequests,
		sem:        make(chan struct{}, concurrentRequests),
		limiter:    limits.newLimiter(),
	}
}

func (b *Base) Name() string           { return b.name }
func (b *Base) Capability() Capability { return b.cap }

// Acquire blocks until a concurrency slot is free or ctx is cancelled.
func (b *Base) Acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a concurrency slot acquired via Acquire.
func (b *Base) Release() { <-b.sem }

// CanHandleQuery implements spec §4.2's can_handle_query delegation to
// capability: asset, market (if set), timeframe (if set), symbol count, and
// historical bounds/support.
func (b *Base) CanHandleQuery(q model.Query) bool {
	if !b.cap.allowsAsset(q.Asset) {
		return false
	}
	if !b.cap.allowsMarket(q.Market) {
		return false
	}
	if !b.cap.allowsTimeframe(q.Timeframe) {
		return false
	}
	symbolCount := len(q.CanonicalSymbols)
	if symbolCount == 0 {
		symbolCount = len(q.RawSymbols)
	}
	if b.cap.MaxSymbolsPerReq > 0 && symbolCount > b.cap.MaxSymbolsPerReq {
		return false
	}
	if q.Start != nil && q.End != nil {
		if !b.cap.SupportsHistorical {
			return false
		}
		if b.cap.MaxHistoryDays > 0 {
			oldest := time.Now().AddDate(0, 0, -b.cap.MaxHistoryDays)
			if q.Start.Before(oldest) {
				return false
			}
		}
	}
	return true
}

// CheckRateLimit enforces the per-minute/per-hour rolling window (spec
// §4.3 "Rate-limit check") layered under the per-second token-bucket
// shaper from spec §4.2: both are consulted before a request is allowed,
// with the rolling window remaining the authoritative contract and the
// token bucket only shaping burst spacing within it.
func (b *Base) CheckRateLimit(now time.Time) error {
	if !b.limiter.AllowN(now, 1) {
		return vperrors.New(vperrors.CodeRateLimit, "provider", fmt.Sprintf("%s: burst rate limit exceeded", b.name), true, map[string]any{"provider": b.name})
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := now.Add(-time.Hour)
	pruned := b.timestamps[:0]
	for _, ts := range b.timestamps {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}
	b.timestamps = pruned

	if b.limits.PerMinute > 0 {
		minuteCutoff := now.Add(-time.Minute)
		count := 0
		for _, ts := range b.timestamps {
			if ts.After(minuteCutoff) {
				count++
			}
		}
		if count >= b.limits.PerMinute {
			return vperrors.New(vperrors.CodeRateLimit, "provider", fmt.Sprintf("%s: per-minute rate limit exceeded", b.name), true, map[string]any{"provider": b.name})
		}
	}
	if b.limits.PerHour > 0 && len(b.timestamps) >= b.limits.PerHour {
		return vperrors.New(vperrors.CodeRateLimit, "provider", fmt.Sprintf("%s: per-hour rate limit exceeded", b.name), true, map[string]any{"provider": b.name})
	}

	b.timestamps = append(b.timestamps, now)
	return nil
}

// WaitRateLimit blocks until the token-bucket shaper admits a request or
// ctx is cancelled, for callers (HTTPProvider) that pace rather than
// reject. The rolling window in CheckRateLimit still applies afterward.
func (b *Base) WaitRateLimit(ctx context.Context) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return vperrors.New(vperrors.CodeRateLimit, "provider", fmt.Sprintf("%s: rate limit wait: %s", b.name, err.Error()), true, map[string]any{"provider": b.name})
	}
	return nil
}

// ErrStreamingNotSupported is returned by providers that never support
// stream_data, per spec §4.2.
var ErrStreamingNotSupported = vperrors.New(vperrors.CodeProvider, "provider", "streaming not supported", false, nil)
