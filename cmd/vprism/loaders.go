package main

import (
	"context"
	"math/rand"
	"time"

	"github.com/wxxb789/vprism-core/internal/dataservice"
	"github.com/wxxb789/vprism-core/internal/model"
	"github.com/wxxb789/vprism-core/internal/registry"
	"github.com/wxxb789/vprism-core/internal/router"
)

// cliRand returns a process-local RNG source for the reconciliation
// sampler. Production runs seed off wall-clock time; deterministic seeding
// belongs to tests via reconcile.WithRandomSampler directly.
func cliRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// serviceLoader adapts the data service façade to the narrower loader
// contracts drift and reconcile depend on (reconcile through
// pinnedServiceLoader), so CLI commands
// reuse the same router/cache/provider-fleet wiring as `data fetch`.
type serviceLoader struct {
	svc *dataservice.Service
}

func newServiceLoader(flags *globalFlags) *serviceLoader {
	reg := registry.New()
	rt := router.New(reg, router.NewBreakerManager())
	return &serviceLoader{svc: dataservice.New(rt, newCache(flags), nil)}
}

const driftLookbackDays = 400

// LoadPrices implements drift.PriceLoader.
func (l *serviceLoader) LoadPrices(ctx context.Context, symbol, market string) ([]model.DataPoint, error) {
	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -driftLookbackDays)
	m := model.Market(market)
	resp, err := l.svc.Fetch(ctx, model.Query{
		Asset:      model.AssetStock,
		Market:     &m,
		RawSymbols: []string{symbol},
		Timeframe:  model.Timeframe1d,
		Start:      &start,
		End:        &end,
	})
	if err != nil {
		return nil, err
	}
	return resp.Points, nil
}

// LoadSeries implements reconcile.SeriesLoader, pinned to a specific
// provider so the two reconciliation sources diverge (spec §4.9).
type pinnedServiceLoader struct {
	loader   *serviceLoader
	provider string
}

func (l *pinnedServiceLoader) LoadSeries(ctx context.Context, symbol, market string, start, end time.Time) ([]model.DataPoint, error) {
	m := model.Market(market)
	resp, err := l.loader.svc.Fetch(ctx, model.Query{
		Asset:      model.AssetStock,
		Market:     &m,
		Provider:   &l.provider,
		RawSymbols: []string{symbol},
		Timeframe:  model.Timeframe1d,
		Start:      &start,
		End:        &end,
	})
	if err != nil {
		return nil, err
	}
	return resp.Points, nil
}
