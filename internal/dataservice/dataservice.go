// Package dataservice is the façade orchestrating cache lookups, routing,
// and persistence into one read (spec §4.5). Query symbols reach the cache
// and router as given; this package does not normalize them.
package dataservice

import (
	"context"
	"sync"
	"time"

	vperrors "github.com/wxxb789/vprism-core/internal/errors"
	"github.com/wxxb789/vprism-core/internal/model"
)

const defaultLookbackDays = 30

// Router executes a query against the provider fleet.
type Router interface {
	Execute(ctx context.Context, q model.Query) (model.Response, error)
}

// Cache is the façade's cache dependency.
type Cache interface {
	Get(ctx context.Context, q model.Query) ([]model.DataPoint, bool, error)
	Set(ctx context.Context, q model.Query, points []model.DataPoint) error
}

// Repository is the embedded-store fallback consulted when the router
// fails outright (spec §4.5 step 3).
type Repository interface {
	FindPoints(ctx context.Context, q model.Query) ([]model.DataPoint, error)
	PersistPoints(ctx context.Context, q model.Query, points []model.DataPoint) error
}

// Service is the data service façade.
type Service struct {
	router Router
	cache  Cache
	repo   Repository
	clock  func() time.Time
}

// New constructs a Service from its three collaborators.
func New(router Router, cache Cache, repo Repository) *Service {
	return &Service{router: router, cache: cache, repo: repo, clock: time.Now}
}

// WithClock overrides the time source used for default date windows and
// query-time measurement (tests only).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.clock = now
	return s
}

// DefaultWindow computes the [start, end] window when a query omits dates:
// end=today, start=end-30d (spec §4.5 step 1).
func (s *Service) DefaultWindow() (time.Time, time.Time) {
	end := s.clock().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -defaultLookbackDays)
	return start, end
}

// Fetch executes the full façade pipeline for one query.
func (s *Service) Fetch(ctx context.Context, q model.Query) (model.Response, error) {
	if q.Start == nil || q.End == nil {
		start, end := s.DefaultWindow()
		if q.Start == nil {
			q.Start = &start
		}
		if q.End == nil {
			q.End = &end
		}
	}
	if err := q.Validate(); err != nil {
		return model.Response{}, vperrors.New(vperrors.CodeValidation, "dataservice", err.Error(), false, nil)
	}

	if points, hit, err := s.cache.Get(ctx, q); err == nil && hit {
		return model.Response{Points: points, CacheHit: true, DataSource: "cache"}, nil
	}

	queryStart := s.clock()
	resp, routerErr := s.router.Execute(ctx, q)
	if routerErr == nil {
		resp.CacheHit = false
		resp.DataSource = "provider"
		resp.QueryTime = s.clock().Sub(queryStart)
		if s.repo != nil {
			_ = s.repo.PersistPoints(ctx, q, resp.Points)
		}
		_ = s.cache.Set(ctx, q, resp.Points)
		return resp, nil
	}

	if s.repo != nil {
		points, err := s.repo.FindPoints(ctx, q)
		if err == nil && len(points) > 0 {
			return model.Response{
				Points:     points,
				CacheHit:   false,
				DataSource: "repository",
				QueryTime:  s.clock().Sub(queryStart),
			}, nil
		}
	}

	return model.Response{}, routerErr
}

// BatchItem is one entry of a batch query, keyed by a synthetic id.
type BatchItem struct {
	ID    string
	Query model.Query
}

// BatchResult is the outcome of one batch entry: exactly one of Response or
// Err is populated.
type BatchResult struct {
	Response model.Response
	Err      error
}

// FetchBatch executes every item concurrently; one failure never aborts
// its siblings (spec §4.5 "Batch query").
func (s *Service) FetchBatch(ctx context.Context, items []BatchItem) map[string]BatchResult {
	results := make(map[string]BatchResult, len(items))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, item := range items {
		wg.Add(1)
		go func(item BatchItem) {
			defer wg.Done()
			resp, err := s.Fetch(ctx, item.Query)
			mu.Lock()
			results[item.ID] = BatchResult{Response: resp, Err: err}
			mu.Unlock()
		}(item)
	}
	wg.Wait()
	return results
}
