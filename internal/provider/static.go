package provider

import (
	"context"
	"sync"
	"time"

	"github.com/wxxb789/vprism-core/internal/model"
)

// StaticProvider is the one reference in-process Provider this module
// ships: a fixed set of canned DataPoints served without any network call,
// for tests and local wiring that need a real Provider value rather than a
// package-local mock; in this module only its own package tests build one.
type StaticProvider struct {
	*Base

	mu      sync.Mutex
	points  []model.DataPoint
	err     error
	healthy bool
}

// NewStaticProvider constructs a StaticProvider that always returns points
// (or err, if set) from GetData.
func NewStaticProvider(name string, cap Capability, points []model.DataPoint) *StaticProvider {
	return &StaticProvider{
		Base:    NewBase(name, cap, Auth{Kind: AuthNone}, RateLimitConfig{}, 4),
		points:  points,
		healthy: true,
	}
}

// SetPoints replaces the canned response.
func (p *StaticProvider) SetPoints(points []model.DataPoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.points = points
	p.err = nil
}

// SetError makes subsequent GetData calls fail with err.
func (p *StaticProvider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// SetHealthy overrides the HealthCheck result.
func (p *StaticProvider) SetHealthy(healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = healthy
}

func (p *StaticProvider) GetData(ctx context.Context, q model.Query) (model.Response, error) {
	if err := p.Acquire(ctx); err != nil {
		return model.Response{}, err
	}
	defer p.Release()

	if err := p.CheckRateLimit(time.Now()); err != nil {
		return model.Response{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return model.Response{}, p.err
	}
	return model.Response{Points: p.points, DataSource: "provider", Source: &model.ProviderRef{Name: p.Name()}}, nil
}

func (p *StaticProvider) StreamData(ctx context.Context, q model.Query) (<-chan model.DataPoint, error) {
	return nil, ErrStreamingNotSupported
}

func (p *StaticProvider) HealthCheck(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthy
}
