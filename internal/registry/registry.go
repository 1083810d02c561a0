// Package registry is the process-wide provider registry: name -> provider
// plus parallel health/score/config maps, and capability-based provider
// discovery (spec §4.2 "Registry").
package registry

import (
	"context"
	"sort"
	"sync"

	vperrors "github.com/wxxb789/vprism-core/internal/errors"
	"github.com/wxxb789/vprism-core/internal/model"
	"github.com/wxxb789/vprism-core/internal/provider"
)

const (
	minScore = 0.1
	maxScore = 2.0

	successBaseDelta = 0.1
	failureDelta      = -0.2
	latencyDivisor    = 10000.0
)

// Config carries provider-specific routing settings attached at register
// time (priority, etc.); kept opaque to the registry beyond storage.
type Config struct {
	Priority int
}

// Registry is the process-wide provider directory. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]provider.Provider
	health    map[string]bool
	score     map[string]float64
	config    map[string]Config
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		providers: make(map[string]provider.Provider),
		health:    make(map[string]bool),
		score:     make(map[string]float64),
		config:    make(map[string]Config),
	}
}

// Register adds a provider under its Name(). Rejects a nil provider or an
// empty name.
func (r *Registry) Register(p provider.Provider, cfg Config) error {
	if p == nil {
		return vperrors.New(vperrors.CodeValidation, "registry", "provider must not be nil", false, nil)
	}
	name := p.Name()
	if name == "" {
		return vperrors.New(vperrors.CodeValidation, "registry", "provider name must not be empty", false, nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
	r.health[name] = true
	r.score[name] = 1.0
	r.config[name] = cfg
	return nil
}

// Unregister removes a provider and its health/score/config entries.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, name)
	delete(r.health, name)
	delete(r.score, name)
	delete(r.config, name)
}

// Candidate pairs a provider with its current score for ordered selection.
type Candidate struct {
	Provider provider.Provider
	Score    float64
	Config   Config
}

// FindCapable returns providers that are healthy and match the query's
// capability, in descending score order.
func (r *Registry) FindCapable(q model.Query) []Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Candidate, 0, len(r.providers))
	for name, p := range r.providers {
		if !r.health[name] {
			continue
		}
		if !p.CanHandleQuery(q) {
			continue
		}
		out = append(out, Candidate{Provider: p, Score: r.score[name], Config: r.config[name]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// UpdateHealth sets a provider's health flag.
func (r *Registry) UpdateHealth(name string, healthy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; ok {
		r.health[name] = healthy
	}
}

// UpdateScore applies the spec §4.2 score-delta formula: +0.1 - latency_ms/10000
// on success, -0.2 on failure; clamped to [0.1, 2.0].
func (r *Registry) UpdateScore(name string, success bool, latencyMs float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.score[name]
	if !ok {
		return
	}
	var delta float64
	if success {
		delta = successBaseDelta - latencyMs/latencyDivisor
	} else {
		delta = failureDelta
	}
	next := cur + delta
	if next < minScore {
		next = minScore
	}
	if next > maxScore {
		next = maxScore
	}
	r.score[name] = next
}

// Score returns a provider's current score.
func (r *Registry) Score(name string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.score[name]
}

// Health returns a provider's current health flag.
func (r *Registry) Health(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.health[name]
}

// CheckAllHealth awaits every provider's HealthCheck; a panic recovered from
// a provider's check is treated as unhealthy, matching "exceptions are
// treated as unhealthy" in spec §4.2.
func (r *Registry) CheckAllHealth(ctx context.Context) map[string]bool {
	r.mu.RLock()
	providers := make(map[string]provider.Provider, len(r.providers))
	for name, p := range r.providers {
		providers[name] = p
	}
	r.mu.RUnlock()

	results := make(map[string]bool, len(providers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, p := range providers {
		wg.Add(1)
		go func(name string, p provider.Provider) {
			defer wg.Done()
			healthy := safeHealthCheck(ctx, p)
			mu.Lock()
			results[name] = healthy
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()

	r.mu.Lock()
	for name, healthy := range results {
		if _, ok := r.providers[name]; ok {
			r.health[name] = healthy
		}
	}
	r.mu.Unlock()

	return results
}

func safeHealthCheck(ctx context.Context, p provider.Provider) (healthy bool) {
	defer func() {
		if recover() != nil {
			healthy = false
		}
	}()
	return p.HealthCheck(ctx)
}
