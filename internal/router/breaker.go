package router

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// breakerFailureThreshold/recoveryTimeout/halfOpenMaxCalls fix the circuit
// breaker state machine from spec §4.3: CLOSED -> OPEN at 5 consecutive
// failures, OPEN -> HALF_OPEN after 60s, HALF_OPEN permits 3 probe calls.
const (
	breakerFailureThreshold = 5
	breakerRecoveryTimeout  = 60 * time.Second
	breakerHalfOpenCalls    = 3
)

// BreakerManager owns one gobreaker.CircuitBreaker per provider name.
// gobreaker's built-in HALF_OPEN semantics (MaxRequests probe calls, any
// failure reopens, MaxRequests consecutive successes closes) map directly
// onto the spec's state machine, so no hand-rolled breaker is needed here.
type BreakerManager struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerManager constructs an empty manager; breakers are created
// lazily on first use per provider name.
func NewBreakerManager() *BreakerManager {
	return &BreakerManager{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (m *BreakerManager) getOrCreate(name string) *gobreaker.CircuitBreaker {
	m.mu.RLock()
	b, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[name]; ok {
		return b
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: breakerHalfOpenCalls,
		Timeout:     breakerRecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
	}
	b = gobreaker.NewCircuitBreaker(settings)
	m.breakers[name] = b
	return b
}

// IsOpen reports whether the named provider's breaker currently rejects
// calls (spec step 2: "Filter out providers whose circuit breaker is
// currently OPEN").
func (m *BreakerManager) IsOpen(name string) bool {
	return m.getOrCreate(name).State() == gobreaker.StateOpen
}

// RecordSuccess/RecordFailure feed the breaker's state machine directly,
// used by the executor after measuring a provider call's outcome instead of
// wrapping the call itself in Execute — the executor needs the raw error to
// decide fallback continuation independent of the breaker's own error.
func (m *BreakerManager) RecordSuccess(name string) {
	b := m.getOrCreate(name)
	_, _ = b.Execute(func() (interface{}, error) { return nil, nil })
}

func (m *BreakerManager) RecordFailure(name string) {
	b := m.getOrCreate(name)
	_, _ = b.Execute(func() (interface{}, error) { return nil, errBreakerRecordedFailure })
}

var errBreakerRecordedFailure = breakerRecordedFailure{}

type breakerRecordedFailure struct{}

func (breakerRecordedFailure) Error() string { return "recorded failure" }
