package provider

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig describes a provider's rolling-window request limits
// (spec §4.2 "RateLimit") plus the retry shaping from spec §3's provider
// config table. PerMinute/PerHour of 0 means unlimited for that window.
// BackoffFactor/MaxRetries govern the exponential backoff HTTPProvider applies
// on 429/5xx responses (see RateLimitConfig.RetryDelay).
type RateLimitConfig struct {
	PerMinute     int
	PerHour       int
	BackoffFactor float64
	MaxRetries    int
}

// MinDelaySeconds derives the minimum spacing between requests implied by
// the tighter of the two configured windows.
func (c RateLimitConfig) MinDelaySeconds() float64 {
	best := 0.0
	if c.PerMinute > 0 {
		d := 60.0 / float64(c.PerMinute)
		if d > best {
			best = d
		}
	}
	if c.PerHour > 0 {
		d := 3600.0 / float64(c.PerHour)
		if d > best {
			best = d
		}
	}
	return best
}

// defaultBackoffFactor/defaultMaxRetries fill RateLimitConfig zero values,
// matching the teacher's `internal/data/rl` exponential-backoff defaults.
const (
	defaultBackoffFactor = 2.0
	defaultMaxRetries    = 3
)

func (c RateLimitConfig) backoffFactor() float64 {
	if c.BackoffFactor > 0 {
		return c.BackoffFactor
	}
	return defaultBackoffFactor
}

func (c RateLimitConfig) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return defaultMaxRetries
}

// RetryDelay returns the exponential backoff delay before retry attempt n
// (1-indexed): base second * backoff_factor^(n-1), per spec §3.
func (c RateLimitConfig) RetryDelay(attempt int) time.Duration {
	delay := time.Second
	factor := c.backoffFactor()
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * factor)
	}
	return delay
}

// newLimiter builds the per-second token-bucket shaper layered under the
// rolling-window check in CheckRateLimit. A PerMinute/PerHour limit derives
// an events-per-second rate; an unconfigured config shapes nothing
// (rate.Inf), leaving the rolling window as the sole gate. Burst is set to
// the configured window count itself so the token bucket never rejects a
// request the rolling window would still allow within the same instant —
// it only shapes the steady-state spacing between windows.
func (c RateLimitConfig) newLimiter() *rate.Limiter {
	perSecond := rate.Inf
	burst := 1
	switch {
	case c.PerMinute > 0:
		perSecond = rate.Limit(float64(c.PerMinute) / 60.0)
		burst = c.PerMinute
	case c.PerHour > 0:
		perSecond = rate.Limit(float64(c.PerHour) / 3600.0)
		burst = c.PerHour
	}
	return rate.NewLimiter(perSecond, burst)
}
