package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy describes an exponential backoff schedule. The same policy type is
// shared by the sync poller and the operation retry manager so both compute
// identical delays.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Factor         float64
	JitterFactor   float64
	RateLimitFloor time.Duration
}

// DefaultPolicy returns the schedule used for discrete game operations.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		Factor:         2,
		JitterFactor:   0.2,
		RateLimitFloor: 5 * time.Second,
	}
}

// Delay returns the non-jittered delay before retry number attempt
// (attempt 0 is the first retry). The result grows by Factor per attempt and
// is clamped to MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := p.Factor
	if factor <= 1 {
		factor = 2
	}
	d := float64(p.BaseDelay) * math.Pow(factor, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// JitteredDelay returns Delay(attempt) plus a random offset of up to
// JitterFactor times the base value, so synchronized clients do not retry in
// lockstep.
func (p Policy) JitteredDelay(attempt int) time.Duration {
	d := p.Delay(attempt)
	if p.JitterFactor <= 0 {
		return d
	}
	jitter := time.Duration(rand.Float64() * p.JitterFactor * float64(d))
	return d + jitter
}
