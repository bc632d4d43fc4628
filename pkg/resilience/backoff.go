package resilience

import (
	"math/rand/v2"
	"time"
)

// BackoffStrategy decides how long to wait before retry number attempt (0-indexed)
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff doubles (or scales by Multiplier) from BaseDelay up to
// MaxDelay, then spreads the result by ±Jitter so concurrent callers do not
// retry in lockstep.
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     float64
}

// TokenBackoff is used between Daraja OAuth attempts. A storefront request is
// waiting on the token, so delays stay short: ~200ms, ~400ms, then ~800ms.
func TokenBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   800 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// CommitBackoff spaces retries of a store write that records a created
// order. The key lock is held while waiting.
func CommitBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   200 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     0.2,
	}
}

func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(eb.BaseDelay)
	for i := 0; i < attempt && delay < float64(eb.MaxDelay); i++ {
		delay *= eb.Multiplier
	}
	delay = min(delay, float64(eb.MaxDelay))

	if eb.Jitter > 0 {
		delay += delay * eb.Jitter * (2*rand.Float64() - 1)
	}
	if delay < 0 {
		return eb.BaseDelay
	}
	return time.Duration(delay)
}

// FixedBackoff waits Delay before every retry. Tests use the zero value.
type FixedBackoff struct {
	Delay time.Duration
}

func (fb *FixedBackoff) NextDelay(int) time.Duration {
	return fb.Delay
}
