package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBackoff_Defaults(t *testing.T) {
	backoff := TokenBackoff()

	assert.Equal(t, 200*time.Millisecond, backoff.BaseDelay)
	assert.Equal(t, 800*time.Millisecond, backoff.MaxDelay)
	assert.Equal(t, 2.0, backoff.Multiplier)
}

func TestCommitBackoff_StaysShort(t *testing.T) {
	backoff := CommitBackoff()

	for attempt := 0; attempt < 5; attempt++ {
		assert.LessOrEqual(t, backoff.NextDelay(attempt), 240*time.Millisecond, "attempt %d", attempt)
	}
}

func TestExponentialBackoff_NextDelay(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{-1, 100 * time.Millisecond},
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, 1 * time.Second},
		{10, 1 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, backoff.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoff_JitterStaysInBounds(t *testing.T) {
	backoff := TokenBackoff()

	for i := 0; i < 100; i++ {
		delay := backoff.NextDelay(1)
		assert.GreaterOrEqual(t, delay, 360*time.Millisecond)
		assert.LessOrEqual(t, delay, 440*time.Millisecond)
	}
}

func TestFixedBackoff(t *testing.T) {
	backoff := &FixedBackoff{Delay: 5 * time.Millisecond}

	assert.Equal(t, 5*time.Millisecond, backoff.NextDelay(0))
	assert.Equal(t, 5*time.Millisecond, backoff.NextDelay(7))
}
