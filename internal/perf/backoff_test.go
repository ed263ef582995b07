package perf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestBackoff_NonDecreasingDelays tests that consecutive delays never
// shrink and never exceed the cap
func TestBackoff_NonDecreasingDelays(t *testing.T) {
	backoff := NewBackoff(250*time.Millisecond, 30*time.Second, 8)

	var previous time.Duration
	for i := 0; i < 8; i++ {
		expected := 250 * time.Millisecond << uint(i)
		if expected > 30*time.Second {
			expected = 30 * time.Second
		}

		delay, err := backoff.NextDelay()
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, delay, previous)
		assert.GreaterOrEqual(t, delay, expected)
		assert.LessOrEqual(t, delay, 30*time.Second)
		previous = delay
	}
}

// TestBackoff_ExhaustedBudget tests the terminal failure after maxRetries
func TestBackoff_ExhaustedBudget(t *testing.T) {
	backoff := NewBackoff(100*time.Millisecond, time.Second, 3)

	for i := 0; i < 3; i++ {
		_, err := backoff.NextDelay()
		assert.NoError(t, err)
	}
	assert.Equal(t, 3, backoff.Attempt())

	_, err := backoff.NextDelay()
	assert.ErrorIs(t, err, ErrSaveFailed)
}

// TestBackoff_Reset tests that a success returns the policy to base
func TestBackoff_Reset(t *testing.T) {
	backoff := NewBackoff(100*time.Millisecond, time.Second, 3)

	_, _ = backoff.NextDelay()
	_, _ = backoff.NextDelay()
	assert.Equal(t, 2, backoff.Attempt())

	backoff.Reset()
	assert.Equal(t, 0, backoff.Attempt())

	delay, err := backoff.NextDelay()
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, delay, 100*time.Millisecond)
	assert.Less(t, delay, 200*time.Millisecond)
}

// TestBackoff_CapClamp tests that large doublings clamp to the cap
func TestBackoff_CapClamp(t *testing.T) {
	backoff := NewBackoff(400*time.Millisecond, time.Second, 5)

	delays := make([]time.Duration, 0, 5)
	for i := 0; i < 5; i++ {
		delay, err := backoff.NextDelay()
		assert.NoError(t, err)
		delays = append(delays, delay)
	}

	// 400ms, 800ms, then pinned at the 1s cap
	assert.Equal(t, time.Second, delays[2])
	assert.Equal(t, time.Second, delays[3])
	assert.Equal(t, time.Second, delays[4])
}

// TestBackoff_Policy tests the client-facing policy description
func TestBackoff_Policy(t *testing.T) {
	backoff := NewBackoff(250*time.Millisecond, 30*time.Second, 3)

	policy := backoff.Policy()
	assert.Equal(t, int64(250), policy.BaseDelayMs)
	assert.Equal(t, int64(30000), policy.MaxDelayMs)
	assert.Equal(t, 3, policy.MaxRetries)
}
