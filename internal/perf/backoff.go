package perf

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrSaveFailed is the terminal outcome once the retry budget is spent.
// History up to the last successful save stays valid; a failed retry never
// rolls anything back.
var ErrSaveFailed = errors.New("save failed: retry budget exhausted")

// Backoff is the client-facing retry policy: the delay doubles from base
// on each consecutive failure up to cap, with additive jitter so retries
// from many clients don't synchronize, and resets to base after a success.
// The server itself never retries a save internally; it hands these delays
// to the client.
type Backoff struct {
	mu         sync.Mutex
	base       time.Duration
	cap        time.Duration
	maxRetries int
	attempt    int
	rng        *rand.Rand
}

func NewBackoff(base, cap time.Duration, maxRetries int) *Backoff {
	return &Backoff{
		base:       base,
		cap:        cap,
		maxRetries: maxRetries,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NextDelay registers one failure and returns the delay before the next
// attempt. Returns ErrSaveFailed once maxRetries consecutive failures have
// been registered.
func (b *Backoff) NextDelay() (time.Duration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attempt >= b.maxRetries {
		return 0, ErrSaveFailed
	}

	delay := b.base << uint(b.attempt)
	if delay > b.cap || delay <= 0 {
		delay = b.cap
	}

	// jitter only upward so consecutive delays stay non-decreasing
	if delay < b.cap {
		delay += time.Duration(b.rng.Int63n(int64(delay)/5 + 1))
		if delay > b.cap {
			delay = b.cap
		}
	}

	b.attempt++
	return delay, nil
}

// Reset returns the policy to the base delay after a success.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt = 0
}

// Attempt reports how many consecutive failures are registered.
func (b *Backoff) Attempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}

// Policy describes the retry parameters for clients.
type Policy struct {
	BaseDelayMs int64 `json:"base_delay_ms"`
	MaxDelayMs  int64 `json:"max_delay_ms"`
	MaxRetries  int   `json:"max_retries"`
}

func (b *Backoff) Policy() Policy {
	return Policy{
		BaseDelayMs: b.base.Milliseconds(),
		MaxDelayMs:  b.cap.Milliseconds(),
		MaxRetries:  b.maxRetries,
	}
}
