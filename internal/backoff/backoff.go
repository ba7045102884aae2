// Package backoff provides the retry-delay strategies used by the pool
// package when a task is configured with a retry policy.
package backoff

import (
	"math/rand"
	"sync"
	"time"
)

// maxShift caps the exponent so the shift below cannot overflow int64.
const maxShift = 63

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// NextDelay returns the delay before retry attempt attemptNumber.
	// attemptNumber is 0-indexed (0 = first retry after the initial failure).
	// lastErr is available for strategies that adapt to the error.
	NextDelay(attemptNumber int, lastErr error) time.Duration

	// Reset clears any per-task state. Called before each fresh task.
	Reset()
}

// Type selects a retry-delay strategy.
type Type int

const (
	// Exponential doubles the delay on every attempt (default).
	Exponential Type = iota
	// Jittered is exponential with a random factor applied to each delay.
	Jittered
	// Decorrelated draws each delay from a range based on the previous
	// delay rather than the attempt number.
	Decorrelated
)

// New creates a Strategy of the given type. jitterFactor is only used by
// the Jittered type and is clamped to [0, 1].
func New(t Type, initialDelay, maxDelay time.Duration, jitterFactor float64) Strategy {
	switch t {
	case Jittered:
		return &jittered{
			initialDelay: initialDelay,
			maxDelay:     maxDelay,
			factor:       clamp(jitterFactor, 0, 1),
			rng:          rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- not security sensitive
		}
	case Decorrelated:
		return &decorrelated{
			initialDelay: initialDelay,
			maxDelay:     maxDelay,
			prevDelay:    initialDelay,
			rng:          rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- not security sensitive
		}
	default:
		return &exponential{initialDelay: initialDelay, maxDelay: maxDelay}
	}
}

// exponential implements plain exponential backoff:
// initialDelay * 2^attemptNumber, capped at maxDelay.
type exponential struct {
	initialDelay time.Duration
	maxDelay     time.Duration
}

func (e *exponential) NextDelay(attemptNumber int, _ error) time.Duration {
	return expDelay(attemptNumber, e.initialDelay, e.maxDelay)
}

func (e *exponential) Reset() {}

// jittered spreads exponential delays by a random multiplier in
// [1-factor, 1+factor] so simultaneous failures do not retry in lockstep.
type jittered struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	factor       float64
	mu           sync.Mutex
	rng          *rand.Rand
}

func (j *jittered) NextDelay(attemptNumber int, _ error) time.Duration {
	if attemptNumber < 0 {
		return 0
	}

	base := expDelay(attemptNumber, j.initialDelay, j.maxDelay)

	j.mu.Lock()
	mult := 1.0 + (j.rng.Float64()*2-1)*j.factor
	j.mu.Unlock()

	return clamp(time.Duration(float64(base)*mult), 0, j.maxDelay)
}

func (j *jittered) Reset() {}

// decorrelated implements decorrelated jitter:
// delay = random(initialDelay, prevDelay*3), capped at maxDelay.
// The previous delay is per-strategy state, so Reset matters here.
type decorrelated struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	prevDelay    time.Duration
	mu           sync.Mutex
	rng          *rand.Rand
}

func (d *decorrelated) NextDelay(attemptNumber int, _ error) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	if attemptNumber <= 0 {
		d.prevDelay = d.initialDelay
		return d.initialDelay
	}

	upper := min(time.Duration(float64(d.prevDelay)*3), d.maxDelay)
	span := upper - d.initialDelay
	if span <= 0 {
		d.prevDelay = d.initialDelay
		return d.initialDelay
	}

	delay := d.initialDelay + time.Duration(d.rng.Int63n(int64(span)))
	d.prevDelay = delay
	return delay
}

func (d *decorrelated) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prevDelay = d.initialDelay
}

func expDelay(attemptNumber int, initialDelay, maxDelay time.Duration) time.Duration {
	if attemptNumber < 0 {
		return 0
	}

	if attemptNumber >= maxShift {
		return maxDelay
	}

	delay := time.Duration(int64(1)<<uint(attemptNumber)) * initialDelay
	if delay > maxDelay || delay < 0 {
		return maxDelay
	}
	return delay
}

func clamp[T int | float64 | time.Duration](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
