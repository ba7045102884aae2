package pool

import "errors"

var (
	// ErrPoolFull is delivered through a task's Future when a non-blocking
	// submission finds the admission buffer full (queue-based pools) or the
	// in-flight set at capacity (queueless pools).
	ErrPoolFull = errors.New("pool: at capacity")

	// ErrPoolStopped is delivered through a task's Future when submission is
	// attempted after shutdown has been initiated.
	ErrPoolStopped = errors.New("pool: shut down")

	// ErrCancelled is returned by Future observers after the future was
	// cancelled before its task produced an outcome.
	ErrCancelled = errors.New("pool: task cancelled")
)
