package pool

import "context"

// Task is a single unit of asynchronous work. The pool calls it at most once
// per admission (retries re-invoke it under the configured retry policy) and
// delivers whatever it returns through the task's Future. A Task must be safe
// to re-execute if it is ever re-admitted during a registry drain.
type Task[R any] func(ctx context.Context) (R, error)

// Pool is the uniform surface shared by every admission strategy in this
// package: FixedPool, PollingPool, CondPool and DynamicPool. Code that only
// needs to hand work to a bounded executor should accept a Pool rather than
// a concrete variant.
type Pool[R any] interface {
	// Submit admits task, blocking while the pool is at capacity. The
	// returned Future is never nil; admission failures (stopped pool,
	// expired ctx) resolve it with the corresponding error.
	Submit(ctx context.Context, task Task[R]) *Future[R]

	// TrySubmit admits task only if the pool has room right now. When it
	// does not, the returned Future is already resolved with ErrPoolFull.
	TrySubmit(task Task[R]) *Future[R]

	// Run submits task and blocks until its outcome is available.
	Run(ctx context.Context, task Task[R]) (R, error)

	// Wait blocks until the pool has no queued or executing work, or ctx
	// expires.
	Wait(ctx context.Context) error

	// Shutdown stops admission. With wait=true it drains queued work and
	// joins the workers before returning; with wait=false it returns
	// immediately while already-admitted work still completes.
	Shutdown(wait bool)

	// Stats reports a point-in-time snapshot of the pool.
	Stats() Stats
}

// PoolState describes where a pool is in its lifecycle.
type PoolState int32

const (
	StateNotStarted PoolState = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s PoolState) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of a pool's occupancy.
//
// Fields:
//   - State: lifecycle state at the time of the snapshot
//   - Workers: live worker goroutines (0 for queueless pools, which run each
//     task in its own goroutine)
//   - Busy: workers currently executing a task, or in-flight tasks for
//     queueless pools
//   - Idle: workers blocked waiting for work
//   - Queued: entries sitting in the admission buffer
//   - Pending: submitted-but-unresolved tasks, where the pool tracks them
//     (DynamicPool's pending registry; 0 for the other variants here)
type Stats struct {
	State   PoolState
	Workers int
	Busy    int
	Idle    int
	Queued  int
	Pending int
}

// pendingEntry is what travels through admission buffers and the dynamic
// pool's pending registry: the task, the slot its outcome goes to, and the
// ctx the task should observe while executing. A nil *pendingEntry on a
// queue is the worker shutdown sentinel.
type pendingEntry[R any] struct {
	ctx  context.Context
	task Task[R]
	fut  *Future[R]
}
