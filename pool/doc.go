// Package pool provides bounded, generic task pools for concurrent
// execution with explicit admission control.
//
// Every variant implements the same small surface, Pool[R]: submit a
// Task[R] (a func(ctx) (R, error)), get back a *Future[R] that resolves
// exactly once, and control the pool's lifecycle with Wait and Shutdown.
// What varies between variants is how the concurrency bound is enforced:
//
//   - FixedPool: a fixed worker set fed from a bounded FIFO buffer. Workers
//     start lazily on the first submission and retire via shutdown
//     sentinels. Best default for steady workloads.
//   - PollingPool: no resident workers; each admitted task runs on its own
//     goroutine and admission sleeps in WithPollInterval steps while the
//     pool is at capacity. Simple, with admission latency up to one
//     interval.
//   - CondPool: like PollingPool but admission blocks on a condition
//     variable and each completion wakes exactly one waiter. No polling
//     latency, fair under heavy submitter contention.
//   - DynamicPool: a worker set that grows toward a ceiling under load and
//     shrinks to a floor when idle, plus a pending registry that enables
//     Wait, CancelAll and replay-capable Drain.
//
// # Basic Usage
//
//	ctx := context.Background()
//	p := pool.NewFixedPool[int](4)
//	defer p.Shutdown(true)
//
//	fut := p.Submit(ctx, func(ctx context.Context) (int, error) {
//	    return compute(), nil
//	})
//	v, err := fut.Get()
//
// # Submission Modes
//
//   - Submit: blocks while the pool is at capacity, honoring ctx; the
//     returned Future is never nil, and rejections resolve it with the
//     rejection error
//   - TrySubmit: never blocks; at capacity the Future is already resolved
//     with ErrPoolFull
//   - Run: Submit plus a blocking wait for the outcome, in one call
//   - BatchSubmit / BatchRun: slice-at-a-time forms of the above
//
// # Draining and the Registry
//
// Shutdown(wait) stops admission and lets already-admitted tasks finish.
// Hosts that own several pools can register them and flush everything at
// teardown:
//
//	reg := pool.NewRegistry()
//	p := pool.NewDynamicPool[int](8, pool.WithRegistry(reg))
//	...
//	_ = reg.DrainAll(ctx)
//
// For a DynamicPool, Drain also recovers work that a premature shutdown
// left behind: the pool restarts, re-admits its unresolved entries, and the
// original Futures still resolve.
//
// # Retry Logic
//
// Tasks can be retried with configurable backoff before their Future is
// failed:
//
//	p := pool.NewFixedPool[string](4,
//	    pool.WithRetryPolicy(3, 100*time.Millisecond), // 3 attempts, 100ms initial delay
//	    pool.WithRetryBackoff(pool.BackoffJittered),
//	)
//
// # Rate Limiting
//
// Control throughput to avoid overwhelming external services:
//
//	p := pool.NewFixedPool[APIResponse](10,
//	    pool.WithRateLimit(5.0, 10), // 5 tasks/sec, burst of 10
//	)
//
// # Configuration Options
//
//   - WithQueueSize(n): admission buffer capacity (default: 2x workers)
//   - WithPollInterval(d): PollingPool admission re-check period
//   - WithMinWorkers(n) / WithIdleTimeout(d) / WithSpawnCooldown(d):
//     DynamicPool sizing behavior
//   - WithRegistry(r): join a drain registry at construction
//   - WithLogger(l): structured lifecycle logging (default: no-op)
//   - WithRetryPolicy / WithRetryBackoff / WithRateLimit: execution policy
//   - WithBeforeTaskStart / WithOnTaskEnd / WithOnEachAttempt: hooks
//
// # Error Handling
//
// A task's error travels only through its own Future; one task failing
// never affects another or kills a worker. Panics are recovered per task
// and converted to errors carrying the stack trace. Admission failures use
// the sentinel errors ErrPoolFull and ErrPoolStopped, and a Future
// cancelled before completion resolves with ErrCancelled, which later
// completions cannot overwrite.
//
// The package is designed to be small and idiomatic for Go 1.22+.
package pool
