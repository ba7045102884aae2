package pool

import (
	"fmt"
	"runtime"
	"time"
)

// runEntry executes one admitted entry end to end: rate-limit gate, hooks,
// retry loop, panic recovery, and resolution of the entry's Future. It never
// panics and never returns an error to the caller; every outcome goes
// through the slot. Callers do their own bookkeeping (busy counters, pending
// delisting) around it.
func runEntry[R any](cfg *config, e *pendingEntry[R]) {
	// A slot cancelled before execution started means the work is unwanted;
	// skip it rather than spend a worker on a result that would be discarded.
	if e.fut.Cancelled() {
		return
	}

	if cfg.rateLimiter != nil {
		if err := cfg.rateLimiter.Wait(e.ctx); err != nil {
			e.fut.fail(err)
			return
		}
	}

	if cfg.beforeTaskStart != nil {
		cfg.beforeTaskStart()
	}

	start := time.Now()
	value, err := runWithRecovery(cfg, e)
	if cfg.onTaskEnd != nil {
		cfg.onTaskEnd(err, time.Since(start))
	}

	// complete/fail lose against an earlier Cancel, which is exactly the
	// contract: cancellation is never overwritten by a late outcome.
	if err != nil {
		e.fut.fail(err)
		return
	}
	e.fut.complete(value)
}

// runWithRecovery invokes the task with panic recovery and the configured
// retry policy. A panic aborts remaining attempts and is converted into an
// error carrying the stack, so one misbehaving task can never take down a
// worker loop.
func runWithRecovery[R any](cfg *config, e *pendingEntry[R]) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("task panic: %v\nstack trace:\n%s", r, buf[:n])
		}
	}()

	maxAttempts := max(cfg.maxAttempts, 1)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.backoffStrat.NextDelay(attempt-1, err)
			select {
			case <-time.After(delay):
			case <-e.ctx.Done():
				return result, e.ctx.Err()
			}
		}

		result, err = e.task(e.ctx)
		if err == nil {
			return result, nil
		}

		if cfg.onEachAttempt != nil && attempt < maxAttempts-1 {
			cfg.onEachAttempt(attempt+1, err)
		}
	}

	return result, err
}
