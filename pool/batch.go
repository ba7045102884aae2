package pool

import (
	"context"
	"errors"
	"fmt"
)

// Scoped runs fn against p and shuts the pool down when fn returns,
// waiting for every admitted task to finish. It is the function-scoped
// form of the usual construct/defer-shutdown pairing:
//
//	err := pool.Scoped(pool.NewFixedPool[string](4), func(p pool.Pool[string]) error {
//	    for _, u := range urls {
//	        p.Submit(ctx, fetch(u))
//	    }
//	    return p.Wait(ctx)
//	})
//
// The shutdown happens even if fn returns an error or panics.
func Scoped[R any](p Pool[R], fn func(Pool[R]) error) error {
	defer p.Shutdown(true)
	return fn(p)
}

// BatchSubmit submits every task in order and returns their Futures,
// index-aligned with tasks. It blocks as Submit does whenever the pool's
// admission buffer is full, so the returned slice is always fully
// populated; rejected submissions come back as already-resolved Futures.
func BatchSubmit[R any](ctx context.Context, p Pool[R], tasks []Task[R]) []*Future[R] {
	futs := make([]*Future[R], len(tasks))
	for i, t := range tasks {
		futs[i] = p.Submit(ctx, t)
	}
	return futs
}

// BatchRun submits every task, waits for all of them, and returns their
// results index-aligned with tasks. Failures do not stop the batch: every
// task still runs, failed slots hold the zero value, and the joined error
// reports each failure with its index. A nil error means the whole batch
// succeeded.
func BatchRun[R any](ctx context.Context, p Pool[R], tasks []Task[R]) ([]R, error) {
	futs := BatchSubmit(ctx, p, tasks)

	results := make([]R, len(futs))
	var errs []error
	for i, fut := range futs {
		v, err := fut.GetWithContext(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("task %d: %w", i, err))
			continue
		}
		results[i] = v
	}
	return results, errors.Join(errs...)
}
