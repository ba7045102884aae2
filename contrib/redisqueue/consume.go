package redisqueue

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nbpool/nbpool/pool"
)

// pollTimeout bounds each BLPOP so poppers notice cancellation promptly
// even against servers that do not interrupt blocked reads.
const pollTimeout = time.Second

// Handler turns a dequeued descriptor into the task to run for it. It is
// called once per descriptor, on a popper goroutine, before submission.
type Handler[T, R any] func(v T) pool.Task[R]

// Consume pops descriptors from q and submits handler-built tasks to p
// until ctx is cancelled, using the given number of popper goroutines. It
// returns ctx's error on cancellation, or the first broker error, at which
// point the remaining poppers stop too. Task outcomes travel through the
// pool as usual; callers observe them via the pool's Wait, hooks, or a
// result channel captured by the handler.
func Consume[T, R any](ctx context.Context, q *Queue[T], p pool.Pool[R], poppers int, handler Handler[T, R]) error {
	if poppers <= 0 {
		poppers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < poppers; i++ {
		g.Go(func() error {
			for {
				v, ok, err := q.Dequeue(ctx, pollTimeout)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					return err
				}
				if !ok {
					if err := ctx.Err(); err != nil {
						return err
					}
					continue
				}

				p.Submit(ctx, handler(v))
			}
		})
	}
	return g.Wait()
}
