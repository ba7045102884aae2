package pool

import (
	"context"
	"sync"
)

// futureState tracks which terminal state, if any, a Future has reached.
type futureState int32

const (
	futurePending futureState = iota
	futureResolved
	futureCancelled
)

// Future is the single-assignment slot through which a task's outcome is
// delivered. Exactly one of a value, an error, or cancellation is ever set;
// later assignment attempts are discarded, so a cancellation can never be
// overwritten by a task that finishes afterwards. Any number of goroutines
// may observe the same Future.
//
// Example:
//
//	fut := p.Submit(ctx, fetchUser)
//	user, err := fut.Get()
//	if err != nil {
//	    log.Printf("fetch failed: %v", err)
//	}
type Future[R any] struct {
	mu    sync.Mutex
	done  chan struct{}
	state futureState
	value R
	err   error
}

func newFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

// failedFuture returns a Future that is already resolved with err. Pools use
// it to deliver admission rejections through the slot instead of a separate
// return value.
func failedFuture[R any](err error) *Future[R] {
	f := newFuture[R]()
	f.fail(err)
	return f
}

// NewFuture returns an unresolved Future together with the function that
// resolves it. It exists for executors outside this package that deliver
// outcomes through the same slot type the pools use. A non-nil err fails the
// future, otherwise v completes it; resolve follows the single-assignment
// rule and reports false if the future had already reached a terminal state.
func NewFuture[R any]() (*Future[R], func(v R, err error) bool) {
	f := newFuture[R]()
	resolve := func(v R, err error) bool {
		if err != nil {
			return f.fail(err)
		}
		return f.complete(v)
	}
	return f, resolve
}

// FailedFuture returns a Future already resolved with err, for rejecting a
// submission without spawning anything.
func FailedFuture[R any](err error) *Future[R] {
	return failedFuture[R](err)
}

// complete resolves the future with a value. It reports false if the future
// already reached a terminal state, in which case v is discarded.
func (f *Future[R]) complete(v R) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != futurePending {
		return false
	}
	f.value = v
	f.state = futureResolved
	close(f.done)
	return true
}

// fail resolves the future with an error. It reports false if the future
// already reached a terminal state.
func (f *Future[R]) fail(err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != futurePending {
		return false
	}
	f.err = err
	f.state = futureResolved
	close(f.done)
	return true
}

// Cancel moves the future to the cancelled state. It reports true if the
// cancellation won, false if an outcome (or an earlier cancel) was already
// set. After a winning Cancel, observers see ErrCancelled and the task's
// eventual outcome, if it is still running, is discarded.
func (f *Future[R]) Cancel() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != futurePending {
		return false
	}
	f.err = ErrCancelled
	f.state = futureCancelled
	close(f.done)
	return true
}

// Get blocks until the future resolves and returns its outcome. A cancelled
// future yields the zero value and ErrCancelled. Get may be called any
// number of times and always returns the same outcome.
func (f *Future[R]) Get() (R, error) {
	<-f.done
	// Terminal state is immutable once done is closed.
	return f.value, f.err
}

// GetWithContext behaves like Get but gives up when ctx expires, returning
// the zero value and ctx's error. The task itself keeps running; only the
// observation is abandoned.
func (f *Future[R]) GetWithContext(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// TryGet returns the outcome without blocking. The third return value
// reports whether the future had resolved; when false, the other two are
// meaningless.
func (f *Future[R]) TryGet() (R, error, bool) {
	select {
	case <-f.done:
		return f.value, f.err, true
	default:
		var zero R
		return zero, nil, false
	}
}

// Done returns a channel that is closed once the future reaches a terminal
// state. It is the select-friendly form of Get.
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}

// IsReady reports whether the future has resolved.
func (f *Future[R]) IsReady() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Cancelled reports whether the future was cancelled before its task
// produced an outcome.
func (f *Future[R]) Cancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == futureCancelled
}
