package pool

import (
	"context"
	"runtime"
	"sync"
)

// CondPool bounds concurrency without an admission buffer using a condition
// variable: a blocking submission waits on the condition while the in-flight
// set is at capacity, and every task completion wakes exactly one waiter.
// Compared to PollingPool this admits with no busy-waiting and lower
// latency, at the cost of the trickiest admission mechanics of the variants
// in this package.
type CondPool[R any] struct {
	cfg *config
	cap int

	mu    sync.Mutex
	admit *sync.Cond // signalled once per completion: one waiter may admit
	idle  *sync.Cond // broadcast when the in-flight set empties

	state    PoolState
	inflight map[*Future[R]]struct{}

	stoppedCh chan struct{}
}

// NewCondPool creates a condition-signalled queueless pool admitting at most
// maxConcurrency tasks at a time. A non-positive cap falls back to
// runtime.GOMAXPROCS(0).
func NewCondPool[R any](maxConcurrency int, opts ...Option) *CondPool[R] {
	cfg := newConfig(opts...)
	if maxConcurrency <= 0 {
		maxConcurrency = runtime.GOMAXPROCS(0)
	}

	p := &CondPool[R]{
		cfg:       cfg,
		cap:       maxConcurrency,
		inflight:  make(map[*Future[R]]struct{}),
		stoppedCh: make(chan struct{}),
	}
	p.admit = sync.NewCond(&p.mu)
	p.idle = sync.NewCond(&p.mu)

	if cfg.registry != nil {
		cfg.registry.Register(p)
	}
	return p
}

// Submit admits task, waiting on the pool's condition variable while the
// in-flight set is at capacity. Rejections resolve the returned Future.
func (p *CondPool[R]) Submit(ctx context.Context, task Task[R]) *Future[R] {
	return p.submit(ctx, task, true)
}

// TrySubmit admits task only if the in-flight set is below the cap right
// now; otherwise the returned Future is already resolved with ErrPoolFull.
func (p *CondPool[R]) TrySubmit(task Task[R]) *Future[R] {
	return p.submit(context.Background(), task, false)
}

func (p *CondPool[R]) submit(ctx context.Context, task Task[R], block bool) *Future[R] {
	p.mu.Lock()

	if p.state >= StateDraining {
		p.mu.Unlock()
		return failedFuture[R](ErrPoolStopped)
	}

	if len(p.inflight) >= p.cap {
		if !block {
			p.mu.Unlock()
			return failedFuture[R](ErrPoolFull)
		}

		// Shutdown broadcasts after flipping the state, so the predicate
		// must observe it and the post-wait check must re-reject.
		err := waitCond(ctx, p.admit, func() bool {
			return len(p.inflight) < p.cap || p.state >= StateDraining
		})
		if err != nil {
			p.mu.Unlock()
			return failedFuture[R](err)
		}
		if p.state >= StateDraining {
			p.mu.Unlock()
			return failedFuture[R](ErrPoolStopped)
		}
	}

	if p.state == StateNotStarted {
		p.state = StateRunning
	}

	e := &pendingEntry[R]{ctx: ctx, task: task, fut: newFuture[R]()}
	p.inflight[e.fut] = struct{}{}
	p.mu.Unlock()

	go p.runTask(e)
	return e.fut
}

func (p *CondPool[R]) runTask(e *pendingEntry[R]) {
	runEntry(p.cfg, e)

	// The completion handler needs the pool lock, so it runs as its own
	// scheduled unit: the tail of the task goroutine, never inline with
	// admission.
	p.mu.Lock()
	delete(p.inflight, e.fut)
	p.admit.Signal()
	if len(p.inflight) == 0 {
		p.idle.Broadcast()
	}
	p.mu.Unlock()
}

// Run submits task and blocks until its outcome is available.
func (p *CondPool[R]) Run(ctx context.Context, task Task[R]) (R, error) {
	return p.Submit(ctx, task).GetWithContext(ctx)
}

// Wait blocks on the idle condition until the in-flight set is empty or ctx
// expires.
func (p *CondPool[R]) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return waitCond(ctx, p.idle, func() bool { return len(p.inflight) == 0 })
}

// Shutdown stops admission and wakes every blocked submitter so it can
// observe the rejection. With wait=true it blocks until in-flight tasks
// finish.
func (p *CondPool[R]) Shutdown(wait bool) {
	p.mu.Lock()
	switch p.state {
	case StateNotStarted:
		p.state = StateStopped
		p.mu.Unlock()
		close(p.stoppedCh)
		p.deregister()
		return
	case StateDraining, StateStopped:
		p.mu.Unlock()
		if wait {
			<-p.stoppedCh
		}
		return
	}
	p.state = StateDraining
	p.admit.Broadcast()
	p.mu.Unlock()

	finish := func() {
		_ = p.Wait(context.Background())
		p.mu.Lock()
		p.state = StateStopped
		p.mu.Unlock()
		close(p.stoppedCh)
		p.deregister()
	}

	if wait {
		finish()
		return
	}
	go finish()
}

// Drain waits for in-flight tasks and then performs a waiting shutdown, for
// use through a Registry.
func (p *CondPool[R]) Drain(ctx context.Context) error {
	if err := p.Wait(ctx); err != nil {
		return err
	}
	p.Shutdown(true)
	return nil
}

// Stats reports a snapshot of the pool. Queueless pools have no worker set,
// so Workers and Idle are always 0 and Busy is the in-flight count.
func (p *CondPool[R]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{State: p.state, Busy: len(p.inflight)}
}

func (p *CondPool[R]) deregister() {
	if p.cfg.registry != nil {
		p.cfg.registry.Deregister(p)
	}
}

var _ Pool[int] = (*CondPool[int])(nil)
