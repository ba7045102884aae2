package pool

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// PollingPool bounds concurrency without an admission buffer: each admitted
// task runs in its own goroutine, and a blocking submission simply sleeps in
// short fixed intervals (WithPollInterval) until the in-flight set drops
// below the cap. Simplest of the queueless strategies; costs a little
// admission latency and the occasional wasted re-check, and makes no
// ordering promise among waiters.
type PollingPool[R any] struct {
	cfg *config
	cap int

	mu       sync.Mutex
	state    PoolState
	inflight map[*Future[R]]struct{}

	stoppedCh chan struct{}
}

// NewPollingPool creates a queueless pool admitting at most maxConcurrency
// tasks at a time. A non-positive cap falls back to runtime.GOMAXPROCS(0).
func NewPollingPool[R any](maxConcurrency int, opts ...Option) *PollingPool[R] {
	cfg := newConfig(opts...)
	if maxConcurrency <= 0 {
		maxConcurrency = runtime.GOMAXPROCS(0)
	}

	p := &PollingPool[R]{
		cfg:       cfg,
		cap:       maxConcurrency,
		inflight:  make(map[*Future[R]]struct{}),
		stoppedCh: make(chan struct{}),
	}

	if cfg.registry != nil {
		cfg.registry.Register(p)
	}
	return p
}

// Submit admits task, sleeping in poll intervals while the pool is at
// capacity. Rejections (stopped pool, expired ctx) resolve the returned
// Future rather than being returned directly.
func (p *PollingPool[R]) Submit(ctx context.Context, task Task[R]) *Future[R] {
	return p.submit(ctx, task, true)
}

// TrySubmit admits task only if the in-flight set is below the cap right
// now; otherwise the returned Future is already resolved with ErrPoolFull.
func (p *PollingPool[R]) TrySubmit(task Task[R]) *Future[R] {
	return p.submit(context.Background(), task, false)
}

func (p *PollingPool[R]) submit(ctx context.Context, task Task[R], block bool) *Future[R] {
	for {
		p.mu.Lock()
		if p.state >= StateDraining {
			p.mu.Unlock()
			return failedFuture[R](ErrPoolStopped)
		}

		if len(p.inflight) < p.cap {
			if p.state == StateNotStarted {
				p.state = StateRunning
			}
			e := &pendingEntry[R]{ctx: ctx, task: task, fut: newFuture[R]()}
			p.inflight[e.fut] = struct{}{}
			p.mu.Unlock()

			go p.runTask(e)
			return e.fut
		}
		p.mu.Unlock()

		if !block {
			return failedFuture[R](ErrPoolFull)
		}

		select {
		case <-time.After(p.cfg.pollInterval):
		case <-ctx.Done():
			return failedFuture[R](ctx.Err())
		}
	}
}

func (p *PollingPool[R]) runTask(e *pendingEntry[R]) {
	runEntry(p.cfg, e)

	p.mu.Lock()
	delete(p.inflight, e.fut)
	p.mu.Unlock()
}

// Run submits task and blocks until its outcome is available.
func (p *PollingPool[R]) Run(ctx context.Context, task Task[R]) (R, error) {
	return p.Submit(ctx, task).GetWithContext(ctx)
}

// Wait polls until the in-flight set is empty or ctx expires.
func (p *PollingPool[R]) Wait(ctx context.Context) error {
	for {
		p.mu.Lock()
		n := len(p.inflight)
		p.mu.Unlock()
		if n == 0 {
			return nil
		}

		select {
		case <-time.After(p.cfg.pollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Shutdown stops admission. With wait=true it blocks until in-flight tasks
// finish; with wait=false they finish in the background and the pool flips
// to Stopped once the last one completes.
func (p *PollingPool[R]) Shutdown(wait bool) {
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
func (p *PollingPool[R]) Drain(ctx context.Context) error {
	if err := p.Wait(ctx); err != nil {
		return err
	}
	p.Shutdown(true)
	return nil
}

// Stats reports a snapshot of the pool. Queueless pools have no worker set,
// so Workers and Idle are always 0 and Busy is the in-flight count.
func (p *PollingPool[R]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{State: p.state, Busy: len(p.inflight)}
}

func (p *PollingPool[R]) deregister() {
	if p.cfg.registry != nil {
		p.cfg.registry.Deregister(p)
	}
}

var _ Pool[int] = (*PollingPool[int])(nil)
