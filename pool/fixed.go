package pool

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// FixedPool runs submitted tasks on a fixed set of long-lived workers fed by
// a bounded FIFO admission buffer. Workers are spawned lazily on the first
// submission, so an idle, never-used pool costs nothing. Backpressure is the
// buffer: blocking submissions suspend while it is full, non-blocking ones
// fail fast with ErrPoolFull.
//
// Type parameters:
//   - R: The result type produced by tasks
//
// Example:
//
//	p := pool.NewFixedPool[string](4, pool.WithQueueSize(16))
//	defer p.Shutdown(true)
//
//	fut := p.Submit(ctx, func(ctx context.Context) (string, error) {
//	    return fetch(ctx, url)
//	})
//	body, err := fut.Get()
type FixedPool[R any] struct {
	cfg     *config
	workers int
	queue   chan *pendingEntry[R]

	// mu orders admission against lifecycle transitions: submitters hold it
	// shared while they check state and enqueue, Shutdown holds it exclusive
	// while it flips state. An entry therefore can never land behind the
	// shutdown sentinels.
	mu    sync.RWMutex
	state PoolState

	// outstanding counts queued plus executing entries for drain accounting.
	drainMu     sync.Mutex
	drainCond   *sync.Cond
	outstanding int

	busy      atomic.Int64
	workersWg sync.WaitGroup
	stoppedCh chan struct{}
}

// NewFixedPool creates a fixed pool with the given worker count. A
// non-positive count falls back to runtime.GOMAXPROCS(0). The admission
// buffer holds WithQueueSize entries (default 2x workers). No goroutines
// start until the first submission.
func NewFixedPool[R any](workers int, opts ...Option) *FixedPool[R] {
	cfg := newConfig(opts...)
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := cfg.queueSize
	if queueSize <= 0 {
		queueSize = workers * 2
	}

	p := &FixedPool[R]{
		cfg:       cfg,
		workers:   workers,
		queue:     make(chan *pendingEntry[R], queueSize),
		stoppedCh: make(chan struct{}),
	}
	p.drainCond = sync.NewCond(&p.drainMu)

	if cfg.registry != nil {
		cfg.registry.Register(p)
	}
	return p
}

// Submit admits task into the pool, suspending while the admission buffer is
// full. The returned Future is never nil: if the pool is stopped or ctx
// expires before space frees, the Future arrives already resolved with that
// error. All outcomes, including rejections, reach the caller through the
// slot.
func (p *FixedPool[R]) Submit(ctx context.Context, task Task[R]) *Future[R] {
	return p.submit(ctx, task, true)
}

// TrySubmit admits task only if buffer space is available right now. A full
// buffer resolves the returned Future with ErrPoolFull immediately instead
// of suspending.
func (p *FixedPool[R]) TrySubmit(task Task[R]) *Future[R] {
	return p.submit(context.Background(), task, false)
}

func (p *FixedPool[R]) submit(ctx context.Context, task Task[R], block bool) *Future[R] {
	p.ensureStarted()

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.state != StateRunning {
		return failedFuture[R](ErrPoolStopped)
	}

	e := &pendingEntry[R]{ctx: ctx, task: task, fut: newFuture[R]()}
	p.trackEntry()

	if block {
		select {
		case p.queue <- e:
			return e.fut
		case <-ctx.Done():
			p.entryDone()
			return failedFuture[R](ctx.Err())
		}
	}

	select {
	case p.queue <- e:
		return e.fut
	default:
		p.entryDone()
		return failedFuture[R](ErrPoolFull)
	}
}

// Run submits task and blocks until its outcome is available, surfacing the
// task's own error if it failed. ctx bounds both admission and observation.
func (p *FixedPool[R]) Run(ctx context.Context, task Task[R]) (R, error) {
	return p.Submit(ctx, task).GetWithContext(ctx)
}

// Wait blocks until every queued and executing entry has been processed or
// ctx expires. New submissions arriving during the wait extend it.
func (p *FixedPool[R]) Wait(ctx context.Context) error {
	p.drainMu.Lock()
	defer p.drainMu.Unlock()
	return waitCond(ctx, p.drainCond, func() bool { return p.outstanding == 0 })
}

// Shutdown stops the pool. New submissions are rejected as soon as it is
// called. With wait=true it blocks until the buffer has drained and every
// worker has exited. With wait=false it returns immediately; one shutdown
// sentinel per worker is enqueued behind the remaining entries, so
// already-admitted work still completes before the workers exit.
func (p *FixedPool[R]) Shutdown(wait bool) {
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

	p.cfg.log.Debug("pool shutting down", zap.Bool("wait", wait))

	if wait {
		_ = p.Wait(context.Background())
		p.stopWorkers()
		return
	}
	go p.stopWorkers()
}

// stopWorkers sends one sentinel per worker, joins them, and finalizes the
// stopped state.
func (p *FixedPool[R]) stopWorkers() {
	for i := 0; i < p.workers; i++ {
		p.queue <- nil
	}
	p.workersWg.Wait()

	p.mu.Lock()
	p.state = StateStopped
	p.mu.Unlock()

	close(p.stoppedCh)
	p.deregister()
	p.cfg.log.Debug("pool stopped")
}

// Drain waits for outstanding work and then performs a waiting shutdown.
// It exists so a Registry can drain this pool alongside others.
func (p *FixedPool[R]) Drain(ctx context.Context) error {
	if err := p.Wait(ctx); err != nil {
		return err
	}
	p.Shutdown(true)
	return nil
}

// Stats reports a snapshot of the pool's occupancy.
func (p *FixedPool[R]) Stats() Stats {
	p.mu.RLock()
	st := p.state
	p.mu.RUnlock()

	workers := 0
	if st == StateRunning || st == StateDraining {
		workers = p.workers
	}
	busy := int(p.busy.Load())

	return Stats{
		State:   st,
		Workers: workers,
		Busy:    busy,
		Idle:    workers - busy,
		Queued:  len(p.queue),
	}
}

// ensureStarted spawns the worker set on the first submission. The mutex
// guarantees concurrent first submissions spawn exactly one set.
func (p *FixedPool[R]) ensureStarted() {
	p.mu.RLock()
	st := p.state
	p.mu.RUnlock()
	if st != StateNotStarted {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateNotStarted {
		return
	}

	p.state = StateRunning
	p.workersWg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.worker(i)
	}
	p.cfg.log.Debug("pool started", zap.Int("workers", p.workers))
}

// worker drains the admission buffer until it receives a shutdown sentinel.
// Task failures are isolated inside runEntry; nothing a task does can
// terminate this loop.
func (p *FixedPool[R]) worker(id int) {
	defer p.workersWg.Done()

	for {
		e := <-p.queue
		if e == nil {
			p.cfg.log.Debug("worker exiting", zap.Int("worker", id))
			return
		}

		p.busy.Add(1)
		runEntry(p.cfg, e)
		p.busy.Add(-1)
		p.entryDone()
	}
}

func (p *FixedPool[R]) trackEntry() {
	p.drainMu.Lock()
	p.outstanding++
	p.drainMu.Unlock()
}

func (p *FixedPool[R]) entryDone() {
	p.drainMu.Lock()
	p.outstanding--
	if p.outstanding == 0 {
		p.drainCond.Broadcast()
	}
	p.drainMu.Unlock()
}

func (p *FixedPool[R]) deregister() {
	if p.cfg.registry != nil {
		p.cfg.registry.Deregister(p)
	}
}

var _ Pool[int] = (*FixedPool[int])(nil)
