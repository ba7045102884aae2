package pool

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DynamicPool is a FixedPool that adapts its worker count to load. Workers
// are spawned on demand up to maxWorkers and reclaimed after sitting idle
// for WithIdleTimeout, never dropping below WithMinWorkers. Every submitted
// task is additionally tracked in a pending registry until its Future
// resolves, independent of whether the caller ever observes it; that
// registry is what makes Wait, CancelAll and Drain's replay possible.
//
// Scale-up is a greedy heuristic: after each submission, if the queue is
// deeper than the number of idle workers and the pool is below maxWorkers,
// one worker is added (rate-limited by WithSpawnCooldown). Under bursty load
// this can over- or under-provision by roughly one worker; it affects
// throughput only, never the concurrency cap.
//
// Type parameters:
//   - R: The result type produced by tasks
//
// Example:
//
//	p := pool.NewDynamicPool[int](16,
//	    pool.WithMinWorkers(2),
//	    pool.WithIdleTimeout(30*time.Second),
//	)
//	defer p.Shutdown(true)
type DynamicPool[R any] struct {
	cfg        *config
	minWorkers int
	maxWorkers int

	// submitGuard orders admission against the Draining transition the same
	// way FixedPool's RWMutex does: an in-flight submission finishes its
	// enqueue before shutdown may start draining.
	submitGuard sync.RWMutex

	// mu guards everything below. It is never held across a blocking queue
	// send; admission enqueues outside it so workers can keep taking it.
	mu        sync.Mutex
	cond      *sync.Cond // broadcast on every completion and pending change
	state     PoolState
	queue     chan *pendingEntry[R]
	workers   map[int64]*dynWorker
	nextID    int64
	busyCount int
	pending   map[*Future[R]]*pendingEntry[R]
	lastSpawn time.Time
	stoppedCh chan struct{}
	stopNow   chan struct{}

	workersWg sync.WaitGroup
}

// dynWorker is the per-worker record kept under the pool mutex.
type dynWorker struct {
	id        int64
	busy      bool
	idleSince time.Time
}

// NewDynamicPool creates a dynamic pool with the given worker ceiling. A
// non-positive ceiling falls back to runtime.GOMAXPROCS(0); a floor above
// the ceiling is clamped down to it. The admission buffer holds
// WithQueueSize entries (default 2x maxWorkers). No workers start until the
// first submission.
func NewDynamicPool[R any](maxWorkers int, opts ...Option) *DynamicPool[R] {
	cfg := newConfig(opts...)
	if maxWorkers <= 0 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}

	minWorkers := min(cfg.minWorkers, maxWorkers)

	queueSize := cfg.queueSize
	if queueSize <= 0 {
		queueSize = maxWorkers * 2
	}

	p := &DynamicPool[R]{
		cfg:        cfg,
		minWorkers: minWorkers,
		maxWorkers: maxWorkers,
		queue:      make(chan *pendingEntry[R], queueSize),
		workers:    make(map[int64]*dynWorker),
		pending:    make(map[*Future[R]]*pendingEntry[R]),
		stoppedCh:  make(chan struct{}),
		stopNow:    make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	if cfg.registry != nil {
		cfg.registry.Register(p)
	}
	return p
}

// Submit admits task, suspending while the admission buffer is full. The
// task is recorded in the pending registry before it is enqueued, so even a
// submission whose Future the caller discards stays drainable. Rejections
// resolve the returned Future.
func (p *DynamicPool[R]) Submit(ctx context.Context, task Task[R]) *Future[R] {
	return p.submit(ctx, task, true)
}

// TrySubmit admits task only if buffer space is available right now;
// otherwise the returned Future is already resolved with ErrPoolFull.
func (p *DynamicPool[R]) TrySubmit(task Task[R]) *Future[R] {
	return p.submit(context.Background(), task, false)
}

func (p *DynamicPool[R]) submit(ctx context.Context, task Task[R], block bool) *Future[R] {
	p.ensureStarted()

	p.submitGuard.RLock()
	defer p.submitGuard.RUnlock()

	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return failedFuture[R](ErrPoolStopped)
	}
	e := &pendingEntry[R]{ctx: ctx, task: task, fut: newFuture[R]()}
	p.pending[e.fut] = e
	queue := p.queue
	p.mu.Unlock()

	if block {
		select {
		case queue <- e:
		case <-ctx.Done():
			p.dropPending(e.fut)
			return failedFuture[R](ctx.Err())
		}
	} else {
		select {
		case queue <- e:
		default:
			p.dropPending(e.fut)
			return failedFuture[R](ErrPoolFull)
		}
	}

	p.maybeSpawn()
	return e.fut
}

// Run submits task and blocks until its outcome is available.
func (p *DynamicPool[R]) Run(ctx context.Context, task Task[R]) (R, error) {
	return p.Submit(ctx, task).GetWithContext(ctx)
}

// Wait blocks until the pending registry is empty: every submitted task has
// resolved, been cancelled, or been dropped.
func (p *DynamicPool[R]) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return waitCond(ctx, p.cond, func() bool { return len(p.pending) == 0 })
}

// Pending reports how many submitted tasks have not yet resolved.
func (p *DynamicPool[R]) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// CancelAll cancels every pending task's Future and clears the pending
// registry, returning how many futures the cancellation won. Tasks already
// executing run to completion but their outcomes are discarded.
func (p *DynamicPool[R]) CancelAll() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cancelled := 0
	for fut := range p.pending {
		if fut.Cancel() {
			cancelled++
		}
	}
	clear(p.pending)
	p.cond.Broadcast()
	return cancelled
}

// Shutdown stops admission. With wait=true it blocks until the buffer has
// drained, no worker is executing, and every worker has exited; with
// wait=false the same happens in the background while already-admitted
// entries still complete.
func (p *DynamicPool[R]) Shutdown(wait bool) {
	p.submitGuard.Lock()
	p.mu.Lock()
	switch p.state {
	case StateNotStarted:
		p.state = StateStopped
		stopped := p.stoppedCh
		p.mu.Unlock()
		p.submitGuard.Unlock()
		close(stopped)
		p.maybeDeregister()
		return
	case StateDraining, StateStopped:
		stopped := p.stoppedCh
		p.mu.Unlock()
		p.submitGuard.Unlock()
		if wait {
			<-stopped
		}
		return
	}
	p.state = StateDraining
	p.mu.Unlock()
	p.submitGuard.Unlock()

	p.cfg.log.Debug("pool shutting down", zap.Bool("wait", wait))

	if wait {
		p.drainAndStop(true)
		return
	}
	go p.drainAndStop(false)
}

// drainAndStop optionally waits for the buffer and busy workers to empty,
// then retires every worker via sentinels and finalizes the stopped state.
func (p *DynamicPool[R]) drainAndStop(drainFirst bool) {
	if drainFirst {
		p.mu.Lock()
		_ = waitCond(context.Background(), p.cond, func() bool {
			return len(p.queue) == 0 && p.busyCount == 0
		})
		p.mu.Unlock()
	}

	p.mu.Lock()
	n := len(p.workers)
	queue := p.queue
	stopped := p.stoppedCh
	p.mu.Unlock()

	for i := 0; i < n; i++ {
		queue <- nil
	}
	p.workersWg.Wait()

	p.mu.Lock()
	p.state = StateStopped
	p.mu.Unlock()

	close(stopped)
	p.maybeDeregister()
	p.cfg.log.Debug("pool stopped")
}

// Stop halts the pool without draining its buffer: admission closes, each
// worker exits after at most the task it is currently executing, and
// entries still queued stay unresolved in the pending registry. Drain or
// Registry.DrainAll can later replay them on a fresh worker set. Use
// Shutdown for a graceful stop.
//
// Stop blocks until every worker has exited. If a graceful shutdown is
// already in progress it joins that instead; the buffer then drains fully.
func (p *DynamicPool[R]) Stop() {
	p.submitGuard.Lock()
	p.mu.Lock()
	switch p.state {
	case StateNotStarted:
		p.state = StateStopped
		stopped := p.stoppedCh
		p.mu.Unlock()
		p.submitGuard.Unlock()
		close(stopped)
		p.maybeDeregister()
		return
	case StateDraining, StateStopped:
		stopped := p.stoppedCh
		p.mu.Unlock()
		p.submitGuard.Unlock()
		<-stopped
		return
	}
	p.state = StateDraining
	stopNow := p.stopNow
	stopped := p.stoppedCh
	p.mu.Unlock()
	p.submitGuard.Unlock()

	close(stopNow)
	p.workersWg.Wait()

	p.mu.Lock()
	p.state = StateStopped
	abandoned := len(p.pending)
	p.mu.Unlock()

	close(stopped)
	p.maybeDeregister()
	p.cfg.log.Warn("pool stopped hard", zap.Int("abandoned", abandoned))
}

// Drain brings the pool to a fully-stopped state without losing work:
//
//   - a running pool waits for its pending tasks, then shuts down;
//   - a stopped pool with unresolved pending entries (for example after
//     Shutdown(false) left queued work behind) is reset to a fresh worker
//     set and queue, the pending entries are re-admitted so their original
//     Futures still resolve, and the pool shuts down again once they have.
//
// Drain is idempotent and returns once ctx expires, so a host program can
// call it at teardown without risking a hang. It is what Registry.DrainAll
// invokes per pool.
func (p *DynamicPool[R]) Drain(ctx context.Context) error {
	for {
		p.mu.Lock()
		st := p.state
		hasPending := len(p.pending) > 0
		stopped := p.stoppedCh
		p.mu.Unlock()

		switch st {
		case StateNotStarted, StateRunning:
			if err := p.Wait(ctx); err != nil {
				return err
			}
			p.Shutdown(true)
			return nil
		case StateDraining:
			// Someone else's shutdown is in progress; join it and re-check
			// for leftovers.
			if err := waitUntil(stopped, ctx); err != nil {
				return err
			}
		case StateStopped:
			if !hasPending {
				return nil
			}
			if err := p.replay(ctx); err != nil {
				return err
			}
			return nil
		}
	}
}

// replay re-runs the pending entries of a stopped pool on a fresh worker
// set. The entries keep their original Futures; only their execution ctx is
// replaced, since the one they were submitted under may be long dead.
func (p *DynamicPool[R]) replay(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateStopped {
		// Lost a race with a concurrent Drain; let the caller re-check.
		p.mu.Unlock()
		return nil
	}

	entries := make([]*pendingEntry[R], 0, len(p.pending))
	for _, e := range p.pending {
		entries = append(entries, e)
	}

	p.queue = make(chan *pendingEntry[R], cap(p.queue))
	p.stoppedCh = make(chan struct{})
	p.stopNow = make(chan struct{})
	p.state = StateNotStarted
	queue := p.queue
	p.mu.Unlock()

	p.cfg.log.Info("replaying unfinished tasks", zap.Int("count", len(entries)))

	p.ensureStarted()
	for _, e := range entries {
		if e.fut.Cancelled() {
			p.dropPending(e.fut)
			continue
		}
		e.ctx = ctx

		select {
		case queue <- e:
		case <-ctx.Done():
			return ctx.Err()
		}
		p.maybeSpawn()
	}

	if err := p.Wait(ctx); err != nil {
		return err
	}
	p.Shutdown(true)
	return nil
}

// Stats reports a snapshot of the pool's occupancy, including the pending
// registry size.
func (p *DynamicPool[R]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		State:   p.state,
		Workers: len(p.workers),
		Busy:    p.busyCount,
		Idle:    len(p.workers) - p.busyCount,
		Queued:  len(p.queue),
		Pending: len(p.pending),
	}
}

// ensureStarted spawns the minimum worker set on the first submission.
func (p *DynamicPool[R]) ensureStarted() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateNotStarted {
		return
	}
	p.state = StateRunning
	for i := 0; i < p.minWorkers; i++ {
		p.spawnWorker()
	}
	p.cfg.log.Debug("pool started", zap.Int("workers", p.minWorkers))
}

// maybeSpawn applies the scale-up heuristic after a submission: one extra
// worker if the queue outgrew the idle workers, the ceiling permits, and the
// spawn cooldown has elapsed.
func (p *DynamicPool[R]) maybeSpawn() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateRunning || len(p.workers) >= p.maxWorkers {
		return
	}

	idle := len(p.workers) - p.busyCount
	if len(p.queue) <= idle {
		return
	}

	if time.Since(p.lastSpawn) < p.cfg.spawnCooldown {
		return
	}

	p.lastSpawn = time.Now()
	p.spawnWorker()
	p.cfg.log.Debug("scaled up", zap.Int("workers", len(p.workers)), zap.Int("queued", len(p.queue)))
}

// spawnWorker adds one worker. Caller must hold mu.
func (p *DynamicPool[R]) spawnWorker() {
	id := p.nextID
	p.nextID++
	p.workers[id] = &dynWorker{id: id, idleSince: time.Now()}

	p.workersWg.Add(1)
	go p.worker(id, p.queue, p.stopNow)
}

// worker drains the queue until it receives a shutdown sentinel, the
// hard-stop latch closes, or it retires idle. The idle timer is reset after
// every task; when it fires, the worker exits only if the pool stays at or
// above its floor, decided under the pool mutex so simultaneous reclaims
// cannot undershoot it. After each task the latch is checked before the
// queue, so a hard-stopped worker abandons the remaining buffer instead of
// racing it.
func (p *DynamicPool[R]) worker(id int64, queue chan *pendingEntry[R], stopNow chan struct{}) {
	defer p.workersWg.Done()

	timer := time.NewTimer(p.cfg.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case <-stopNow:
			p.removeWorker(id)
			p.cfg.log.Debug("worker stopped", zap.Int64("worker", id))
			return
		default:
		}

		select {
		case e := <-queue:
			if e == nil {
				p.removeWorker(id)
				p.cfg.log.Debug("worker exiting", zap.Int64("worker", id))
				return
			}

			// A hard stop can close the latch while this worker sits in the
			// select; the entry it grabbed then stays pending for replay
			// instead of being executed.
			select {
			case <-stopNow:
				p.removeWorker(id)
				p.cfg.log.Debug("worker stopped", zap.Int64("worker", id))
				return
			default:
			}

			p.markBusy(id, true)
			runEntry(p.cfg, e)
			p.markBusy(id, false)
			p.finishEntry(e)

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(p.cfg.idleTimeout)

		case <-stopNow:
			p.removeWorker(id)
			p.cfg.log.Debug("worker stopped", zap.Int64("worker", id))
			return

		case <-timer.C:
			if p.tryReclaim(id) {
				return
			}
			timer.Reset(p.cfg.idleTimeout)
		}
	}
}

// tryReclaim retires an idle worker unless that would drop the pool below
// its floor or a shutdown is already retiring workers via sentinels.
func (p *DynamicPool[R]) tryReclaim(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateRunning || len(p.workers) <= p.minWorkers {
		return false
	}

	w, ok := p.workers[id]
	if !ok {
		return false
	}
	delete(p.workers, id)
	p.cfg.log.Debug("idle worker reclaimed",
		zap.Int64("worker", id),
		zap.Duration("idle", time.Since(w.idleSince)),
		zap.Int("workers", len(p.workers)))
	return true
}

func (p *DynamicPool[R]) removeWorker(id int64) {
	p.mu.Lock()
	delete(p.workers, id)
	p.mu.Unlock()
}

func (p *DynamicPool[R]) markBusy(id int64, busy bool) {
	p.mu.Lock()
	if w, ok := p.workers[id]; ok && w.busy != busy {
		w.busy = busy
		if busy {
			p.busyCount++
		} else {
			p.busyCount--
			w.idleSince = time.Now()
		}
	}
	p.mu.Unlock()
}

// finishEntry delists a processed entry from the pending registry and wakes
// drain waiters.
func (p *DynamicPool[R]) finishEntry(e *pendingEntry[R]) {
	p.mu.Lock()
	delete(p.pending, e.fut)
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *DynamicPool[R]) dropPending(fut *Future[R]) {
	p.mu.Lock()
	delete(p.pending, fut)
	p.cond.Broadcast()
	p.mu.Unlock()
}

// maybeDeregister removes the pool from its registry only when nothing is
// pending; a pool stopped with unfinished work stays registered so
// Registry.DrainAll can replay it.
func (p *DynamicPool[R]) maybeDeregister() {
	if p.cfg.registry == nil {
		return
	}

	p.mu.Lock()
	clean := len(p.pending) == 0
	p.mu.Unlock()

	if clean {
		p.cfg.registry.Deregister(p)
	}
}

var _ Pool[int] = (*DynamicPool[int])(nil)
