// Package antspool runs tasks on a github.com/panjf2000/ants/v2 worker pool
// behind the pool.Pool interface, for hosts that already reuse goroutines
// through ants and want the same submission, draining and registry surface
// as the native pools.
//
// Capacity is enforced twice. ants bounds the worker goroutines, and the
// adapter bounds admitted-but-unfinished tasks with a semaphore of the same
// size, which is what lets TrySubmit fail fast and lets Submit honor its
// context while blocked.
package antspool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/nbpool/nbpool/pool"
)

type options struct {
	expiry   time.Duration
	log      *zap.Logger
	registry *pool.Registry
}

// Option adjusts the adapter at construction time.
type Option func(*options)

// WithExpiryDuration sets how long an ants worker goroutine may sit idle
// before it is reclaimed. Defaults to one minute.
func WithExpiryDuration(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.expiry = d
		}
	}
}

// WithLogger routes the adapter's and ants' own logging through log. The
// default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithRegistry registers the pool on r so Registry.DrainAll includes it in
// a shared teardown.
func WithRegistry(r *pool.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// Pool adapts an ants.Pool to pool.Pool. Unlike the native pools it has no
// admission buffer: a submission either takes one of the inflight slots or
// waits for one, and the task runs as soon as ants hands it a worker.
type Pool[R any] struct {
	inner    *ants.Pool
	log      *zap.Logger
	registry *pool.Registry
	sem      chan struct{}

	mu        sync.Mutex
	cond      *sync.Cond
	state     pool.PoolState
	inflight  int
	stoppedCh chan struct{}
	wg        sync.WaitGroup
}

// New builds an adapter around a fresh ants pool of the given size. A size
// of zero or less falls back to GOMAXPROCS. The underlying pool blocks
// submitters when every worker is busy; the adapter's semaphore keeps that
// from happening in steady state, so the block only covers the instant
// between a task finishing and its worker returning to ants.
func New[R any](size int, opts ...Option) (*Pool[R], error) {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}

	o := &options{
		expiry: time.Minute,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	inner, err := ants.NewPool(size,
		ants.WithExpiryDuration(o.expiry),
		ants.WithNonblocking(false),
		ants.WithLogger(antsLogger{o.log.Sugar()}),
	)
	if err != nil {
		return nil, fmt.Errorf("create ants pool: %w", err)
	}

	p := &Pool[R]{
		inner:     inner,
		log:       o.log,
		registry:  o.registry,
		sem:       make(chan struct{}, size),
		state:     pool.StateRunning,
		stoppedCh: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	if o.registry != nil {
		o.registry.Register(p)
	}
	return p, nil
}

// Submit admits task, blocking while all inflight slots are taken. The
// returned Future is never nil; a stopped pool or an expired ctx resolve it
// with the corresponding error.
func (p *Pool[R]) Submit(ctx context.Context, task pool.Task[R]) *pool.Future[R] {
	if !p.running() {
		return pool.FailedFuture[R](pool.ErrPoolStopped)
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return pool.FailedFuture[R](ctx.Err())
	}
	return p.dispatch(ctx, task)
}

// TrySubmit admits task only if an inflight slot is free right now. When
// none is, the returned Future is already resolved with ErrPoolFull.
func (p *Pool[R]) TrySubmit(task pool.Task[R]) *pool.Future[R] {
	if !p.running() {
		return pool.FailedFuture[R](pool.ErrPoolStopped)
	}

	select {
	case p.sem <- struct{}{}:
	default:
		return pool.FailedFuture[R](pool.ErrPoolFull)
	}
	return p.dispatch(context.Background(), task)
}

// Run submits task and blocks until its outcome is available.
func (p *Pool[R]) Run(ctx context.Context, task pool.Task[R]) (R, error) {
	return p.Submit(ctx, task).GetWithContext(ctx)
}

// dispatch hands an admitted task to ants. The caller has already taken a
// semaphore slot; every path that does not reach execution gives it back.
func (p *Pool[R]) dispatch(ctx context.Context, task pool.Task[R]) *pool.Future[R] {
	p.mu.Lock()
	if p.state != pool.StateRunning {
		p.mu.Unlock()
		<-p.sem
		return pool.FailedFuture[R](pool.ErrPoolStopped)
	}
	p.inflight++
	p.wg.Add(1)
	p.mu.Unlock()

	fut, resolve := pool.NewFuture[R]()
	run := func() {
		defer p.finish()
		defer func() {
			if r := recover(); r != nil {
				var zero R
				resolve(zero, fmt.Errorf("task panic: %v\nstack trace:\n%s", r, debug.Stack()))
			}
		}()

		if fut.Cancelled() {
			return
		}
		if err := ctx.Err(); err != nil {
			var zero R
			resolve(zero, err)
			return
		}
		resolve(task(ctx))
	}

	if err := p.inner.Submit(run); err != nil {
		p.finish()
		var zero R
		resolve(zero, submitError(err))
	}
	return fut
}

// finish retires one task: occupancy drops, the slot frees, and anyone in
// Wait or Shutdown gets a chance to re-check.
func (p *Pool[R]) finish() {
	p.mu.Lock()
	p.inflight--
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Done()
	<-p.sem
}

// Wait blocks until no admitted task remains unresolved, or ctx expires.
// New submissions arriving during the wait extend it.
func (p *Pool[R]) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inflight == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	for p.inflight != 0 {
		p.cond.Wait()
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown stops admission. With wait=true it blocks until every admitted
// task has finished and the ants workers are released; with wait=false the
// same drain happens in the background and a later Shutdown(true) joins it.
func (p *Pool[R]) Shutdown(wait bool) {
	p.mu.Lock()
	if p.state != pool.StateRunning {
		ch := p.stoppedCh
		p.mu.Unlock()
		if wait {
			<-ch
		}
		return
	}
	p.state = pool.StateDraining
	p.mu.Unlock()

	if wait {
		p.drain()
	} else {
		go p.drain()
	}
}

func (p *Pool[R]) drain() {
	p.wg.Wait()
	p.inner.Release()

	p.mu.Lock()
	p.state = pool.StateStopped
	close(p.stoppedCh)
	p.mu.Unlock()

	if p.registry != nil {
		p.registry.Deregister(p)
	}
	p.log.Debug("ants pool stopped")
}

// Drain waits for in-flight work and then stops the pool, satisfying
// pool.Drainable so the adapter can take part in Registry.DrainAll.
func (p *Pool[R]) Drain(ctx context.Context) error {
	if err := p.Wait(ctx); err != nil {
		return err
	}
	p.Shutdown(true)
	return nil
}

// Stats maps the ants gauges onto the shared snapshot: Workers is the
// configured capacity, Busy the checked-out ants workers, Idle the unused
// capacity, Queued the submitters blocked inside ants, and Pending every
// admitted task that has not resolved yet.
func (p *Pool[R]) Stats() pool.Stats {
	p.mu.Lock()
	state := p.state
	inflight := p.inflight
	p.mu.Unlock()

	return pool.Stats{
		State:   state,
		Workers: p.inner.Cap(),
		Busy:    p.inner.Running(),
		Idle:    p.inner.Free(),
		Queued:  p.inner.Waiting(),
		Pending: inflight,
	}
}

func (p *Pool[R]) running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == pool.StateRunning
}

func submitError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ants.ErrPoolClosed):
		return pool.ErrPoolStopped
	case errors.Is(err, ants.ErrPoolOverload):
		return pool.ErrPoolFull
	default:
		return err
	}
}

// antsLogger routes ants' internal logging, which is mostly panic reports,
// through zap.
type antsLogger struct {
	s *zap.SugaredLogger
}

func (l antsLogger) Printf(format string, args ...any) {
	l.s.Warnf(format, args...)
}

var (
	_ pool.Pool[int] = (*Pool[int])(nil)
	_ pool.Drainable = (*Pool[int])(nil)
)
