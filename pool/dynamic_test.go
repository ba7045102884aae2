package pool

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDynamicPool_ScalesUpUnderLoad(t *testing.T) {
	gate := make(chan struct{})
	p := NewDynamicPool[int](6,
		WithMinWorkers(1),
		WithIdleTimeout(40*time.Millisecond),
		WithSpawnCooldown(time.Millisecond),
		WithQueueSize(32),
	)

	// The scale-up check runs at submission time, so space the submissions
	// out enough for the cooldown to elapse between them.
	futures := make([]*Future[int], 0, 12)
	for i := 0; i < 12; i++ {
		i := i
		futures = append(futures, p.Submit(context.Background(), func(ctx context.Context) (int, error) {
			<-gate
			return i, nil
		}))
		time.Sleep(3 * time.Millisecond)
	}

	waitForCondition(t, 2*time.Second, func() bool { return p.Stats().Workers >= 4 })
	if got := p.Stats().Workers; got > 6 {
		t.Errorf("worker count %d exceeded the ceiling of 6", got)
	}

	close(gate)
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	for i, future := range futures {
		if v, err := future.Get(); err != nil || v != i {
			t.Errorf("future %d: expected (%d, nil), got (%d, %v)", i, i, v, err)
		}
	}

	// With the load gone, idle workers are reclaimed down to the floor.
	waitForCondition(t, 2*time.Second, func() bool { return p.Stats().Workers == 1 })

	p.Shutdown(true)
}

func TestDynamicPool_WorkerFloorHolds(t *testing.T) {
	p := NewDynamicPool[int](5,
		WithMinWorkers(2),
		WithIdleTimeout(20*time.Millisecond),
		WithSpawnCooldown(time.Millisecond),
	)
	defer p.Shutdown(true)

	for i := 0; i < 10; i++ {
		p.Submit(context.Background(), func(ctx context.Context) (int, error) {
			time.Sleep(time.Millisecond)
			return 0, nil
		})
		time.Sleep(2 * time.Millisecond)
	}
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("wait failed: %v", err)
	}

	waitForCondition(t, 2*time.Second, func() bool { return p.Stats().Workers == 2 })

	// Several idle timeouts later the floor still holds.
	time.Sleep(100 * time.Millisecond)
	if got := p.Stats().Workers; got != 2 {
		t.Errorf("expected the worker floor of 2 to hold, got %d", got)
	}
}

func TestDynamicPool_CancelAll_DiscardsPendingWork(t *testing.T) {
	gate := make(chan struct{})
	p := NewDynamicPool[int](1,
		WithMinWorkers(1),
		WithQueueSize(10),
	)

	futures := make([]*Future[int], 0, 6)
	futures = append(futures, p.Submit(context.Background(), func(ctx context.Context) (int, error) {
		<-gate
		return 100, nil
	}))
	waitForCondition(t, 2*time.Second, func() bool { return p.Stats().Busy == 1 })

	for i := 0; i < 5; i++ {
		i := i
		futures = append(futures, p.Submit(context.Background(), func(ctx context.Context) (int, error) {
			return i, nil
		}))
	}

	if got := p.CancelAll(); got != 6 {
		t.Errorf("expected 6 cancelled futures, got %d", got)
	}
	if got := p.Pending(); got != 0 {
		t.Errorf("expected empty pending registry, got %d", got)
	}

	close(gate) // the executing task finishes; its outcome is discarded

	for i, future := range futures {
		if !future.Cancelled() {
			t.Errorf("future %d not cancelled", i)
		}
		if _, err := future.Get(); !errors.Is(err, ErrCancelled) {
			t.Errorf("future %d: expected ErrCancelled, got %v", i, err)
		}
	}

	p.Shutdown(true)
}

func TestDynamicPool_Stop_AbandonsQueuedWork(t *testing.T) {
	gate := make(chan struct{})
	p := NewDynamicPool[int](1,
		WithMinWorkers(1),
		WithQueueSize(10),
	)

	running := p.Submit(context.Background(), func(ctx context.Context) (int, error) {
		<-gate
		return -1, nil
	})
	waitForCondition(t, 2*time.Second, func() bool { return p.Stats().Busy == 1 })

	queued := make([]*Future[int], 0, 5)
	for i := 0; i < 5; i++ {
		i := i
		queued = append(queued, p.Submit(context.Background(), func(ctx context.Context) (int, error) {
			return i, nil
		}))
	}

	stopDone := make(chan struct{})
	go func() {
		p.Stop()
		close(stopDone)
	}()

	// Stop waits for the in-flight task; release it.
	time.Sleep(20 * time.Millisecond)
	close(gate)

	select {
	case <-stopDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the in-flight task finished")
	}

	if v, err := running.Get(); err != nil || v != -1 {
		t.Errorf("in-flight task: expected (-1, nil), got (%d, %v)", v, err)
	}

	stats := p.Stats()
	if stats.State != StateStopped {
		t.Errorf("expected state %v, got %v", StateStopped, stats.State)
	}
	if stats.Pending != 5 {
		t.Errorf("expected 5 abandoned entries, got %d", stats.Pending)
	}
	for i, future := range queued {
		if future.IsReady() {
			t.Errorf("queued future %d resolved despite the hard stop", i)
		}
	}

	// Drain replays the abandoned entries on a fresh worker set and the
	// original futures resolve.
	if err := p.Drain(context.Background()); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	for i, future := range queued {
		if v, err := future.Get(); err != nil || v != i {
			t.Errorf("replayed future %d: expected (%d, nil), got (%d, %v)", i, i, v, err)
		}
	}

	stats = p.Stats()
	if stats.State != StateStopped || stats.Pending != 0 {
		t.Errorf("expected a cleanly stopped pool after drain, got %+v", stats)
	}
}

func TestDynamicPool_Replay_SkipsCancelledEntries(t *testing.T) {
	gate := make(chan struct{})
	p := NewDynamicPool[int](1,
		WithMinWorkers(1),
		WithQueueSize(10),
	)

	p.Submit(context.Background(), func(ctx context.Context) (int, error) {
		<-gate
		return 0, nil
	})
	waitForCondition(t, 2*time.Second, func() bool { return p.Stats().Busy == 1 })

	futures := make([]*Future[int], 0, 3)
	for i := 0; i < 3; i++ {
		i := i
		futures = append(futures, p.Submit(context.Background(), func(ctx context.Context) (int, error) {
			return i + 1, nil
		}))
	}

	stopDone := make(chan struct{})
	go func() {
		p.Stop()
		close(stopDone)
	}()
	time.Sleep(20 * time.Millisecond)
	close(gate)
	<-stopDone

	futures[1].Cancel()

	if err := p.Drain(context.Background()); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	if v, err := futures[0].Get(); err != nil || v != 1 {
		t.Errorf("future 0: expected (1, nil), got (%d, %v)", v, err)
	}
	if _, err := futures[1].Get(); !errors.Is(err, ErrCancelled) {
		t.Errorf("future 1: expected ErrCancelled, got %v", err)
	}
	if v, err := futures[2].Get(); err != nil || v != 3 {
		t.Errorf("future 2: expected (3, nil), got (%d, %v)", v, err)
	}
	if got := p.Pending(); got != 0 {
		t.Errorf("expected empty pending registry, got %d", got)
	}
}

func TestDynamicPool_Drain_RunningPoolWaitsAndStops(t *testing.T) {
	p := NewDynamicPool[int](2, WithMinWorkers(1))

	future := p.Submit(context.Background(), func(ctx context.Context) (int, error) {
		time.Sleep(10 * time.Millisecond)
		return 9, nil
	})

	if err := p.Drain(context.Background()); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if v, err := future.Get(); err != nil || v != 9 {
		t.Errorf("expected (9, nil), got (%d, %v)", v, err)
	}
	if st := p.Stats().State; st != StateStopped {
		t.Errorf("expected state %v, got %v", StateStopped, st)
	}

	rejected := p.Submit(context.Background(), func(ctx context.Context) (int, error) {
		return 0, nil
	})
	if _, err := rejected.Get(); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped, got %v", err)
	}

	// Nothing pending, nothing running: a second drain is a no-op.
	if err := p.Drain(context.Background()); err != nil {
		t.Errorf("expected idempotent drain, got %v", err)
	}
}

func TestDynamicPool_Stop_BeforeFirstSubmission(t *testing.T) {
	p := NewDynamicPool[int](4)
	p.Stop()

	if st := p.Stats().State; st != StateStopped {
		t.Errorf("expected state %v, got %v", StateStopped, st)
	}

	// A second Stop returns immediately.
	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Stop did not return")
	}
}
