package pool

import (
	"context"
	"sync"
)

// waitUntil blocks until done is closed or ctx expires.
func waitUntil(done <-chan struct{}, ctx context.Context) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitCond waits on cond until pred reports true or ctx expires. The caller
// must hold cond.L; it is held again when waitCond returns. Cancellation is
// delivered by broadcasting from a context.AfterFunc, after which every
// waiter re-checks its own ctx, so loops waiting on the same condition must
// tolerate spurious wakeups (they all re-check pred).
func waitCond(ctx context.Context, cond *sync.Cond, pred func() bool) error {
	if pred() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	defer stop()

	for !pred() {
		cond.Wait()
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
