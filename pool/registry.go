package pool

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Drainable is anything that can be flushed to a fully-stopped state. All
// pool variants implement it; Drain waits for pending work (replaying it if
// the pool was stopped with work left behind), then shuts the pool down.
type Drainable interface {
	Drain(ctx context.Context) error
}

// Registry tracks live pools so a host program can flush them in one call
// at teardown. Pools join it at construction through WithRegistry and leave
// it when they stop with nothing pending; a pool stopped with unfinished
// work stays registered so DrainAll can replay it.
//
// There is no process-global registry and no exit hook. The host decides
// when to drain:
//
//	reg := pool.NewRegistry()
//	p := pool.NewDynamicPool[int](8, pool.WithRegistry(reg))
//	...
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//	if err := reg.DrainAll(ctx); err != nil {
//	    log.Printf("drain: %v", err)
//	}
type Registry struct {
	mu    sync.Mutex
	pools map[Drainable]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pools: make(map[Drainable]struct{})}
}

// Register adds p to the registry. Registering an already-registered pool
// is a no-op.
func (r *Registry) Register(p Drainable) {
	r.mu.Lock()
	r.pools[p] = struct{}{}
	r.mu.Unlock()
}

// Deregister removes p from the registry if present.
func (r *Registry) Deregister(p Drainable) {
	r.mu.Lock()
	delete(r.pools, p)
	r.mu.Unlock()
}

// Size reports how many pools are currently registered.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools)
}

// DrainAll drains every registered pool concurrently and blocks until all
// of them finish or ctx expires. Pools that drain cleanly deregister
// themselves, so calling DrainAll again is cheap and idempotent. Every pool
// is drained even when some fail; the first error encountered is returned.
func (r *Registry) DrainAll(ctx context.Context) error {
	r.mu.Lock()
	snapshot := make([]Drainable, 0, len(r.pools))
	for p := range r.pools {
		snapshot = append(snapshot, p)
	}
	r.mu.Unlock()

	var g errgroup.Group
	for _, p := range snapshot {
		p := p
		g.Go(func() error {
			return p.Drain(ctx)
		})
	}
	return g.Wait()
}
