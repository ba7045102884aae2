package poolprom

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nbpool/nbpool/pool"
)

// StatsCollector exports the occupancy snapshot of any number of pools as
// labelled gauges, sampled at scrape time. Pools are tracked by their Stats
// method, which keeps the collector out of the pools' generic type
// parameters:
//
//	c.Track("ingest", ingestPool.Stats)
type StatsCollector struct {
	mu      sync.Mutex
	sources map[string]func() pool.Stats

	state   *prometheus.Desc
	workers *prometheus.Desc
	busy    *prometheus.Desc
	idle    *prometheus.Desc
	queued  *prometheus.Desc
	pending *prometheus.Desc
}

// NewStatsCollector builds an empty collector. Metric names are prefixed
// with namespace; every series carries a "pool" label.
func NewStatsCollector(namespace string) *StatsCollector {
	labels := []string{"pool"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}

	return &StatsCollector{
		sources: make(map[string]func() pool.Stats),
		state:   desc("pool_state", "Lifecycle state: 0 not started, 1 running, 2 draining, 3 stopped"),
		workers: desc("pool_workers", "Live worker goroutines"),
		busy:    desc("pool_busy_workers", "Workers currently executing a task"),
		idle:    desc("pool_idle_workers", "Workers waiting for work"),
		queued:  desc("pool_queued_tasks", "Tasks sitting in the admission buffer"),
		pending: desc("pool_pending_tasks", "Submitted tasks that have not resolved"),
	}
}

// Track starts exporting the pool behind source under the given label value.
// Tracking the same name again replaces the source.
func (c *StatsCollector) Track(name string, source func() pool.Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[name] = source
}

// Untrack stops exporting the named pool, typically after it is shut down.
func (c *StatsCollector) Untrack(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sources, name)
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.state
	ch <- c.workers
	ch <- c.busy
	ch <- c.idle
	ch <- c.queued
	ch <- c.pending
}

// Collect implements prometheus.Collector. Each tracked pool is sampled
// once per scrape.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	sources := make(map[string]func() pool.Stats, len(c.sources))
	for name, source := range c.sources {
		sources[name] = source
	}
	c.mu.Unlock()

	for name, source := range sources {
		st := source()
		gauge := func(d *prometheus.Desc, v int) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), name)
		}
		gauge(c.state, int(st.State))
		gauge(c.workers, st.Workers)
		gauge(c.busy, st.Busy)
		gauge(c.idle, st.Idle)
		gauge(c.queued, st.Queued)
		gauge(c.pending, st.Pending)
	}
}

var _ prometheus.Collector = (*StatsCollector)(nil)
