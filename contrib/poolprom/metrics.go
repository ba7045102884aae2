// Package poolprom exposes pool activity to Prometheus.
//
// It has two halves. Metrics counts task outcomes through the pool's hook
// options, so it works with any variant and costs one counter increment per
// event. StatsCollector samples Stats() at scrape time and exports the
// occupancy gauges, one label per tracked pool.
//
//	m := poolprom.NewMetrics("myapp", "ingest")
//	p := pool.NewFixedPool[Report](8, m.Options()...)
//
//	c := poolprom.NewStatsCollector("myapp")
//	c.Track("ingest", p.Stats)
//	prometheus.MustRegister(c)
package poolprom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nbpool/nbpool/pool"
)

// Metrics holds the Prometheus collectors fed by a pool's hooks. One Metrics
// value belongs to one pool; give each pool its own subsystem so the series
// stay apart.
type Metrics struct {
	TasksStarted   prometheus.Counter
	TasksCompleted prometheus.Counter
	TasksFailed    prometheus.Counter
	TaskRetries    prometheus.Counter
	TasksInflight  prometheus.Gauge
	TaskLatency    prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on the default
// registerer.
func NewMetrics(namespace, subsystem string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace, subsystem)
}

// NewMetricsWith creates the collectors and registers them on reg. A nil reg
// skips registration, leaving it to the caller.
func NewMetricsWith(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	m := &Metrics{
		TasksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_started_total",
			Help:      "Total number of task executions started by the pool",
		}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_completed_total",
			Help:      "Total number of tasks that finished without an error",
		}),
		TasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_failed_total",
			Help:      "Total number of tasks whose final attempt returned an error",
		}),
		TaskRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "task_retries_total",
			Help:      "Total number of failed attempts that were retried",
		}),
		TasksInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_inflight",
			Help:      "Number of tasks currently executing",
		}),
		TaskLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "task_latency_seconds",
			Help:      "Histogram of task execution latency, retries included",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.TasksStarted,
			m.TasksCompleted,
			m.TasksFailed,
			m.TaskRetries,
			m.TasksInflight,
			m.TaskLatency,
		)
	}
	return m
}

// Options returns the hook options that feed the metrics. Pass them to a
// pool constructor; combining them with other hook options is not possible,
// since the last hook of each kind wins.
func (m *Metrics) Options() []pool.Option {
	return []pool.Option{
		pool.WithBeforeTaskStart(func() {
			m.TasksStarted.Inc()
			m.TasksInflight.Inc()
		}),
		pool.WithOnTaskEnd(func(err error, elapsed time.Duration) {
			m.TasksInflight.Dec()
			m.TaskLatency.Observe(elapsed.Seconds())
			if err != nil {
				m.TasksFailed.Inc()
			} else {
				m.TasksCompleted.Inc()
			}
		}),
		pool.WithOnEachAttempt(func(attempt int, err error) {
			m.TaskRetries.Inc()
		}),
	}
}
