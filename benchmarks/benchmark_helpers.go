package benchmarks

import (
	"context"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/nbpool/nbpool/contrib/antspool"
	"github.com/nbpool/nbpool/pool"
)

// strategyConfig describes one admission strategy under benchmark.
type strategyConfig struct {
	name string
	make func() pool.Pool[int]
}

// getAllStrategies returns every pool variant at the given capacity, plus
// the ants adapter as an external baseline.
func getAllStrategies(capacity int) []strategyConfig {
	return []strategyConfig{
		{
			name: "Fixed",
			make: func() pool.Pool[int] { return pool.NewFixedPool[int](capacity) },
		},
		{
			name: "Polling",
			make: func() pool.Pool[int] { return pool.NewPollingPool[int](capacity) },
		},
		{
			name: "Cond",
			make: func() pool.Pool[int] { return pool.NewCondPool[int](capacity) },
		},
		{
			name: "Dynamic",
			make: func() pool.Pool[int] { return pool.NewDynamicPool[int](capacity) },
		},
		{
			name: "Ants",
			make: func() pool.Pool[int] {
				p, err := antspool.New[int](capacity)
				if err != nil {
					panic(err)
				}
				return p
			},
		},
	}
}

// getQueuedStrategies returns only the buffered variants, with an explicit
// admission buffer size.
func getQueuedStrategies(capacity, queueSize int) []strategyConfig {
	return []strategyConfig{
		{
			name: "Fixed",
			make: func() pool.Pool[int] {
				return pool.NewFixedPool[int](capacity, pool.WithQueueSize(queueSize))
			},
		},
		{
			name: "Dynamic",
			make: func() pool.Pool[int] {
				return pool.NewDynamicPool[int](capacity, pool.WithQueueSize(queueSize))
			},
		},
	}
}

// runStrategyBenchmark runs a benchmark function once per strategy.
func runStrategyBenchmark(b *testing.B, strategies []strategyConfig, benchFunc func(b *testing.B, s strategyConfig)) {
	for _, strategy := range strategies {
		b.Run(strategy.name, func(b *testing.B) {
			benchFunc(b, strategy)
		})
	}
}

// =============================================================================
// Benchmark Workload Generators
// =============================================================================

// cpuTask returns a task doing a fixed amount of arithmetic.
func cpuTask(seed, iterations int) pool.Task[int] {
	return func(ctx context.Context) (int, error) {
		result := 0
		for i := 0; i < iterations; i++ {
			result += i * seed
		}
		return result, nil
	}
}

// ioTask returns a task that waits the way a network call would.
func ioTask(delay time.Duration) pool.Task[int] {
	return func(ctx context.Context) (int, error) {
		select {
		case <-time.After(delay):
			return 1, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// mixedTask returns a task with variable sleep plus some arithmetic, closer
// to a real request handler than the pure workloads.
func mixedTask(seed int) pool.Task[int] {
	return func(ctx context.Context) (int, error) {
		time.Sleep(time.Duration(seed%4) * time.Millisecond)

		result := 0
		for i := 0; i < 500; i++ {
			result += i
		}
		return result + seed, nil
	}
}

// drainAndStop empties the pool and joins its workers so per-op setup costs
// stay out of the next iteration.
func drainAndStop(b *testing.B, p pool.Pool[int]) {
	b.Helper()
	if err := p.Wait(context.Background()); err != nil {
		b.Fatal(err)
	}
	p.Shutdown(true)
}

// reportThroughput converts elapsed wall time into tasks/sec metrics.
func reportThroughput(b *testing.B, tasksPerOp float64, workers int) {
	nsPerOp := float64(b.Elapsed().Nanoseconds()) / float64(b.N)
	tasksPerSec := (tasksPerOp / nsPerOp) * 1e9

	b.ReportMetric(tasksPerSec, "tasks/sec")
	if workers > 0 {
		b.ReportMetric(tasksPerSec/float64(workers), "tasks/sec/worker")
	}
}

// percentile picks the nearest-rank percentile from unsorted latencies.
func percentile(latencies []time.Duration, p float64) time.Duration {
	if len(latencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	index := max(int(math.Round(p*float64(len(sorted)-1))), 0)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
