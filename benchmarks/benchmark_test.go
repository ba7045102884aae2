package benchmarks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nbpool/nbpool/pool"
)

// =============================================================================
// Throughput Benchmarks - Core Performance Metrics
// =============================================================================

func BenchmarkSubmit_CPUBound(b *testing.B) {
	workers := 8
	taskCount := 10000

	runStrategyBenchmark(b, getAllStrategies(workers), func(b *testing.B, s strategyConfig) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			p := s.make()
			for j := 0; j < taskCount; j++ {
				p.Submit(context.Background(), cpuTask(j, 100))
			}
			drainAndStop(b, p)
		}
		b.StopTimer()

		reportThroughput(b, float64(taskCount), workers)
	})
}

func BenchmarkSubmit_IOBound(b *testing.B) {
	workers := 16
	taskCount := 1000

	runStrategyBenchmark(b, getAllStrategies(workers), func(b *testing.B, s strategyConfig) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			p := s.make()
			for j := 0; j < taskCount; j++ {
				p.Submit(context.Background(), ioTask(2*time.Millisecond))
			}
			drainAndStop(b, p)
		}
		b.StopTimer()

		reportThroughput(b, float64(taskCount), workers)
	})
}

func BenchmarkSubmit_WorkerScaling(b *testing.B) {
	workerCounts := []int{2, 4, 8, 16, 32}
	taskCount := 10000

	for _, workers := range workerCounts {
		b.Run(fmt.Sprintf("workers_%d", workers), func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				p := pool.NewFixedPool[int](workers)
				for j := 0; j < taskCount; j++ {
					p.Submit(context.Background(), cpuTask(j, 100))
				}
				drainAndStop(b, p)
			}
			b.StopTimer()

			reportThroughput(b, float64(taskCount), workers)
		})
	}
}

func BenchmarkSubmit_QueueDepth(b *testing.B) {
	workers := 8
	taskCount := 10000
	queueSizes := []int{1, 8, 64, 512}

	for _, queueSize := range queueSizes {
		b.Run(fmt.Sprintf("queue_%d", queueSize), func(b *testing.B) {
			runStrategyBenchmark(b, getQueuedStrategies(workers, queueSize), func(b *testing.B, s strategyConfig) {
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					p := s.make()
					for j := 0; j < taskCount; j++ {
						p.Submit(context.Background(), cpuTask(j, 100))
					}
					drainAndStop(b, p)
				}
				b.StopTimer()

				reportThroughput(b, float64(taskCount), workers)
			})
		})
	}
}

// =============================================================================
// Latency Benchmarks - Per-Task Costs
// =============================================================================

// BenchmarkRun_RoundTrip measures the submit-to-outcome latency of a single
// task on an otherwise idle pool.
func BenchmarkRun_RoundTrip(b *testing.B) {
	runStrategyBenchmark(b, getAllStrategies(1), func(b *testing.B, s strategyConfig) {
		p := s.make()
		defer p.Shutdown(true)

		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, err := p.Run(context.Background(), cpuTask(i, 10)); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// BenchmarkTrySubmit_Saturated measures the cost of a fast-path rejection
// while the pool is pinned at capacity.
func BenchmarkTrySubmit_Saturated(b *testing.B) {
	runStrategyBenchmark(b, getAllStrategies(1), func(b *testing.B, s strategyConfig) {
		p := s.make()
		gate := make(chan struct{})
		p.Submit(context.Background(), func(ctx context.Context) (int, error) {
			<-gate
			return 0, nil
		})
		// Give the blocker a moment to occupy the only slot.
		time.Sleep(10 * time.Millisecond)

		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			p.TrySubmit(cpuTask(i, 10))
		}
		b.StopTimer()

		close(gate)
		p.Shutdown(true)
	})
}

// =============================================================================
// Batch Helper Benchmarks
// =============================================================================

func BenchmarkBatchRun_CPUBound(b *testing.B) {
	workers := 8
	taskCount := 1000

	tasks := make([]pool.Task[int], taskCount)
	for j := range tasks {
		tasks[j] = cpuTask(j, 100)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p := pool.NewFixedPool[int](workers)
		if _, err := pool.BatchRun(context.Background(), p, tasks); err != nil {
			b.Fatal(err)
		}
		p.Shutdown(true)
	}
	b.StopTimer()

	reportThroughput(b, float64(taskCount), workers)
}
