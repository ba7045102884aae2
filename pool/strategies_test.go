package pool

import (
	"testing"
	"time"
)

// strategyConfig defines a test configuration for one admission strategy
type strategyConfig struct {
	name string
	make func() Pool[int]
}

// getAllStrategies returns every pool variant built with the same
// concurrency capacity, so shared properties can be asserted across all of
// them.
func getAllStrategies(capacity int, opts ...Option) []strategyConfig {
	return []strategyConfig{
		{
			name: "Fixed",
			make: func() Pool[int] { return NewFixedPool[int](capacity, opts...) },
		},
		{
			name: "Polling",
			make: func() Pool[int] { return NewPollingPool[int](capacity, opts...) },
		},
		{
			name: "Cond",
			make: func() Pool[int] { return NewCondPool[int](capacity, opts...) },
		},
		{
			name: "Dynamic",
			make: func() Pool[int] { return NewDynamicPool[int](capacity, opts...) },
		},
	}
}

func runStrategyTest(t *testing.T, testFunc func(t *testing.T, s strategyConfig), capacity int, opts ...Option) {
	for _, strategy := range getAllStrategies(capacity, opts...) {
		t.Run(strategy.name, func(t *testing.T) {
			testFunc(t, strategy)
		})
	}
}

// waitForCondition polls fn until it reports true or the deadline passes.
func waitForCondition(t *testing.T, deadline time.Duration, fn func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if fn() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
