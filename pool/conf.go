package pool

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nbpool/nbpool/internal/backoff"
)

// Option is a functional option accepted by every pool constructor. Options
// that do not apply to a variant (for example WithMinWorkers on a FixedPool)
// are ignored by that variant, as are out-of-range values.
type Option func(*config)

// BackoffType selects the delay strategy used between retry attempts.
type BackoffType int

const (
	// BackoffExponential doubles the delay on each attempt (default).
	BackoffExponential BackoffType = iota
	// BackoffJittered randomizes each exponential delay.
	BackoffJittered
	// BackoffDecorrelated derives each delay from the previous one.
	BackoffDecorrelated
)

type config struct {
	queueSize     int
	pollInterval  time.Duration
	minWorkers    int
	idleTimeout   time.Duration
	spawnCooldown time.Duration
	registry      *Registry
	log           *zap.Logger

	rateLimiter  *rate.Limiter
	maxAttempts  int
	initialDelay time.Duration
	backoffType  BackoffType
	jitterFactor float64
	maxDelay     time.Duration

	beforeTaskStart func()
	onTaskEnd       func(err error, elapsed time.Duration)
	onEachAttempt   func(attempt int, err error)

	backoffStrat backoff.Strategy
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		pollInterval:  10 * time.Millisecond,
		minWorkers:    1,
		idleTimeout:   60 * time.Second,
		spawnCooldown: 10 * time.Millisecond,
		log:           zap.NewNop(),
		maxAttempts:   1,
		initialDelay:  100 * time.Millisecond,
		backoffType:   BackoffExponential,
		jitterFactor:  0.1,
		maxDelay:      5 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	cfg.backoffStrat = cfg.backoffStrategy()
	return cfg
}

// backoffStrategy builds the retry-delay strategy for this configuration.
func (c *config) backoffStrategy() backoff.Strategy {
	var t backoff.Type
	switch c.backoffType {
	case BackoffJittered:
		t = backoff.Jittered
	case BackoffDecorrelated:
		t = backoff.Decorrelated
	default:
		t = backoff.Exponential
	}
	return backoff.New(t, c.initialDelay, c.maxDelay, c.jitterFactor)
}

// WithQueueSize sets the admission-buffer capacity for queue-based pools.
// If not specified, FixedPool defaults to 2x its worker count and
// DynamicPool to 2x its maximum worker count.
func WithQueueSize(size int) Option {
	return func(cfg *config) {
		if size > 0 {
			cfg.queueSize = size
		}
	}
}

// WithPollInterval sets how long PollingPool sleeps between admission checks
// while at capacity. Defaults to 10ms.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.pollInterval = d
		}
	}
}

// WithMinWorkers sets the worker floor for DynamicPool. An idle worker is
// never reclaimed if doing so would drop the pool below this count.
// Defaults to 1.
func WithMinWorkers(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.minWorkers = n
		}
	}
}

// WithIdleTimeout sets how long a DynamicPool worker may sit idle before it
// becomes eligible for reclamation. Defaults to 60s.
func WithIdleTimeout(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.idleTimeout = d
		}
	}
}

// WithSpawnCooldown sets the minimum gap between two scale-up spawns in
// DynamicPool, damping worker-count thrash under bursty submission.
// Defaults to 10ms.
func WithSpawnCooldown(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.spawnCooldown = d
		}
	}
}

// WithRegistry registers the pool with r at construction so that
// r.DrainAll can later drain or replay its unfinished work. See Registry.
func WithRegistry(r *Registry) Option {
	return func(cfg *config) {
		cfg.registry = r
	}
}

// WithLogger sets the logger used for worker lifecycle, scaling and drain
// events. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(cfg *config) {
		if log != nil {
			cfg.log = log
		}
	}
}

// WithRateLimit paces task starts across all workers of the pool.
// tasksPerSecond is the sustained rate, burst the number of starts that may
// happen back to back. Useful when the tasks call an external service.
//
// Example:
//
//	WithRateLimit(10, 5) // 10 tasks/sec, bursts of up to 5
func WithRateLimit(tasksPerSecond float64, burst int) Option {
	return func(cfg *config) {
		if tasksPerSecond > 0 && burst > 0 {
			cfg.rateLimiter = rate.NewLimiter(rate.Limit(tasksPerSecond), burst)
		}
	}
}

// WithRetryPolicy re-runs a failing task up to maxAttempts times before its
// error is delivered. initialDelay seeds the backoff strategy (see
// WithRetryBackoff). Without this option a task gets exactly one attempt.
func WithRetryPolicy(maxAttempts int, initialDelay time.Duration) Option {
	return func(cfg *config) {
		if maxAttempts > 0 {
			cfg.maxAttempts = maxAttempts
		}

		if initialDelay > 0 {
			cfg.initialDelay = initialDelay
		}
	}
}

// WithRetryBackoff selects the delay strategy between retry attempts.
// Defaults to BackoffExponential.
func WithRetryBackoff(t BackoffType) Option {
	return func(cfg *config) {
		cfg.backoffType = t
	}
}

// WithBeforeTaskStart installs a hook invoked right before each task
// execution starts.
func WithBeforeTaskStart(fn func()) Option {
	return func(cfg *config) {
		cfg.beforeTaskStart = fn
	}
}

// WithOnTaskEnd installs a hook invoked after each task finishes, with the
// task's final error (nil on success) and its execution time.
func WithOnTaskEnd(fn func(err error, elapsed time.Duration)) Option {
	return func(cfg *config) {
		cfg.onTaskEnd = fn
	}
}

// WithOnEachAttempt installs a hook invoked after every failed attempt that
// will be retried, with the 1-based attempt number and its error.
func WithOnEachAttempt(fn func(attempt int, err error)) Option {
	return func(cfg *config) {
		cfg.onEachAttempt = fn
	}
}
