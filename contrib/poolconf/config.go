// Package poolconf loads pool settings from viper and builds pools from
// them, so hosts can size and tune their pools through the same
// configuration files as the rest of the application.
//
// The package never touches the global viper instance. Callers hand in the
// *viper.Viper they want settings read from, typically a Sub tree:
//
//	poolconf.SetDefaults(v)
//	cfg, err := poolconf.Load(v.Sub("workers"))
//	if err != nil {
//		return err
//	}
//	p, err := poolconf.New[Report](cfg)
package poolconf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/nbpool/nbpool/pool"
)

// Config holds every pool setting that can come from configuration.
// Durations are carried as millisecond integers so they read naturally from
// YAML and environment variables; use the accessor methods to get
// time.Duration values.
type Config struct {
	// Strategy selects the pool variant: "fixed", "polling", "cond" or
	// "dynamic". Empty means "fixed".
	Strategy string `mapstructure:"strategy"`

	// Capacity is the maximum number of tasks running at once. Zero means
	// GOMAXPROCS.
	Capacity int `mapstructure:"capacity"`

	// QueueSize is the submission buffer size for the fixed and dynamic
	// variants. Zero keeps the pool's own default.
	QueueSize int `mapstructure:"queue_size"`

	// MinWorkers is the worker floor kept alive by the dynamic variant.
	MinWorkers int `mapstructure:"min_workers"`

	// IdleTimeoutMs is how long a dynamic worker may sit idle before it is
	// reclaimed, in milliseconds.
	IdleTimeoutMs int `mapstructure:"idle_timeout_ms"`

	// PollIntervalMs is the admission recheck interval of the polling
	// variant, in milliseconds.
	PollIntervalMs int `mapstructure:"poll_interval_ms"`

	// SpawnCooldownMs is the minimum gap between dynamic scale-up steps, in
	// milliseconds.
	SpawnCooldownMs int `mapstructure:"spawn_cooldown_ms"`

	// Retry configures task re-execution on failure.
	Retry RetryConfig `mapstructure:"retry"`

	// RateLimit throttles task starts across the whole pool.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RetryConfig mirrors pool.WithRetryPolicy and pool.WithRetryBackoff.
type RetryConfig struct {
	// MaxAttempts is the total number of tries a failing task gets. Values
	// below two disable retries.
	MaxAttempts int `mapstructure:"max_attempts"`

	// Backoff names the delay strategy between attempts: "exponential",
	// "jittered" or "decorrelated".
	Backoff string `mapstructure:"backoff"`

	// InitialDelayMs seeds the backoff strategy, in milliseconds.
	InitialDelayMs int `mapstructure:"initial_delay_ms"`
}

// RateLimitConfig mirrors pool.WithRateLimit.
type RateLimitConfig struct {
	// PerSecond is the sustained task start rate. Zero disables limiting.
	PerSecond float64 `mapstructure:"per_second"`

	// Burst is the number of starts allowed back to back.
	Burst int `mapstructure:"burst"`
}

// Default returns the configuration used when no settings are present. It
// describes a fixed pool sized to GOMAXPROCS with no retries and no rate
// limit, matching what pool.NewFixedPool does on its own.
func Default() *Config {
	return &Config{
		Strategy: "fixed",
		Retry: RetryConfig{
			MaxAttempts: 1,
			Backoff:     "exponential",
		},
	}
}

// SetDefaults registers the default values on v so that partial
// configuration files only need to name what they change.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("strategy", d.Strategy)
	v.SetDefault("capacity", d.Capacity)
	v.SetDefault("queue_size", d.QueueSize)
	v.SetDefault("min_workers", d.MinWorkers)
	v.SetDefault("idle_timeout_ms", d.IdleTimeoutMs)
	v.SetDefault("poll_interval_ms", d.PollIntervalMs)
	v.SetDefault("spawn_cooldown_ms", d.SpawnCooldownMs)
	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.backoff", d.Retry.Backoff)
	v.SetDefault("retry.initial_delay_ms", d.Retry.InitialDelayMs)
	v.SetDefault("rate_limit.per_second", d.RateLimit.PerSecond)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)
}

// Load reads a Config out of v and validates it. A nil v returns the
// defaults, so callers can pass the result of Sub for a section that may be
// absent.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		return Default(), nil
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal pool config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromMap builds a Config from loosely typed settings, such as sizing hints
// carried in a job payload. Nested fields use dotted keys
// ("retry.max_attempts"). Values are coerced, so JSON numbers and numeric
// strings both work. Unknown keys are ignored.
func FromMap(m map[string]any) (*Config, error) {
	cfg := Default()
	for k, val := range m {
		switch k {
		case "strategy":
			cfg.Strategy = cast.ToString(val)
		case "capacity":
			cfg.Capacity = cast.ToInt(val)
		case "queue_size":
			cfg.QueueSize = cast.ToInt(val)
		case "min_workers":
			cfg.MinWorkers = cast.ToInt(val)
		case "idle_timeout_ms":
			cfg.IdleTimeoutMs = cast.ToInt(val)
		case "poll_interval_ms":
			cfg.PollIntervalMs = cast.ToInt(val)
		case "spawn_cooldown_ms":
			cfg.SpawnCooldownMs = cast.ToInt(val)
		case "retry.max_attempts":
			cfg.Retry.MaxAttempts = cast.ToInt(val)
		case "retry.backoff":
			cfg.Retry.Backoff = cast.ToString(val)
		case "retry.initial_delay_ms":
			cfg.Retry.InitialDelayMs = cast.ToInt(val)
		case "rate_limit.per_second":
			cfg.RateLimit.PerSecond = cast.ToFloat64(val)
		case "rate_limit.burst":
			cfg.RateLimit.Burst = cast.ToInt(val)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the pool constructors would
// silently ignore, surfacing them as errors instead.
func (c *Config) Validate() error {
	switch normalize(c.Strategy) {
	case "", "fixed", "polling", "cond", "dynamic":
	default:
		return fmt.Errorf("unknown pool strategy %q", c.Strategy)
	}

	if c.Capacity < 0 {
		return fmt.Errorf("capacity must not be negative, got %d", c.Capacity)
	}
	if c.MinWorkers < 0 {
		return fmt.Errorf("min_workers must not be negative, got %d", c.MinWorkers)
	}
	if c.Capacity > 0 && c.MinWorkers > c.Capacity {
		return fmt.Errorf("min_workers %d exceeds capacity %d", c.MinWorkers, c.Capacity)
	}

	switch normalize(c.Retry.Backoff) {
	case "", "exponential", "jittered", "decorrelated":
	default:
		return fmt.Errorf("unknown retry backoff %q", c.Retry.Backoff)
	}

	if c.RateLimit.PerSecond > 0 && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit.burst must be positive when rate_limit.per_second is set")
	}
	return nil
}

// IdleTimeout returns IdleTimeoutMs as a time.Duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMs) * time.Millisecond
}

// PollInterval returns PollIntervalMs as a time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// SpawnCooldown returns SpawnCooldownMs as a time.Duration.
func (c *Config) SpawnCooldown() time.Duration {
	return time.Duration(c.SpawnCooldownMs) * time.Millisecond
}

// InitialDelay returns InitialDelayMs as a time.Duration.
func (r *RetryConfig) InitialDelay() time.Duration {
	return time.Duration(r.InitialDelayMs) * time.Millisecond
}

// Options translates the configuration into pool options. Zero-valued
// fields produce no option, leaving the pool's own defaults in place.
func (c *Config) Options() []pool.Option {
	var opts []pool.Option

	if c.QueueSize > 0 {
		opts = append(opts, pool.WithQueueSize(c.QueueSize))
	}
	if c.MinWorkers > 0 {
		opts = append(opts, pool.WithMinWorkers(c.MinWorkers))
	}
	if c.IdleTimeoutMs > 0 {
		opts = append(opts, pool.WithIdleTimeout(c.IdleTimeout()))
	}
	if c.PollIntervalMs > 0 {
		opts = append(opts, pool.WithPollInterval(c.PollInterval()))
	}
	if c.SpawnCooldownMs > 0 {
		opts = append(opts, pool.WithSpawnCooldown(c.SpawnCooldown()))
	}
	if c.Retry.MaxAttempts > 1 {
		opts = append(opts, pool.WithRetryPolicy(c.Retry.MaxAttempts, c.Retry.InitialDelay()))
		opts = append(opts, pool.WithRetryBackoff(backoffType(c.Retry.Backoff)))
	}
	if c.RateLimit.PerSecond > 0 {
		opts = append(opts, pool.WithRateLimit(c.RateLimit.PerSecond, c.RateLimit.Burst))
	}
	return opts
}

// New builds the pool variant named by cfg.Strategy. Extra options are
// applied after the configured ones, so callers can override settings or
// attach hooks and loggers that have no configuration representation.
func New[R any](cfg *Config, extra ...pool.Option) (pool.Pool[R], error) {
	if cfg == nil {
		cfg = Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := append(cfg.Options(), extra...)
	switch normalize(cfg.Strategy) {
	case "", "fixed":
		return pool.NewFixedPool[R](cfg.Capacity, opts...), nil
	case "polling":
		return pool.NewPollingPool[R](cfg.Capacity, opts...), nil
	case "cond":
		return pool.NewCondPool[R](cfg.Capacity, opts...), nil
	case "dynamic":
		return pool.NewDynamicPool[R](cfg.Capacity, opts...), nil
	default:
		return nil, fmt.Errorf("unknown pool strategy %q", cfg.Strategy)
	}
}

func backoffType(name string) pool.BackoffType {
	switch normalize(name) {
	case "jittered":
		return pool.BackoffJittered
	case "decorrelated":
		return pool.BackoffDecorrelated
	default:
		return pool.BackoffExponential
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
