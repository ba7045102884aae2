package poolconf_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/nbpool/nbpool/contrib/poolconf"
	"github.com/nbpool/nbpool/pool"
)

func TestLoad_DefaultsWhenNothingSet(t *testing.T) {
	v := viper.New()
	poolconf.SetDefaults(v)

	cfg, err := poolconf.Load(v)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Strategy != "fixed" {
		t.Errorf("expected strategy fixed, got %q", cfg.Strategy)
	}
	if cfg.Capacity != 0 {
		t.Errorf("expected capacity 0, got %d", cfg.Capacity)
	}
	if cfg.Retry.MaxAttempts != 1 {
		t.Errorf("expected 1 max attempt, got %d", cfg.Retry.MaxAttempts)
	}
	if len(cfg.Options()) != 0 {
		t.Errorf("expected defaults to produce no options, got %d", len(cfg.Options()))
	}
}

func TestLoad_ReadsOverrides(t *testing.T) {
	v := viper.New()
	poolconf.SetDefaults(v)
	v.Set("strategy", "dynamic")
	v.Set("capacity", 8)
	v.Set("queue_size", 32)
	v.Set("min_workers", 2)
	v.Set("idle_timeout_ms", 250)
	v.Set("spawn_cooldown_ms", 5)
	v.Set("retry.max_attempts", 3)
	v.Set("retry.backoff", "jittered")
	v.Set("retry.initial_delay_ms", 20)
	v.Set("rate_limit.per_second", 50.0)
	v.Set("rate_limit.burst", 5)

	cfg, err := poolconf.Load(v)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Strategy != "dynamic" {
		t.Errorf("expected strategy dynamic, got %q", cfg.Strategy)
	}
	if cfg.Capacity != 8 {
		t.Errorf("expected capacity 8, got %d", cfg.Capacity)
	}
	if cfg.QueueSize != 32 {
		t.Errorf("expected queue size 32, got %d", cfg.QueueSize)
	}
	if cfg.MinWorkers != 2 {
		t.Errorf("expected 2 min workers, got %d", cfg.MinWorkers)
	}
	if cfg.IdleTimeout() != 250*time.Millisecond {
		t.Errorf("expected idle timeout 250ms, got %v", cfg.IdleTimeout())
	}
	if cfg.SpawnCooldown() != 5*time.Millisecond {
		t.Errorf("expected spawn cooldown 5ms, got %v", cfg.SpawnCooldown())
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("expected 3 max attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.Backoff != "jittered" {
		t.Errorf("expected jittered backoff, got %q", cfg.Retry.Backoff)
	}
	if cfg.Retry.InitialDelay() != 20*time.Millisecond {
		t.Errorf("expected initial delay 20ms, got %v", cfg.Retry.InitialDelay())
	}
	if cfg.RateLimit.PerSecond != 50 {
		t.Errorf("expected 50 tasks/sec, got %v", cfg.RateLimit.PerSecond)
	}

	// Everything above the defaults should translate into options.
	if n := len(cfg.Options()); n != 7 {
		t.Errorf("expected 7 options, got %d", n)
	}
}

func TestLoad_NilViperReturnsDefaults(t *testing.T) {
	cfg, err := poolconf.Load(nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Strategy != "fixed" {
		t.Errorf("expected strategy fixed, got %q", cfg.Strategy)
	}
}

func TestLoad_SubSectionOfLargerConfig(t *testing.T) {
	v := viper.New()
	v.Set("app_name", "reports")
	v.Set("workers.strategy", "cond")
	v.Set("workers.capacity", 4)

	cfg, err := poolconf.Load(v.Sub("workers"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Strategy != "cond" {
		t.Errorf("expected strategy cond, got %q", cfg.Strategy)
	}
	if cfg.Capacity != 4 {
		t.Errorf("expected capacity 4, got %d", cfg.Capacity)
	}
}

func TestLoad_RejectsUnknownStrategy(t *testing.T) {
	v := viper.New()
	v.Set("strategy", "fibers")

	_, err := poolconf.Load(v)
	if err == nil {
		t.Fatal("expected an error for an unknown strategy")
	}
	if !strings.Contains(err.Error(), "unknown pool strategy") {
		t.Errorf("expected unknown-strategy error, got %v", err)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*poolconf.Config)
		wantMsg string
	}{
		{
			name:    "negative capacity",
			mutate:  func(c *poolconf.Config) { c.Capacity = -1 },
			wantMsg: "capacity",
		},
		{
			name: "min workers above capacity",
			mutate: func(c *poolconf.Config) {
				c.Capacity = 2
				c.MinWorkers = 5
			},
			wantMsg: "exceeds capacity",
		},
		{
			name:    "unknown backoff",
			mutate:  func(c *poolconf.Config) { c.Retry.Backoff = "cubic" },
			wantMsg: "unknown retry backoff",
		},
		{
			name: "rate without burst",
			mutate: func(c *poolconf.Config) {
				c.RateLimit.PerSecond = 10
				c.RateLimit.Burst = 0
			},
			wantMsg: "rate_limit.burst",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := poolconf.Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantMsg, err)
			}
		})
	}
}

func TestFromMap_CoercesLooseTypes(t *testing.T) {
	// Values shaped the way a decoded JSON payload delivers them: numbers
	// as float64, some settings as strings.
	cfg, err := poolconf.FromMap(map[string]any{
		"strategy":           "cond",
		"capacity":           float64(6),
		"retry.max_attempts": "3",
		"retry.backoff":      "decorrelated",
		"ignored_key":        true,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Strategy != "cond" {
		t.Errorf("expected strategy cond, got %q", cfg.Strategy)
	}
	if cfg.Capacity != 6 {
		t.Errorf("expected capacity 6, got %d", cfg.Capacity)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("expected 3 max attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.Backoff != "decorrelated" {
		t.Errorf("expected decorrelated backoff, got %q", cfg.Retry.Backoff)
	}
}

func TestFromMap_ValidatesResult(t *testing.T) {
	_, err := poolconf.FromMap(map[string]any{"strategy": "warp"})
	if err == nil {
		t.Fatal("expected an error for an unknown strategy")
	}
}

func TestNew_BuildsEachStrategy(t *testing.T) {
	for _, name := range []string{"fixed", "polling", "cond", "dynamic"} {
		t.Run(name, func(t *testing.T) {
			cfg := poolconf.Default()
			cfg.Strategy = name
			cfg.Capacity = 2

			p, err := poolconf.New[int](cfg)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			defer p.Shutdown(true)

			futures := make([]*pool.Future[int], 5)
			for i := range futures {
				n := i
				futures[i] = p.Submit(context.Background(), func(ctx context.Context) (int, error) {
					return n * 2, nil
				})
			}
			for i, fut := range futures {
				got, err := fut.Get()
				if err != nil {
					t.Fatalf("task %d: expected no error, got %v", i, err)
				}
				if got != i*2 {
					t.Errorf("task %d: expected %d, got %d", i, i*2, got)
				}
			}
		})
	}
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	p, err := poolconf.New[string](nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer p.Shutdown(true)

	got, err := p.Run(context.Background(), func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != "ok" {
		t.Errorf("expected ok, got %q", got)
	}
}

func TestNew_AppliesRetryFromConfig(t *testing.T) {
	cfg := poolconf.Default()
	cfg.Capacity = 1
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.InitialDelayMs = 5

	p, err := poolconf.New[int](cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer p.Shutdown(true)

	var attempts atomic.Int32
	got, err := p.Run(context.Background(), func(ctx context.Context) (int, error) {
		if attempts.Add(1) < 3 {
			return 0, errors.New("not yet")
		}
		return 99, nil
	})
	if err != nil {
		t.Fatalf("expected the final attempt to succeed, got %v", err)
	}
	if got != 99 {
		t.Errorf("expected 99, got %d", got)
	}
	if n := attempts.Load(); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestNew_ExtraOptionsApply(t *testing.T) {
	cfg := poolconf.Default()
	cfg.Capacity = 2

	var started atomic.Int32
	p, err := poolconf.New[int](cfg, pool.WithBeforeTaskStart(func() {
		started.Add(1)
	}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	for i := 0; i < 3; i++ {
		p.Submit(context.Background(), func(ctx context.Context) (int, error) {
			return 0, nil
		})
	}
	p.Shutdown(true)

	if n := started.Load(); n != 3 {
		t.Errorf("expected the hook to fire 3 times, got %d", n)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := &poolconf.Config{Strategy: "warp"}

	_, err := poolconf.New[int](cfg)
	if err == nil {
		t.Fatal("expected an error for an unknown strategy")
	}
}
