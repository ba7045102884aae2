package backoff

import (
	"testing"
	"time"
)

func TestExponential_NextDelay(t *testing.T) {
	s := New(Exponential, 100*time.Millisecond, 5*time.Second, 0)

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
	}

	for _, c := range cases {
		got := s.NextDelay(c.attempt, nil)
		if got != c.want {
			t.Errorf("attempt %d: expected %v, got %v", c.attempt, c.want, got)
		}
	}
}

func TestExponential_CapsAtMaxDelay(t *testing.T) {
	s := New(Exponential, time.Second, 5*time.Second, 0)

	for attempt := 3; attempt < 70; attempt += 7 {
		got := s.NextDelay(attempt, nil)
		if got != 5*time.Second {
			t.Errorf("attempt %d: expected cap of 5s, got %v", attempt, got)
		}
	}
}

func TestExponential_NegativeAttempt(t *testing.T) {
	s := New(Exponential, time.Second, 5*time.Second, 0)

	if got := s.NextDelay(-1, nil); got != 0 {
		t.Errorf("expected 0 for negative attempt, got %v", got)
	}
}

func TestJittered_StaysWithinBounds(t *testing.T) {
	initial := 100 * time.Millisecond
	maxDelay := 10 * time.Second
	factor := 0.2
	s := New(Jittered, initial, maxDelay, factor)

	for attempt := 0; attempt < 6; attempt++ {
		base := time.Duration(int64(1)<<uint(attempt)) * initial
		lo := time.Duration(float64(base) * (1 - factor))
		hi := time.Duration(float64(base) * (1 + factor))
		if hi > maxDelay {
			hi = maxDelay
		}

		for i := 0; i < 50; i++ {
			got := s.NextDelay(attempt, nil)
			if got < lo || got > hi {
				t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt, got, lo, hi)
			}
		}
	}
}

func TestJittered_FactorClamped(t *testing.T) {
	// A factor above 1 would allow negative delays; New must clamp it.
	s := New(Jittered, 100*time.Millisecond, time.Second, 5.0)

	for i := 0; i < 200; i++ {
		if got := s.NextDelay(0, nil); got < 0 {
			t.Fatalf("expected non-negative delay, got %v", got)
		}
	}
}

func TestDecorrelated_FirstDelayIsInitial(t *testing.T) {
	initial := 50 * time.Millisecond
	s := New(Decorrelated, initial, time.Second, 0)

	if got := s.NextDelay(0, nil); got != initial {
		t.Errorf("expected first delay %v, got %v", initial, got)
	}
}

func TestDecorrelated_StaysWithinBounds(t *testing.T) {
	initial := 50 * time.Millisecond
	maxDelay := time.Second
	s := New(Decorrelated, initial, maxDelay, 0)

	s.NextDelay(0, nil)
	for attempt := 1; attempt < 30; attempt++ {
		got := s.NextDelay(attempt, nil)
		if got < initial || got > maxDelay {
			t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt, got, initial, maxDelay)
		}
	}
}

func TestDecorrelated_Reset(t *testing.T) {
	initial := 50 * time.Millisecond
	s := New(Decorrelated, initial, 10*time.Second, 0)

	// Walk the delay up, then reset and confirm we start over.
	for attempt := 0; attempt < 10; attempt++ {
		s.NextDelay(attempt, nil)
	}
	s.Reset()

	if got := s.NextDelay(0, nil); got != initial {
		t.Errorf("expected %v after reset, got %v", initial, got)
	}
}

func TestNew_DefaultsToExponential(t *testing.T) {
	s := New(Type(99), 100*time.Millisecond, time.Second, 0)

	if got := s.NextDelay(1, nil); got != 200*time.Millisecond {
		t.Errorf("expected exponential fallback delay 200ms, got %v", got)
	}
}
