package sandbox

import (
	"context"
	"testing"
	"time"
)

func TestCalculateBackoffDoublesAndCaps(t *testing.T) {
	cfg := RecoveryConfig{InitialBackoff: 2 * time.Second, MaxBackoff: 60 * time.Second}
	cases := []struct {
		attempt uint32
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{4, 32 * time.Second},
		{5, 60 * time.Second}, // 64s capped
		{10, 60 * time.Second},
	}
	for _, c := range cases {
		if got := cfg.calculateBackoff(c.attempt); got != c.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func fastRecovery() RecoveryConfig {
	return RecoveryConfig{
		MaxRetries:         3,
		InitialBackoff:     time.Millisecond,
		MaxBackoff:         4 * time.Millisecond,
		HealthCheckTimeout: time.Second,
	}
}

func TestRecoverSucceedsAfterTransientFailures(t *testing.T) {
	sb := newFakeSandbox("r1")
	sb.startErrs = []error{New(ErrExecutionFailed, "transient"), New(ErrExecutionFailed, "transient")}

	r := NewRecoverer(fastRecovery())
	if err := r.Recover(context.Background(), sb); err != nil {
		t.Fatalf("Recover should succeed on third attempt: %v", err)
	}
	if sb.startCalls != 3 {
		t.Errorf("start called %d times, want 3", sb.startCalls)
	}
}

func TestRecoverStopsOnNonRecoverableError(t *testing.T) {
	sb := newFakeSandbox("r2")
	sb.startErrs = []error{New(ErrConfiguration, "bad config"), New(ErrConfiguration, "bad config"), New(ErrConfiguration, "bad config")}

	r := NewRecoverer(fastRecovery())
	err := r.Recover(context.Background(), sb)
	if err == nil {
		t.Fatal("Recover should fail for a non-recoverable error")
	}
	if sb.startCalls != 1 {
		t.Errorf("non-recoverable error should not be retried: %d start calls", sb.startCalls)
	}
}

func TestRecoverExhaustsRetries(t *testing.T) {
	sb := newFakeSandbox("r3")
	sb.startErrs = []error{
		New(ErrExecutionFailed, "down"),
		New(ErrExecutionFailed, "down"),
		New(ErrExecutionFailed, "down"),
		New(ErrExecutionFailed, "down"),
	}

	r := NewRecoverer(fastRecovery())
	if err := r.Recover(context.Background(), sb); err == nil {
		t.Fatal("Recover should report failure after exhausting retries")
	}
	if sb.startCalls != 3 {
		t.Errorf("start called %d times, want MaxRetries=3", sb.startCalls)
	}
}

func TestRecoverRespectsFailedHealthCheck(t *testing.T) {
	sb := newFakeSandbox("r4")
	sb.unhealthy = true

	r := NewRecoverer(fastRecovery())
	if err := r.Recover(context.Background(), sb); err == nil {
		t.Fatal("Recover should fail when every restart stays unhealthy")
	}
}
