package sandbox

import (
	"context"
	"log/slog"
	"time"
)

// RecoveryConfig bounds the stop-then-start retry loop
type RecoveryConfig struct {
	MaxRetries            uint32
	InitialBackoff        time.Duration
	MaxBackoff            time.Duration
	HealthCheckTimeout    time.Duration
}

// DefaultRecoveryConfig returns the default retry policy: 3 retries,
// 2s initial backoff doubling to a 60s cap, 10s health-check timeout.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		MaxRetries:         3,
		InitialBackoff:     2 * time.Second,
		MaxBackoff:         60 * time.Second,
		HealthCheckTimeout: 10 * time.Second,
	}
}

// calculateBackoff returns initial * 2^attempt, capped at MaxBackoff.
func (c RecoveryConfig) calculateBackoff(attempt uint32) time.Duration {
	backoff := c.InitialBackoff
	for i := uint32(0); i < attempt; i++ {
		backoff *= 2
	}
	if backoff > c.MaxBackoff {
		backoff = c.MaxBackoff
	}
	return backoff
}

// isNonRecoverableForRestart reports whether err's kind is one recovery
// must not retry.
func isNonRecoverableForRestart(err *Error) bool {
	switch err.Kind {
	case ErrSecurityViolation, ErrUnsupportedPlatform, ErrConfiguration, ErrParse:
		return true
	default:
		return false
	}
}

// Recoverer drives stop-then-start recovery for a single Sandbox.
type Recoverer struct {
	config RecoveryConfig
}

// NewRecoverer constructs a Recoverer with cfg.
func NewRecoverer(cfg RecoveryConfig) *Recoverer {
	return &Recoverer{config: cfg}
}

// Recover calls Stop then Start on sb up to MaxRetries times, using
// exponential backoff between attempts and a bounded health check after
// each start. It returns the last error if every attempt fails, or nil on
// the first successful, healthy restart.
func (r *Recoverer) Recover(ctx context.Context, sb Sandbox) error {
	var lastErr error
	for attempt := uint32(0); attempt < r.config.MaxRetries; attempt++ {
		_ = sb.Stop(ctx)

		if err := sb.Start(ctx); err != nil {
			var sbErr *Error
			if asErr, ok := err.(*Error); ok {
				sbErr = asErr
			} else {
				sbErr = Wrap(ErrCreationFailed, err)
			}
			if isNonRecoverableForRestart(sbErr) {
				return sbErr
			}
			lastErr = sbErr
			if attempt < r.config.MaxRetries-1 {
				sleepOrDone(ctx, r.config.calculateBackoff(attempt))
			}
			continue
		}

		hctx, cancel := context.WithTimeout(ctx, r.config.HealthCheckTimeout)
		health := sb.HealthCheck(hctx)
		cancel()
		if health.Healthy {
			return nil
		}
		lastErr = New(ErrExecutionFailed, "health check failed after restart: %s", health.Message)
		if attempt < r.config.MaxRetries-1 {
			sleepOrDone(ctx, r.config.calculateBackoff(attempt))
		}
	}
	if lastErr != nil {
		slog.Warn("sandbox: recovery exhausted retries", "retries", r.config.MaxRetries, "error", lastErr)
	}
	return lastErr
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
