// Package readiness implements the bounded, fixed-interval readiness wait used
// for every dependency: the tunnel's local port and each service endpoint.
package readiness

import (
	"context"
	"time"

	"stackctl/internal/config"
	"stackctl/internal/failure"
	"stackctl/pkg/logging"
)

// Policy bounds a readiness wait.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
	Timeout     time.Duration // per attempt, 0 means only the parent context applies
}

// PolicyFrom converts a health check definition.
func PolicyFrom(h config.HealthCheckDefinition) Policy {
	return Policy{Interval: h.Interval, MaxAttempts: h.MaxAttempts, Timeout: h.Timeout}
}

// AttemptFunc observes every probe attempt.
type AttemptFunc func(name string, attempt int, err error)

// Prober runs probes under a Policy.
type Prober struct {
	sleep     func(ctx context.Context, d time.Duration) error
	onAttempt AttemptFunc
}

// NewProber returns a Prober that sleeps on the wall clock.
func NewProber(onAttempt AttemptFunc) *Prober {
	return &Prober{sleep: sleepContext, onAttempt: onAttempt}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WaitReady probes until the first success or until MaxAttempts attempts have
// failed, sleeping Interval between attempts (never after the last one). It
// returns the number of attempts made. Exhaustion yields a
// *failure.ReadinessTimeout; cancellation of ctx returns ctx.Err() promptly.
func (p *Prober) WaitReady(ctx context.Context, name string, probe Probe, policy Policy) (int, error) {
	subsystem := "Readiness-" + name
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if policy.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		}
		lastErr = probe.Check(attemptCtx)
		cancel()

		if p.onAttempt != nil {
			p.onAttempt(name, attempt, lastErr)
		}
		if lastErr == nil {
			logging.Info(subsystem, "%s reachable after %d attempt(s)", probe, attempt)
			return attempt, nil
		}
		if err := ctx.Err(); err != nil {
			return attempt, err
		}
		logging.Debug(subsystem, "attempt %d/%d: %v", attempt, maxAttempts, lastErr)

		if attempt < maxAttempts {
			if err := p.sleep(ctx, policy.Interval); err != nil {
				return attempt, err
			}
		}
	}

	return maxAttempts, &failure.ReadinessTimeout{Service: name, Attempts: maxAttempts, Err: lastErr}
}
