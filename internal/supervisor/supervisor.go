// Package supervisor watches a fully started stack and reports the first
// process that stops running or stops answering its health check.
package supervisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stackctl/internal/config"
	"stackctl/internal/failure"
	"stackctl/internal/process"
	"stackctl/internal/readiness"
	"stackctl/internal/runstate"
	"stackctl/pkg/logging"
)

// ProbeFunc returns the health probe for a handle, or nil when it has none.
type ProbeFunc func(h *runstate.Handle) readiness.Probe

// Supervisor monitors every handle in a RunState.
type Supervisor struct {
	settings config.SupervisorSettings
	probeFor ProbeFunc
}

// New creates a supervisor. probeFor is only consulted when re-probing is enabled.
func New(settings config.SupervisorSettings, probeFor ProbeFunc) *Supervisor {
	if settings.PollInterval <= 0 {
		settings.PollInterval = 5 * time.Second
	}
	if settings.FailureThreshold < 1 {
		settings.FailureThreshold = 1
	}
	if settings.LogTailLines <= 0 {
		settings.LogTailLines = 20
	}
	if probeFor == nil {
		probeFor = DefaultProbe
	}
	return &Supervisor{settings: settings, probeFor: probeFor}
}

// DefaultProbe re-uses the readiness probe of a service. The tunnel is only
// watched for exit.
func DefaultProbe(h *runstate.Handle) readiness.Probe {
	if h.Kind != runstate.KindService {
		return nil
	}
	return readiness.ForService(h.Service)
}

// Supervise blocks until a tracked process exits, a service fails
// FailureThreshold consecutive health probes, or ctx is cancelled. The first
// failure is returned as a *failure.ProcessFailure; cancellation returns nil.
func (s *Supervisor) Supervise(ctx context.Context, state *runstate.State) error {
	if state.Empty() {
		<-ctx.Done()
		return nil
	}
	handles := state.All()

	exits := make(chan *runstate.Handle, len(handles))
	watchCtx, stopWatching := context.WithCancel(ctx)
	defer stopWatching()
	for _, h := range handles {
		go func(h *runstate.Handle) {
			select {
			case <-h.Exited():
				exits <- h
			case <-watchCtx.Done():
			}
		}(h)
	}

	logging.Info("Supervisor", "monitoring %d process(es)", len(handles))

	ticker := time.NewTicker(s.settings.PollInterval)
	defer ticker.Stop()
	failures := make(map[string]int)

	for {
		select {
		case <-ctx.Done():
			logging.Debug("Supervisor", "stopping: %v", ctx.Err())
			return nil

		case h := <-exits:
			if stopping(h) {
				continue
			}
			exitErr := h.ExitErr()
			if exitErr == nil {
				exitErr = fmt.Errorf("exited unexpectedly")
			}
			return s.fail(h, exitErr)

		case <-ticker.C:
			for _, h := range handles {
				if !h.Alive() {
					continue
				}
				if err := s.reprobe(ctx, h, failures); err != nil {
					return err
				}
			}
		}
	}
}

func (s *Supervisor) reprobe(ctx context.Context, h *runstate.Handle, failures map[string]int) error {
	if !s.settings.Reprobe || h.State() != runstate.StateRunning {
		return nil
	}
	probe := s.probeFor(h)
	if probe == nil {
		return nil
	}

	timeout := h.Service.Health.Timeout
	if timeout <= 0 {
		timeout = s.settings.PollInterval
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	err := probe.Check(probeCtx)
	cancel()

	if err == nil {
		failures[h.Name] = 0
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}
	failures[h.Name]++
	logging.Warn("Supervisor", "%s health check failed (%d/%d): %v", h.Name, failures[h.Name], s.settings.FailureThreshold, err)
	if failures[h.Name] < s.settings.FailureThreshold {
		return nil
	}
	return s.fail(h, fmt.Errorf("health check failed %d consecutive times: %w", failures[h.Name], err))
}

func (s *Supervisor) fail(h *runstate.Handle, cause error) error {
	if err := h.Transition(runstate.StateFailed); err != nil {
		logging.Debug("Supervisor", "%v", err)
	}
	pf := &failure.ProcessFailure{Service: h.Name, PID: h.PID(), Err: cause}
	if s.settings.LogTailLines > 0 && h.LogPath != "" {
		if tail, err := process.Tail(h.LogPath, s.settings.LogTailLines); err == nil {
			pf.LogTail = tail
		}
	}
	if len(pf.LogTail) > 0 {
		logging.Error("Supervisor", cause, "%s (pid %d) failed, last lines of %s:\n%s", h.Name, h.PID(), h.LogPath, strings.Join(pf.LogTail, "\n"))
	} else {
		logging.Error("Supervisor", cause, "%s (pid %d) failed, see %s", h.Name, h.PID(), h.LogPath)
	}
	return pf
}

func stopping(h *runstate.Handle) bool {
	switch h.State() {
	case runstate.StateStopping, runstate.StateStopped:
		return true
	}
	return false
}
