package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"stackctl/internal/compose"
	"stackctl/internal/config"
	"stackctl/internal/failure"
	"stackctl/internal/process"
	"stackctl/internal/readiness"
	"stackctl/internal/reporting"
	"stackctl/internal/runstate"
	"stackctl/internal/tunnel"
	"stackctl/pkg/logging"
)

// statusProbeTimeout bounds each single-shot probe of `stackctl status`.
var statusProbeTimeout = 2 * time.Second

// Stop terminates processes recorded by a previous run and takes the compose
// counterpart down. Processes are stopped in reverse start order.
func (a *Application) Stop(ctx context.Context) error {
	var errs []error

	path := a.recordPath()
	rec, err := runstate.ReadRecord(path)
	if err != nil {
		return err
	}
	if len(rec.Processes) == 0 {
		logging.Info("CLI", "No recorded run in %s", path)
	}
	for i := len(rec.Processes) - 1; i >= 0; i-- {
		p := rec.Processes[i]
		logging.Info("CLI", "Stopping %s (pid %d) from run %s", p.Name, p.PID, rec.RunID)
		if err := process.TerminatePID(p.PID, p.StartTime, a.stack.Cleanup.GracePeriod); err != nil {
			logging.Warn("CLI", "could not stop %s: %v", p.Name, err)
			errs = append(errs, fmt.Errorf("stop %s: %w", p.Name, err))
		}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}

	runner := compose.NewRunner(a.stack.Compose)
	if runner.Configured() {
		removeImages := a.config.RemoveImages
		if removeImages && !a.config.Yes {
			ok, err := a.confirm("Remove built images?",
				fmt.Sprintf("Images built from %s will be deleted and rebuilt on the next start.", a.stack.Compose.File))
			if err != nil {
				return errors.Join(append(errs, err)...)
			}
			removeImages = ok
		}
		if err := runner.Down(ctx, removeImages); err != nil {
			errs = append(errs, err)
		}
	} else {
		logging.Debug("CLI", "No compose file at %q, skipping compose down", a.stack.Compose.File)
	}

	return errors.Join(errs...)
}

// Check runs every preflight step without starting anything.
func (a *Application) Check(ctx context.Context) error {
	stack, env, err := a.resolveEnvironment()
	if err != nil {
		return err
	}

	rows := []reporting.Row{{Name: "env file", State: "UP", Detail: stack.EnvFile}}

	required := append([]string{}, stack.RequiredEnv...)
	for _, svc := range stack.Services {
		required = append(required, svc.RequiredEnv...)
	}
	if missing := env.Missing(dedupe(required)); len(missing) > 0 {
		return &failure.ConfigError{
			Msg:         fmt.Sprintf("required environment not set: %s", strings.Join(missing, ", ")),
			Remediation: fmt.Sprintf("add %s to %s or export it", strings.Join(missing, ", "), stack.EnvFile),
		}
	}
	rows = append(rows, reporting.Row{Name: "environment", State: "UP", Detail: fmt.Sprintf("%d required variable(s) set", len(dedupe(required)))})

	if stack.Tunnel.IsEnabled() {
		manager := tunnel.NewManager(nil, a.creds, stack.Cleanup.GracePeriod)
		if err := manager.Preflight(ctx, stack.Tunnel); err != nil {
			return err
		}
		rows = append(rows, reporting.Row{Name: tunnel.Name, State: "UP", Detail: "profile " + stack.Tunnel.Profile})
	} else {
		rows = append(rows, reporting.Row{Name: tunnel.Name, State: "DISABLED"})
	}

	fmt.Fprint(a.config.Output, reporting.RenderTable("preflight passed", rows))
	return nil
}

// Status probes every configured endpoint once and prints the result.
func (a *Application) Status(ctx context.Context) error {
	stack := a.stack
	fileVars, _ := config.LoadEnvFile(stack.EnvFile) // best effort, status never fails on config
	config.ResolveEnvironment(&stack, fileVars)
	if a.config.NoTunnel {
		disabled := false
		stack.Tunnel.Enabled = &disabled
	}

	pids := map[string]int{}
	if rec, err := runstate.ReadRecord(a.recordPath()); err == nil {
		for _, p := range rec.Processes {
			pids[p.Name] = p.PID
		}
	}

	endpoints := Endpoints(stack)
	var rows []reporting.Row
	if stack.Tunnel.IsEnabled() {
		rows = append(rows, probeRow(ctx, tunnel.Name, readiness.ForTunnel(stack.Tunnel), pids, endpoints))
	}
	for _, svc := range stack.Services {
		rows = append(rows, probeRow(ctx, svc.Name, readiness.ForService(svc), pids, endpoints))
	}

	fmt.Fprint(a.config.Output, reporting.RenderTable("stack status", rows))
	return nil
}

func probeRow(ctx context.Context, name string, probe readiness.Probe, pids map[string]int, endpoints map[string]string) reporting.Row {
	row := reporting.Row{Name: name, State: "UP", PID: pids[name], Endpoint: endpoints[name]}
	probeCtx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
	defer cancel()
	if err := probe.Check(probeCtx); err != nil {
		row.State = "DOWN"
		row.Detail = err.Error()
	}
	return row
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
