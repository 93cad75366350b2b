package orchestrator

import (
	"context"
	"errors"
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

// TunnelStarter spawns the port-forward session.
type TunnelStarter interface {
	Start(ctx context.Context, def config.TunnelDefinition, env config.Environment, state *runstate.State) (*runstate.Handle, error)
}

// ServiceLauncher validates and spawns one service.
type ServiceLauncher interface {
	Launch(ctx context.Context, def config.ServiceDefinition, env config.Environment, state *runstate.State) (*runstate.Handle, error)
}

// ReadinessWaiter runs a bounded readiness wait.
type ReadinessWaiter interface {
	WaitReady(ctx context.Context, name string, probe readiness.Probe, policy readiness.Policy) (int, error)
}

// Supervisor monitors a started stack.
type Supervisor interface {
	Supervise(ctx context.Context, state *runstate.State) error
}

// Cleaner tears the run down.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// Deps are the collaborators of an Orchestrator. Tunnel may be nil when the
// tunnel is disabled.
type Deps struct {
	Tunnel     TunnelStarter
	Launcher   ServiceLauncher
	Prober     ReadinessWaiter
	Supervisor Supervisor
	Cleanup    Cleaner

	// RecordPath, when set, receives the run record after every spawn.
	RecordPath string
	// OnReady is called once every process is RUNNING, before supervision.
	OnReady func(state *runstate.State)

	ServiceProbe func(def config.ServiceDefinition) readiness.Probe
	TunnelProbe  func(def config.TunnelDefinition) readiness.Probe

	CleanupTimeout time.Duration
	LogTailLines   int
}

// Orchestrator drives one run of the stack.
type Orchestrator struct {
	cfg   config.StackConfig
	env   config.Environment
	state *runstate.State
	deps  Deps
}

// New creates an orchestrator for cfg. env is the resolved environment and
// state the RunState the run will populate.
func New(cfg config.StackConfig, env config.Environment, state *runstate.State, deps Deps) *Orchestrator {
	if deps.ServiceProbe == nil {
		deps.ServiceProbe = readiness.ForService
	}
	if deps.TunnelProbe == nil {
		deps.TunnelProbe = readiness.ForTunnel
	}
	if deps.CleanupTimeout <= 0 {
		deps.CleanupTimeout = 30 * time.Second
	}
	return &Orchestrator{cfg: cfg, env: env, state: state, deps: deps}
}

// State returns the run's RunState.
func (o *Orchestrator) State() *runstate.State {
	return o.state
}

// Run starts the stack, supervises it until ctx is cancelled or a process
// fails, and always cleans up before returning. Cancellation is a clean
// shutdown and returns nil.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	order, err := StartOrder(o.cfg.Services)
	if err != nil {
		return err
	}
	if missing := o.env.Missing(o.cfg.RequiredEnv); len(missing) > 0 {
		return &failure.ConfigError{
			Msg:         fmt.Sprintf("required environment not set: %s", strings.Join(missing, ", ")),
			Remediation: fmt.Sprintf("add %s to %s or export it", strings.Join(missing, ", "), o.cfg.EnvFile),
		}
	}

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), o.deps.CleanupTimeout)
		defer cancel()
		if cerr := o.deps.Cleanup.Cleanup(cleanupCtx); cerr != nil {
			if err == nil {
				err = cerr
			} else {
				logging.Error("Orchestrator", cerr, "cleanup after failure reported errors")
			}
		}
	}()

	if err := o.start(ctx, order); err != nil {
		if isCancellation(ctx, err) {
			logging.Info("Orchestrator", "startup interrupted, shutting down")
			return nil
		}
		return err
	}

	if err := o.deps.Supervisor.Supervise(ctx, o.state); err != nil {
		return err
	}
	logging.Info("Orchestrator", "shutdown requested")
	return nil
}

func (o *Orchestrator) start(ctx context.Context, order []config.ServiceDefinition) error {
	tunnelEnabled := o.cfg.Tunnel.IsEnabled() && o.deps.Tunnel != nil
	if tunnelEnabled {
		h, err := o.deps.Tunnel.Start(ctx, o.cfg.Tunnel, o.env, o.state)
		if err != nil {
			return err
		}
		o.writeRecord()
		if err := o.waitReady(ctx, h, o.deps.TunnelProbe(o.cfg.Tunnel), readiness.PolicyFrom(o.cfg.Tunnel.Readiness)); err != nil {
			return err
		}
	}

	for _, def := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if def.RequiresTunnel && !tunnelEnabled {
			logging.Warn("Orchestrator", "%s expects the tunnel but it is disabled, assuming the data store is reachable directly", def.Name)
		}

		h, err := o.deps.Launcher.Launch(ctx, def, o.env, o.state)
		if err != nil {
			return err
		}
		o.writeRecord()
		if err := o.waitReady(ctx, h, o.deps.ServiceProbe(def), readiness.PolicyFrom(def.Health)); err != nil {
			return err
		}
	}

	for _, h := range o.state.All() {
		if err := h.Transition(runstate.StateRunning); err != nil {
			return err
		}
	}
	logging.Info("Orchestrator", "all %d process(es) running", len(o.state.All()))
	if o.deps.OnReady != nil {
		o.deps.OnReady(o.state)
	}
	return nil
}

// waitReady polls the handle's endpoint and fails fast if the process exits
// while it is being waited on.
func (o *Orchestrator) waitReady(ctx context.Context, h *runstate.Handle, probe readiness.Probe, policy readiness.Policy) error {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-h.Exited():
			cancel()
		case <-waitCtx.Done():
		}
	}()

	attempts, err := o.deps.Prober.WaitReady(waitCtx, h.Name, probe, policy)
	if err == nil {
		h.SetAttempts(attempts)
		return h.Transition(runstate.StateReady)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if !h.Alive() && h.PID() > 0 {
		cause := h.ExitErr()
		if cause == nil {
			cause = errors.New("exited before becoming ready")
		}
		pf := &failure.ProcessFailure{Service: h.Name, PID: h.PID(), Err: cause}
		if tail, terr := process.Tail(h.LogPath, o.deps.LogTailLines); terr == nil {
			pf.LogTail = tail
		}
		err = pf
	}
	if terr := h.Transition(runstate.StateFailed); terr != nil {
		logging.Debug("Orchestrator", "%v", terr)
	}
	return err
}

func (o *Orchestrator) writeRecord() {
	if o.deps.RecordPath == "" {
		return
	}
	if err := o.state.WriteRecord(o.deps.RecordPath); err != nil {
		logging.Warn("Orchestrator", "could not write run record %s: %v", o.deps.RecordPath, err)
	}
}

func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
