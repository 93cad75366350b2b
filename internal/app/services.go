package app

import (
	"fmt"
	"io"
	"strings"

	"stackctl/internal/cleanup"
	"stackctl/internal/compose"
	"stackctl/internal/config"
	"stackctl/internal/metrics"
	"stackctl/internal/orchestrator"
	"stackctl/internal/process"
	"stackctl/internal/readiness"
	"stackctl/internal/reporting"
	"stackctl/internal/runstate"
	"stackctl/internal/supervisor"
	"stackctl/internal/tunnel"
)

// Services holds every component of one run, wired together.
type Services struct {
	State        *runstate.State
	Store        *reporting.StateStore
	Metrics      *metrics.Collector
	Launcher     *process.Launcher
	Tunnel       *tunnel.Manager
	Cleanup      *cleanup.Coordinator
	Orchestrator *orchestrator.Orchestrator
}

// InitializeServices creates the run state and every collaborator of the
// orchestrator. Lifecycle transitions flow to the console reporter and the
// metrics collector.
func InitializeServices(stack config.StackConfig, env config.Environment, creds tunnel.CredentialChecker, recordPath string, out io.Writer) *Services {
	store := reporting.NewStateStore()
	collector := metrics.NewCollector()
	reporter := reporting.MultiReporter{
		reporting.NewConsoleReporterWithStateStore(store),
		collector,
	}

	state := runstate.New(reporting.Observer(reporter))
	launcher := process.NewLauncher(stack.LogDir)
	manager := tunnel.NewManager(launcher, creds, stack.Cleanup.GracePeriod)
	coordinator := cleanup.New(state, stack.Cleanup, cleanup.Options{
		Compose:    compose.NewRunner(stack.Compose),
		RecordPath: recordPath,
	})

	deps := orchestrator.Deps{
		Launcher:     launcher,
		Prober:       readiness.NewProber(collector.ObserveAttempt),
		Supervisor:   supervisor.New(stack.Supervisor, supervisor.DefaultProbe),
		Cleanup:      coordinator,
		RecordPath:   recordPath,
		LogTailLines: stack.Supervisor.LogTailLines,
		OnReady: func(*runstate.State) {
			fmt.Fprint(out, reporting.RenderTable("stack is up", reporting.RowsFromStore(store, Endpoints(stack))))
		},
	}
	if stack.Tunnel.IsEnabled() {
		deps.Tunnel = manager
	}

	return &Services{
		State:        state,
		Store:        store,
		Metrics:      collector,
		Launcher:     launcher,
		Tunnel:       manager,
		Cleanup:      coordinator,
		Orchestrator: orchestrator.New(stack, env, state, deps),
	}
}

// Endpoints maps every configured process to the address it is probed on.
func Endpoints(stack config.StackConfig) map[string]string {
	out := make(map[string]string, len(stack.Services)+1)
	if stack.Tunnel.IsEnabled() {
		out[tunnel.Name] = fmt.Sprintf("localhost:%d", stack.Tunnel.LocalPort)
	}
	for _, svc := range stack.Services {
		addr := fmt.Sprintf("%s:%d", svc.ProbeHost(), svc.Port)
		if svc.Health.Kind == config.HealthKindTCP {
			out[svc.Name] = addr
			continue
		}
		path := svc.Health.Path
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		out[svc.Name] = "http://" + addr + path
	}
	return out
}
