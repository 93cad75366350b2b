package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"stackctl/internal/runstate"
	"stackctl/pkg/logging"
)

var notifyContext = signal.NotifyContext

// shutdownContext is cancelled by the first SIGINT or SIGTERM. The handler is
// released as soon as that happens, so a second signal during teardown gets
// the default behaviour and terminates stackctl.
func shutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := notifyContext(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}

// Start brings the stack up and blocks until an interrupt, a terminate
// signal or a process failure. Teardown has completed when it returns.
func (a *Application) Start(ctx context.Context) error {
	stack, env, err := a.resolveEnvironment()
	if err != nil {
		logging.Error("CLI", err, "Refusing to start")
		return err
	}

	if rec, err := runstate.ReadRecord(a.recordPath()); err == nil && len(rec.Processes) > 0 {
		logging.Warn("CLI", "run %s left %d process(es) behind; run `stackctl stop` if they are still up", rec.RunID, len(rec.Processes))
	}

	ctx, stop := shutdownContext(ctx)
	defer stop()

	services := InitializeServices(stack, env, a.creds, a.recordPath(), a.config.Output)
	logging.SetRunID(services.State.ID)
	defer logging.SetRunID("")

	if a.config.MetricsAddr != "" {
		go func() {
			if err := services.Metrics.Serve(ctx, a.config.MetricsAddr); err != nil {
				logging.Error("Metrics", err, "metrics endpoint stopped")
			}
		}()
	}

	logging.Info("CLI", "Starting stack (%d service(s), tunnel enabled: %t). Press Ctrl+C to stop.", len(stack.Services), stack.Tunnel.IsEnabled())
	if err := services.Orchestrator.Run(ctx); err != nil {
		logging.Error("CLI", err, "Stack stopped")
		return err
	}
	logging.Info("CLI", "Stack stopped cleanly")
	return nil
}
