// Package metrics exposes lifecycle and readiness metrics for a run.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stackctl/internal/reporting"
	"stackctl/internal/runstate"
	"stackctl/pkg/logging"
)

// Collector records lifecycle updates and probe attempts. It satisfies
// reporting.Reporter.
type Collector struct {
	registry *prometheus.Registry

	up          *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	attempts    *prometheus.CounterVec
	failures    *prometheus.CounterVec
}

// NewCollector registers the stackctl metrics on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		up: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stackctl_process_up",
				Help: "1 while a managed process is READY or RUNNING",
			},
			[]string{"name", "kind"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stackctl_lifecycle_transitions_total",
				Help: "Lifecycle transitions by process name and target state",
			},
			[]string{"name", "state"},
		),
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stackctl_readiness_attempts_total",
				Help: "Readiness probe attempts by process name and result",
			},
			[]string{"name", "result"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stackctl_process_failures_total",
				Help: "Processes that entered FAILED",
			},
			[]string{"name"},
		),
	}
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Report records a lifecycle update.
func (c *Collector) Report(update reporting.Update) {
	if update.State == "" {
		return
	}
	kind := "service"
	if update.SourceType == reporting.SourceTunnel {
		kind = "tunnel"
	}
	c.transitions.WithLabelValues(update.SourceLabel, string(update.State)).Inc()

	switch update.State {
	case runstate.StateReady, runstate.StateRunning:
		c.up.WithLabelValues(update.SourceLabel, kind).Set(1)
	default:
		c.up.WithLabelValues(update.SourceLabel, kind).Set(0)
	}
	if update.State == runstate.StateFailed {
		c.failures.WithLabelValues(update.SourceLabel).Inc()
	}
}

// ObserveAttempt records one readiness probe attempt.
func (c *Collector) ObserveAttempt(name string, attempt int, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.attempts.WithLabelValues(name, result).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logging.Info("Metrics", "serving metrics on http://%s/metrics", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
