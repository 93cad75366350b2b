package readiness

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackctl/internal/config"
	"stackctl/internal/failure"
)

// countingProbe fails until succeedOn (1-based), 0 means never.
type countingProbe struct {
	calls     int
	succeedOn int
}

func (p *countingProbe) Check(ctx context.Context) error {
	p.calls++
	if p.succeedOn > 0 && p.calls >= p.succeedOn {
		return nil
	}
	return errors.New("connection refused")
}

func (p *countingProbe) String() string { return "fake" }

type sleepRecorder struct {
	slept []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return ctx.Err()
}

func newTestProber() (*Prober, *sleepRecorder) {
	rec := &sleepRecorder{}
	return &Prober{sleep: rec.sleep}, rec
}

func TestWaitReady(t *testing.T) {
	tests := []struct {
		name         string
		succeedOn    int
		maxAttempts  int
		wantAttempts int
		wantSleeps   int
		wantTimeout  bool
	}{
		{"ready on first attempt", 1, 15, 1, 0, false},
		{"ready on fourth attempt", 4, 15, 4, 3, false},
		{"ready on last attempt", 5, 5, 5, 4, false},
		{"never ready", 0, 15, 15, 14, true},
		{"single attempt", 0, 1, 1, 0, true},
		{"zero attempts treated as one", 0, 0, 1, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober, rec := newTestProber()
			probe := &countingProbe{succeedOn: tt.succeedOn}

			attempts, err := prober.WaitReady(context.Background(), "tool-server", probe,
				Policy{Interval: 2 * time.Second, MaxAttempts: tt.maxAttempts})

			assert.Equal(t, tt.wantAttempts, attempts)
			assert.Equal(t, tt.wantAttempts, probe.calls)
			assert.Len(t, rec.slept, tt.wantSleeps)
			for _, d := range rec.slept {
				assert.Equal(t, 2*time.Second, d)
			}

			if tt.wantTimeout {
				var timeout *failure.ReadinessTimeout
				require.ErrorAs(t, err, &timeout)
				assert.Equal(t, "tool-server", timeout.Service)
				assert.Equal(t, tt.wantAttempts, timeout.Attempts)
				assert.Contains(t, err.Error(), "connection refused")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWaitReady_AttemptCountProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("exactly maxAttempts probes before a timeout", prop.ForAll(
		func(maxAttempts int) bool {
			prober, rec := newTestProber()
			probe := &countingProbe{}
			attempts, err := prober.WaitReady(context.Background(), "svc", probe, Policy{MaxAttempts: maxAttempts})
			var timeout *failure.ReadinessTimeout
			return errors.As(err, &timeout) &&
				attempts == maxAttempts &&
				probe.calls == maxAttempts &&
				len(rec.slept) == maxAttempts-1
		},
		gen.IntRange(1, 60),
	))

	properties.Property("success on attempt k stops probing", prop.ForAll(
		func(maxAttempts, k int) bool {
			if k > maxAttempts {
				k = maxAttempts
			}
			prober, _ := newTestProber()
			probe := &countingProbe{succeedOn: k}
			attempts, err := prober.WaitReady(context.Background(), "svc", probe, Policy{MaxAttempts: maxAttempts})
			return err == nil && attempts == k && probe.calls == k
		},
		gen.IntRange(1, 60),
		gen.IntRange(1, 60),
	))

	properties.TestingRun(t)
}

func TestWaitReady_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	probe := &countingProbe{}
	prober := &Prober{sleep: func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}}

	attempts, err := prober.WaitReady(ctx, "svc", probe, Policy{Interval: time.Second, MaxAttempts: 10})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)

	var timeout *failure.ReadinessTimeout
	assert.False(t, errors.As(err, &timeout))
}

func TestWaitReady_ObservesAttempts(t *testing.T) {
	var seen []int
	prober := NewProber(func(name string, attempt int, err error) {
		assert.Equal(t, "tunnel", name)
		seen = append(seen, attempt)
	})
	prober.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	_, err := prober.WaitReady(context.Background(), "tunnel", &countingProbe{succeedOn: 3}, Policy{MaxAttempts: 5})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestHTTPProbe(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"no content", http.StatusNoContent, false},
		{"not found", http.StatusNotFound, true},
		{"server error", http.StatusInternalServerError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := (&HTTPProbe{URL: server.URL + "/.well-known/agent.json"}).Check(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHTTPProbe_StreamingEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, (&HTTPProbe{URL: server.URL + "/sse"}).Check(ctx))
}

func TestHTTPProbe_Unreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	err = (&HTTPProbe{URL: "http://" + addr + "/"}).Check(context.Background())
	assert.Error(t, err)
}

func TestTCPProbe(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()

	assert.NoError(t, (&TCPProbe{Address: addr}).Check(context.Background()))

	listener.Close()
	assert.Error(t, (&TCPProbe{Address: addr}).Check(context.Background()))
}

func TestForService(t *testing.T) {
	def := config.ServiceDefinition{Name: "tool-server", Port: 8000, Health: config.HealthCheckDefinition{Kind: config.HealthKindHTTP, Path: "sse"}}
	assert.Equal(t, "http http://localhost:8000/sse", ForService(def).String())

	def.Health.Kind = config.HealthKindMCP
	def.Health.Path = "/sse"
	assert.Equal(t, "mcp http://localhost:8000/sse", ForService(def).String())

	def.Health.Kind = config.HealthKindTCP
	def.Host = "127.0.0.1"
	assert.Equal(t, "tcp 127.0.0.1:8000", ForService(def).String())

	agent := config.ServiceDefinition{Name: "main-agent", Port: 9111}
	assert.True(t, strings.HasSuffix(ForService(agent).String(), ":9111/"))

	assert.Equal(t, "tcp localhost:9200", ForTunnel(config.TunnelDefinition{LocalPort: 9200}).String())
}
