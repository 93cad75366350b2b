package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackctl/internal/config"
	"stackctl/internal/failure"
	"stackctl/internal/process"
	"stackctl/internal/runstate"
)

type fakeCreds struct {
	identity string
	err      error
	calls    int
}

func (f *fakeCreds) CheckCredentials(ctx context.Context, profile, region string) (string, error) {
	f.calls++
	return f.identity, f.err
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

type stackFiles struct {
	dir     string
	envFile string
	logDir  string
	config  string
}

// writeStack writes a config file overriding every default service so no
// test depends on the default ports. toolPort is the tool server port.
func writeStack(t *testing.T, toolPort int, envLines string) stackFiles {
	t.Helper()
	dir := t.TempDir()
	f := stackFiles{
		dir:     dir,
		envFile: filepath.Join(dir, ".env"),
		logDir:  filepath.Join(dir, "logs"),
		config:  filepath.Join(dir, "config.yaml"),
	}
	if envLines != "" {
		require.NoError(t, os.WriteFile(f.envFile, []byte(envLines), 0o600))
	}

	yaml := fmt.Sprintf(`envFile: %s
logDir: %s
tunnel:
  target: i-0123456789abcdef0
  remoteHost: search.example.internal
  localPort: %d
services:
  - name: tool-server
    command: ["python", "main.py"]
    host: 127.0.0.1
    port: %d
    health:
      kind: http
      path: /sse
  - name: search-agent
    command: ["python", "main.py"]
    host: 127.0.0.1
    port: %d
  - name: expert-agent
    command: ["python", "a2a_server.py"]
    host: 127.0.0.1
    port: %d
  - name: main-agent
    command: ["python", "a2a_server.py"]
    host: 127.0.0.1
    port: %d
compose:
  file: %s
cleanup:
  gracePeriod: 2s
`, f.envFile, f.logDir, freePort(t), toolPort, freePort(t), freePort(t), freePort(t), filepath.Join(dir, "docker-compose.yml"))
	require.NoError(t, os.WriteFile(f.config, []byte(yaml), 0o644))
	return f
}

func newTestApp(t *testing.T, f stackFiles, mutate func(*Config)) (*Application, *bytes.Buffer) {
	t.Helper()
	t.Setenv("USE_TUNNEL", "")
	t.Setenv("TUNNEL_TARGET", "")
	t.Setenv("TUNNEL_REMOTE_HOST", "")

	out := &bytes.Buffer{}
	cfg := &Config{ConfigPath: f.config, Output: out}
	if mutate != nil {
		mutate(cfg)
	}
	a, err := NewApplication(cfg)
	require.NoError(t, err)
	a.confirm = func(title, description string) (bool, error) {
		t.Fatalf("unexpected confirmation prompt %q", title)
		return false, nil
	}
	return a, out
}

func TestNewApplication_ConfigErrors(t *testing.T) {
	_, err := NewApplication(&Config{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.yaml")
}

func TestNewApplication_EnvFileOverride(t *testing.T) {
	f := writeStack(t, freePort(t), "")
	a, _ := newTestApp(t, f, func(c *Config) { c.EnvFile = "/elsewhere/.env" })
	assert.Equal(t, "/elsewhere/.env", a.stack.EnvFile)
	assert.Equal(t, filepath.Join(f.logDir, "run.json"), a.recordPath())
}

func TestStart_MissingEnvFile(t *testing.T) {
	f := writeStack(t, freePort(t), "")
	a, _ := newTestApp(t, f, func(c *Config) { c.NoTunnel = true })

	err := a.Start(context.Background())

	var cfgErr *failure.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), f.envFile)
	assert.Equal(t, failure.ExitConfig, failure.ExitCode(err))

	// nothing was launched, so neither logs nor a run record exist
	_, statErr := os.Stat(f.logDir)
	assert.True(t, os.IsNotExist(statErr), "log directory should not be created")
}

func TestStart_InvalidTunnel(t *testing.T) {
	f := writeStack(t, freePort(t), "OPENAI_API_KEY=sk-test\n")
	a, _ := newTestApp(t, f, nil)
	a.stack.Tunnel.Target = ""

	err := a.Start(context.Background())

	var cfgErr *failure.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "tunnel.target")
}

// fakeTools puts stub aws and session-manager-plugin binaries first on PATH.
func fakeTools(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"aws", "session-manager-plugin"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\nexit 0\n"), 0o755))
	}
	t.Setenv("PATH", dir)
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name      string
		envLines  string
		noTunnel  bool
		tools     bool
		credErr   error
		wantErrAs interface{}
		wantErr   string
		wantOut   []string
		wantCalls int
	}{
		{
			name:     "tunnel disabled with key",
			envLines: "OPENAI_API_KEY=sk-test\n",
			noTunnel: true,
			wantOut:  []string{"preflight passed", "env file", "tunnel", "DISABLED"},
		},
		{
			name:      "missing key",
			envLines:  "OTHER=1\n",
			noTunnel:  true,
			wantErrAs: new(*failure.ConfigError),
			wantErr:   "OPENAI_API_KEY",
		},
		{
			name:      "tunnel with valid credentials",
			envLines:  "OPENAI_API_KEY=sk-test\n",
			tools:     true,
			wantOut:   []string{"preflight passed", "profile staging"},
			wantCalls: 1,
		},
		{
			name:      "tunnel with expired credentials",
			envLines:  "OPENAI_API_KEY=sk-test\n",
			tools:     true,
			credErr:   errors.New("token expired"),
			wantErrAs: new(*failure.TunnelError),
			wantErr:   "aws sso login --profile staging",
			wantCalls: 1,
		},
		{
			name:      "tunnel without tooling",
			envLines:  "OPENAI_API_KEY=sk-test\n",
			wantErrAs: new(*failure.TunnelError),
			wantErr:   "not found on PATH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := writeStack(t, freePort(t), tt.envLines)
			a, out := newTestApp(t, f, func(c *Config) { c.NoTunnel = tt.noTunnel })
			t.Setenv("AWS_PROFILE", "")
			t.Setenv("OPENAI_API_KEY", "")
			require.NoError(t, os.Unsetenv("OPENAI_API_KEY"))
			if tt.tools {
				fakeTools(t)
			} else {
				t.Setenv("PATH", t.TempDir())
			}
			creds := &fakeCreds{identity: "arn:aws:sts::123456789012:assumed-role/dev/me", err: tt.credErr}
			a.creds = creds

			err := a.Check(context.Background())

			assert.Equal(t, tt.wantCalls, creds.calls)
			if tt.wantErrAs != nil {
				require.Error(t, err)
				assert.ErrorAs(t, err, tt.wantErrAs)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			for _, s := range tt.wantOut {
				assert.Contains(t, out.String(), s)
			}
		})
	}
}

func TestStop_TerminatesRecordedRun(t *testing.T) {
	f := writeStack(t, freePort(t), "")
	a, _ := newTestApp(t, f, func(c *Config) { c.RemoveImages = true })

	cmd := exec.Command("sleep", "60")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	require.NoError(t, cmd.Start())
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	t.Cleanup(func() { _ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL) })

	created, err := process.CreateTime(cmd.Process.Pid)
	require.NoError(t, err)

	state := runstate.New(nil)
	h := runstate.NewHandle(config.ToolServerName, runstate.KindService, 8000, "")
	require.NoError(t, state.Register(h))
	h.SetPID(cmd.Process.Pid)
	h.SetStartTime(created)
	require.NoError(t, state.WriteRecord(a.recordPath()))

	require.NoError(t, a.Stop(context.Background()))

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("recorded process was not terminated")
	}
	_, err = os.Stat(a.recordPath())
	assert.True(t, os.IsNotExist(err), "run record should be removed")
}

func TestStop_RefusesReusedPID(t *testing.T) {
	tests := []struct {
		name    string
		offset  int64 // added to the real create time, -1 records none
		wantErr string
	}{
		{name: "start time differs", offset: -60_000, wantErr: "start time does not match the run record"},
		{name: "start time missing", offset: -1, wantErr: "no recorded start time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := writeStack(t, freePort(t), "")
			a, _ := newTestApp(t, f, nil)

			cmd := exec.Command("sleep", "60")
			cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
			require.NoError(t, cmd.Start())
			exited := make(chan struct{})
			go func() {
				_ = cmd.Wait()
				close(exited)
			}()
			t.Cleanup(func() { _ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL) })

			created, err := process.CreateTime(cmd.Process.Pid)
			require.NoError(t, err)
			recorded := created + tt.offset
			if tt.offset == -1 {
				recorded = 0
			}

			state := runstate.New(nil)
			h := runstate.NewHandle(config.ToolServerName, runstate.KindService, 8000, "")
			require.NoError(t, state.Register(h))
			h.SetPID(cmd.Process.Pid)
			h.SetStartTime(recorded)
			require.NoError(t, state.WriteRecord(a.recordPath()))

			err = a.Stop(context.Background())

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			select {
			case <-exited:
				t.Fatal("a process not started by the recorded run was signalled")
			case <-time.After(300 * time.Millisecond):
			}
		})
	}
}

func TestStop_RefusesForeignPID(t *testing.T) {
	f := writeStack(t, freePort(t), "")
	a, _ := newTestApp(t, f, nil)

	require.NoError(t, os.MkdirAll(f.logDir, 0o755))
	record := `{"runId":"old","processes":[{"name":"tool-server","kind":"service","pid":1073741823,"port":8000}]}`
	require.NoError(t, os.WriteFile(a.recordPath(), []byte(record), 0o644))

	err := a.Stop(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a process group leader")
}

func TestStop_NothingRecorded(t *testing.T) {
	f := writeStack(t, freePort(t), "")
	a, _ := newTestApp(t, f, nil)
	assert.NoError(t, a.Stop(context.Background()))
}

func TestStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	_, portStr, err := net.SplitHostPort(server.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	f := writeStack(t, port, "")
	a, out := newTestApp(t, f, func(c *Config) { c.NoTunnel = true })
	statusProbeTimeout = 500 * time.Millisecond
	t.Cleanup(func() { statusProbeTimeout = 2 * time.Second })

	require.NoError(t, a.Status(context.Background()))

	text := out.String()
	assert.Contains(t, text, "stack status")
	assert.Contains(t, text, fmt.Sprintf("http://127.0.0.1:%d/sse", port))
	assert.Contains(t, text, "UP")
	assert.Contains(t, text, "DOWN")
	assert.NotContains(t, text, "tunnel")
}

func TestEndpoints(t *testing.T) {
	enabled := true
	disabled := false
	tests := []struct {
		name  string
		stack config.StackConfig
		want  map[string]string
	}{
		{
			name: "tunnel and mixed probes",
			stack: config.StackConfig{
				Tunnel: config.TunnelDefinition{Enabled: &enabled, LocalPort: 9200},
				Services: []config.ServiceDefinition{
					{Name: "tool", Port: 8000, Health: config.HealthCheckDefinition{Kind: config.HealthKindHTTP, Path: "/sse"}},
					{Name: "db", Host: "127.0.0.1", Port: 5432, Health: config.HealthCheckDefinition{Kind: config.HealthKindTCP}},
					{Name: "agent", Port: 8001},
				},
			},
			want: map[string]string{
				"tunnel": "localhost:9200",
				"tool":   "http://localhost:8000/sse",
				"db":     "127.0.0.1:5432",
				"agent":  "http://localhost:8001/",
			},
		},
		{
			name: "tunnel disabled",
			stack: config.StackConfig{
				Tunnel:   config.TunnelDefinition{Enabled: &disabled, LocalPort: 9200},
				Services: []config.ServiceDefinition{{Name: "agent", Port: 8001, Health: config.HealthCheckDefinition{Path: "/.well-known/agent.json"}}},
			},
			want: map[string]string{"agent": "http://localhost:8001/.well-known/agent.json"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Endpoints(tt.stack))
		})
	}
}

func TestShutdownContext_ReleasesSignalsAfterFirst(t *testing.T) {
	// keeps SIGTERM from killing the test binary once the handler is released
	guard := make(chan os.Signal, 4)
	signal.Notify(guard, syscall.SIGTERM)
	defer signal.Stop(guard)

	released := make(chan struct{})
	notifyContext = func(parent context.Context, sigs ...os.Signal) (context.Context, context.CancelFunc) {
		ctx, stop := signal.NotifyContext(parent, sigs...)
		var once sync.Once
		return ctx, func() {
			stop()
			once.Do(func() { close(released) })
		}
	}
	t.Cleanup(func() { notifyContext = signal.NotifyContext })

	ctx, stop := shutdownContext(context.Background())
	defer stop()

	select {
	case <-released:
		t.Fatal("signal handling released before any signal")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled by SIGTERM")
	}
	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("signal handling still installed after the first signal")
	}
}
