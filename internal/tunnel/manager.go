// Package tunnel manages the SSM port-forward that exposes the remote data
// store on a local port.
package tunnel

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"stackctl/internal/config"
	"stackctl/internal/failure"
	"stackctl/internal/process"
	"stackctl/internal/runstate"
	"stackctl/pkg/logging"
)

// Name is the handle name of the tunnel in RunState.
const Name = "tunnel"

var requiredTools = []struct {
	binary  string
	install string
}{
	{"aws", "install the AWS CLI v2: https://docs.aws.amazon.com/cli/latest/userguide/getting-started-install.html"},
	{"session-manager-plugin", "install the Session Manager plugin: https://docs.aws.amazon.com/systems-manager/latest/userguide/session-manager-working-with-install-plugin.html"},
}

// Manager starts and stops the tunnel process.
type Manager struct {
	launcher *process.Launcher
	creds    CredentialChecker
	grace    time.Duration
}

// NewManager creates a tunnel manager. creds may be nil to skip the identity check.
func NewManager(launcher *process.Launcher, creds CredentialChecker, grace time.Duration) *Manager {
	return &Manager{launcher: launcher, creds: creds, grace: grace}
}

// Preflight checks that the session tooling is installed and the profile has
// valid credentials.
func (m *Manager) Preflight(ctx context.Context, def config.TunnelDefinition) error {
	for _, tool := range requiredTools {
		if _, err := exec.LookPath(tool.binary); err != nil {
			return &failure.TunnelError{
				Msg:         fmt.Sprintf("%s not found on PATH", tool.binary),
				Remediation: tool.install,
				Err:         err,
			}
		}
	}

	if m.creds == nil {
		return nil
	}
	identity, err := m.creds.CheckCredentials(ctx, def.Profile, def.Region)
	if err != nil {
		return &failure.TunnelError{
			Msg:         fmt.Sprintf("no valid AWS credentials for profile %q", def.Profile),
			Remediation: fmt.Sprintf("aws sso login --profile %s", def.Profile),
			Err:         err,
		}
	}
	logging.Info("Tunnel", "AWS identity for profile %s: %s", def.Profile, identity)
	return nil
}

// Start runs the preflight and spawns the port-forward session. The returned
// handle is STARTING; the caller waits for the local port with a TCP probe.
func (m *Manager) Start(ctx context.Context, def config.TunnelDefinition, env config.Environment, state *runstate.State) (*runstate.Handle, error) {
	if err := m.Preflight(ctx, def); err != nil {
		return nil, err
	}

	args, err := BuildArgs(def)
	if err != nil {
		return nil, &failure.TunnelError{Msg: "cannot build session parameters", Err: err}
	}
	logging.Info("Tunnel", "forwarding localhost:%d to %s:%d via %s", def.LocalPort, def.RemoteHost, def.RemotePort, def.Target)

	h, err := m.launcher.Spawn(process.Command{
		Name:    Name,
		Kind:    runstate.KindTunnel,
		Argv:    append([]string{"aws"}, args...),
		Env:     config.List(env),
		LogFile: def.LogFile,
		Port:    def.LocalPort,
	}, state)
	if err != nil {
		return nil, &failure.TunnelError{Msg: "failed to start the SSM session", Err: err}
	}
	return h, nil
}

// Stop terminates the session. Safe to call repeatedly and with a nil handle.
func (m *Manager) Stop(h *runstate.Handle) error {
	return process.Stop(h, m.grace)
}

// BuildArgs renders the aws CLI arguments for the port-forward session.
func BuildArgs(def config.TunnelDefinition) ([]string, error) {
	document := def.DocumentName
	if document == "" {
		document = config.DefaultTunnelDocument
	}
	params, err := json.Marshal(map[string][]string{
		"host":            {def.RemoteHost},
		"portNumber":      {strconv.Itoa(def.RemotePort)},
		"localPortNumber": {strconv.Itoa(def.LocalPort)},
	})
	if err != nil {
		return nil, err
	}

	args := []string{
		"ssm", "start-session",
		"--target", def.Target,
		"--document-name", document,
		"--parameters", string(params),
	}
	if def.Profile != "" {
		args = append(args, "--profile", def.Profile)
	}
	if def.Region != "" {
		args = append(args, "--region", def.Region)
	}
	return args, nil
}
