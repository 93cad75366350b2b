package config

import (
	"fmt"
	"strings"

	"stackctl/internal/failure"
)

// Validate checks structural invariants: unique names and ports, known health
// kinds, resolvable dependencies and a complete tunnel definition when the
// tunnel is enabled. Dependency cycles are rejected by the orchestrator when
// it computes the start order.
func Validate(cfg StackConfig) error {
	var problems []string

	names := make(map[string]bool, len(cfg.Services))
	ports := make(map[int]string, len(cfg.Services)+1)

	if cfg.Tunnel.IsEnabled() {
		t := cfg.Tunnel
		if t.Target == "" {
			problems = append(problems, "tunnel.target is required when the tunnel is enabled (or set TUNNEL_TARGET, or USE_TUNNEL=false)")
		}
		if t.RemoteHost == "" {
			problems = append(problems, "tunnel.remoteHost is required when the tunnel is enabled (or set TUNNEL_REMOTE_HOST)")
		}
		if !validPort(t.RemotePort) {
			problems = append(problems, fmt.Sprintf("tunnel.remotePort %d is out of range", t.RemotePort))
		}
		if !validPort(t.LocalPort) {
			problems = append(problems, fmt.Sprintf("tunnel.localPort %d is out of range", t.LocalPort))
		} else {
			ports[t.LocalPort] = "tunnel"
		}
		problems = append(problems, checkHealth("tunnel.readiness", t.Readiness)...)
	}

	for i, svc := range cfg.Services {
		where := fmt.Sprintf("services[%d]", i)
		if svc.Name == "" {
			problems = append(problems, where+": name is required")
		} else {
			where = fmt.Sprintf("service %q", svc.Name)
			if names[svc.Name] {
				problems = append(problems, where+": duplicate name")
			}
			names[svc.Name] = true
		}
		if len(svc.Command) == 0 || svc.Command[0] == "" {
			problems = append(problems, where+": command is required")
		}
		if !validPort(svc.Port) {
			problems = append(problems, fmt.Sprintf("%s: port %d is out of range", where, svc.Port))
		} else if owner, taken := ports[svc.Port]; taken {
			problems = append(problems, fmt.Sprintf("%s: port %d already used by %s", where, svc.Port, owner))
		} else {
			ports[svc.Port] = svc.Name
		}
		problems = append(problems, checkHealth(where+".health", svc.Health)...)
	}

	for _, svc := range cfg.Services {
		for _, dep := range svc.DependsOn {
			if dep == svc.Name {
				problems = append(problems, fmt.Sprintf("service %q depends on itself", svc.Name))
			} else if !names[dep] {
				problems = append(problems, fmt.Sprintf("service %q depends on unknown service %q", svc.Name, dep))
			}
		}
	}

	if len(problems) > 0 {
		return &failure.ConfigError{
			Msg:         "invalid stack configuration: " + strings.Join(problems, "; "),
			Remediation: "fix .stackctl/config.yaml or pass --config",
		}
	}
	return nil
}

func checkHealth(where string, h HealthCheckDefinition) []string {
	var problems []string
	switch h.Kind {
	case HealthKindHTTP, HealthKindTCP, HealthKindMCP:
	default:
		problems = append(problems, fmt.Sprintf("%s: unknown kind %q", where, h.Kind))
	}
	if h.MaxAttempts < 1 {
		problems = append(problems, where+": maxAttempts must be at least 1")
	}
	if h.Interval < 0 {
		problems = append(problems, where+": interval must not be negative")
	}
	if h.Timeout < 0 {
		problems = append(problems, where+": timeout must not be negative")
	}
	return problems
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
