package config

import (
	"time"
)

// StackConfig is the top-level configuration structure for stackctl.
type StackConfig struct {
	EnvFile     string              `yaml:"envFile,omitempty"`     // Credential file, e.g. ".env"
	LogDir      string              `yaml:"logDir,omitempty"`      // Directory holding one log file per service
	RequiredEnv []string            `yaml:"requiredEnv,omitempty"` // Variables that must be non-empty before anything starts
	Tunnel      TunnelDefinition    `yaml:"tunnel"`
	Services    []ServiceDefinition `yaml:"services"`
	Supervisor  SupervisorSettings  `yaml:"supervisor"`
	Cleanup     CleanupSettings     `yaml:"cleanup"`
	Compose     ComposeDefinition   `yaml:"compose"`
}

// HealthKind selects the readiness probe strategy for a service.
type HealthKind string

const (
	HealthKindHTTP HealthKind = "http"
	HealthKindTCP  HealthKind = "tcp"
	HealthKindMCP  HealthKind = "mcp"
)

// HealthCheckDefinition configures how readiness of a service is probed.
type HealthCheckDefinition struct {
	Kind        HealthKind    `yaml:"kind,omitempty"`
	Path        string        `yaml:"path,omitempty"`        // HTTP/MCP path, e.g. "/.well-known/agent.json"
	Interval    time.Duration `yaml:"interval,omitempty"`    // Delay between attempts
	MaxAttempts int           `yaml:"maxAttempts,omitempty"` // Attempt budget before giving up
	Timeout     time.Duration `yaml:"timeout,omitempty"`     // Per-attempt timeout
}

// TunnelDefinition describes the SSM port-forward to the remote data store.
type TunnelDefinition struct {
	Enabled      *bool                 `yaml:"enabled,omitempty"`
	Target       string                `yaml:"target,omitempty"`       // SSM managed instance id
	RemoteHost   string                `yaml:"remoteHost,omitempty"`   // Host reachable from the target
	RemotePort   int                   `yaml:"remotePort,omitempty"`   // Port on RemoteHost
	LocalPort    int                   `yaml:"localPort,omitempty"`    // Port bound on localhost
	Profile      string                `yaml:"profile,omitempty"`      // AWS shared config profile
	Region       string                `yaml:"region,omitempty"`       // Optional region override
	DocumentName string                `yaml:"documentName,omitempty"` // SSM document used for the session
	LogFile      string                `yaml:"logFile,omitempty"`
	Readiness    HealthCheckDefinition `yaml:"readiness,omitempty"`
}

// IsEnabled reports whether the tunnel should be started. Unset means enabled.
func (t TunnelDefinition) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// ServiceDefinition defines how to run and probe one stack service.
type ServiceDefinition struct {
	Name           string                `yaml:"name"`
	Command        []string              `yaml:"command"`
	WorkingDir     string                `yaml:"workingDir,omitempty"`
	Env            map[string]string     `yaml:"env,omitempty"`         // Values may reference ${VAR}
	RequiredEnv    []string              `yaml:"requiredEnv,omitempty"` // Names that must resolve non-empty
	LogFile        string                `yaml:"logFile,omitempty"`     // Relative paths are under LogDir
	Host           string                `yaml:"host,omitempty"`        // Host used for probing, default localhost
	Port           int                   `yaml:"port"`
	Health         HealthCheckDefinition `yaml:"health,omitempty"`
	DependsOn      []string              `yaml:"dependsOn,omitempty"`
	RequiresTunnel bool                  `yaml:"requiresTunnel,omitempty"`
}

// ProbeHost returns the host used to reach the service.
func (s ServiceDefinition) ProbeHost() string {
	if s.Host == "" {
		return "localhost"
	}
	return s.Host
}

// SupervisorSettings tunes the monitoring loop that runs once everything is ready.
type SupervisorSettings struct {
	PollInterval     time.Duration `yaml:"pollInterval,omitempty"`
	Reprobe          bool          `yaml:"reprobe,omitempty"`          // Re-run health probes while monitoring
	FailureThreshold int           `yaml:"failureThreshold,omitempty"` // Consecutive failed re-probes before failing
	LogTailLines     int           `yaml:"logTailLines,omitempty"`
}

// CleanupSettings tunes teardown.
type CleanupSettings struct {
	GracePeriod       time.Duration `yaml:"gracePeriod,omitempty"`       // SIGTERM to SIGKILL delay
	ForceReleasePorts bool          `yaml:"forceReleasePorts,omitempty"` // Kill any listener on a reserved port
	StopCompose       bool          `yaml:"stopCompose,omitempty"`       // Stop compose services on cleanup
}

// ComposeDefinition locates the Docker Compose counterpart of the stack.
type ComposeDefinition struct {
	File        string `yaml:"file,omitempty"`
	ProjectName string `yaml:"projectName,omitempty"`
}
