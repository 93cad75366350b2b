package config

import (
	"fmt"
	"time"
)

// Well-known names of the default stack.
const (
	ToolServerName  = "tool-server"
	SearchAgentName = "search-agent"
	ExpertAgentName = "expert-agent"
	MainAgentName   = "main-agent"

	OpenAIKeyVar = "OPENAI_API_KEY"

	// AgentCardPath is served by every agent and used only for reachability.
	AgentCardPath = "/.well-known/agent.json"
	// ToolServerStreamPath is the tool server's SSE endpoint.
	ToolServerStreamPath = "/sse"

	DefaultTunnelDocument = "AWS-StartPortForwardingSessionToRemoteHost"
	DefaultTunnelProfile  = "staging"
	DefaultTunnelLocal    = 9200
)

func agentHealth() HealthCheckDefinition {
	return HealthCheckDefinition{
		Kind:        HealthKindHTTP,
		Path:        AgentCardPath,
		Interval:    2 * time.Second,
		MaxAttempts: 15,
		Timeout:     2 * time.Second,
	}
}

// GetDefaultConfig returns the built-in stack: tunnel, tool server and the
// three agents wired leaves-first.
func GetDefaultConfig() StackConfig {
	return StackConfig{
		EnvFile:     ".env",
		LogDir:      "logs",
		RequiredEnv: []string{OpenAIKeyVar},
		Tunnel: TunnelDefinition{
			RemotePort:   443,
			LocalPort:    DefaultTunnelLocal,
			Profile:      DefaultTunnelProfile,
			DocumentName: DefaultTunnelDocument,
			LogFile:      "tunnel.log",
			Readiness: HealthCheckDefinition{
				Kind:        HealthKindTCP,
				Interval:    2 * time.Second,
				MaxAttempts: 30,
				Timeout:     2 * time.Second,
			},
		},
		Services: []ServiceDefinition{
			{
				Name:       ToolServerName,
				Command:    []string{"python", "main.py"},
				WorkingDir: "mcp/opensearch_mcp",
				Port:       8000,
				Env: map[string]string{
					"AWS_PROFILE":     "${AWS_PROFILE}",
					"OPENSEARCH_HOST": "${OPENSEARCH_HOST}",
					"OPENSEARCH_PORT": "${OPENSEARCH_PORT}",
				},
				LogFile: "tool-server.log",
				Health: HealthCheckDefinition{
					Kind:        HealthKindHTTP,
					Path:        ToolServerStreamPath,
					Interval:    2 * time.Second,
					MaxAttempts: 15,
					Timeout:     2 * time.Second,
				},
				RequiresTunnel: true,
			},
			{
				Name:        SearchAgentName,
				Command:     []string{"python", "main.py"},
				WorkingDir:  "agents/search_agent",
				Port:        8001,
				Env:         map[string]string{"MCP_SERVER_URL": "${MCP_SERVER_URL}"},
				RequiredEnv: []string{OpenAIKeyVar},
				LogFile:     "search-agent.log",
				Health:      agentHealth(),
				DependsOn:   []string{ToolServerName},
			},
			{
				Name:        ExpertAgentName,
				Command:     []string{"python", "a2a_server.py"},
				WorkingDir:  "agents/expert_agent",
				Port:        8003,
				Env:         map[string]string{"MCP_SERVER_URL": "${MCP_SERVER_URL}"},
				RequiredEnv: []string{OpenAIKeyVar},
				LogFile:     "expert-agent.log",
				Health:      agentHealth(),
				DependsOn:   []string{ToolServerName},
			},
			{
				Name:       MainAgentName,
				Command:    []string{"python", "a2a_server.py"},
				WorkingDir: "agents/main_agent",
				Port:       9111,
				Env: map[string]string{
					"SEARCH_AGENT_URL": "${SEARCH_AGENT_URL}",
					"EXPERT_AGENT_URL": "${EXPERT_AGENT_URL}",
				},
				RequiredEnv: []string{OpenAIKeyVar},
				LogFile:     "main-agent.log",
				Health:      agentHealth(),
				DependsOn:   []string{SearchAgentName, ExpertAgentName},
			},
		},
		Supervisor: SupervisorSettings{
			PollInterval:     5 * time.Second,
			FailureThreshold: 3,
			LogTailLines:     20,
		},
		Cleanup: CleanupSettings{
			GracePeriod: 5 * time.Second,
		},
		Compose: ComposeDefinition{
			File: "docker-compose.yml",
		},
	}
}

// defaultEnvironment derives the peer URLs and data-store coordinates from the
// configured ports. Everything here is overridable through .env or the process
// environment.
func defaultEnvironment(cfg StackConfig) map[string]string {
	env := map[string]string{
		"OPENSEARCH_HOST": "localhost",
		"AWS_PROFILE":     cfg.Tunnel.Profile,
	}
	if cfg.Tunnel.LocalPort > 0 {
		env["OPENSEARCH_PORT"] = fmt.Sprintf("%d", cfg.Tunnel.LocalPort)
	}
	for _, svc := range cfg.Services {
		switch svc.Name {
		case ToolServerName:
			env["MCP_SERVER_URL"] = fmt.Sprintf("http://127.0.0.1:%d%s", svc.Port, ToolServerStreamPath)
		case SearchAgentName:
			env["SEARCH_AGENT_URL"] = fmt.Sprintf("localhost:%d", svc.Port)
		case ExpertAgentName:
			env["EXPERT_AGENT_URL"] = fmt.Sprintf("localhost:%d", svc.Port)
		}
	}
	return env
}
