// Package config provides configuration management for stackctl.
//
// Configuration is layered the same way on every run:
//
//  1. Default Configuration (embedded in binary)
//     - The tool server, search agent, expert agent and main agent with their
//       ports, health endpoints and dependencies
//     - An SSM tunnel to the remote OpenSearch domain
//
//  2. User Configuration (~/.config/stackctl/config.yaml)
//
//  3. Project Configuration (./.stackctl/config.yaml)
//
// A single file passed with --config replaces layers 2 and 3.
//
// # Configuration Structure
//
//	envFile: .env
//	logDir: logs
//	tunnel:
//	  target: i-0123456789abcdef0
//	  remoteHost: vpc-search.eu-west-1.es.amazonaws.com
//	  remotePort: 443
//	  localPort: 9200
//	  profile: staging
//	services:
//	  - name: tool-server
//	    command: ["python", "main.py"]
//	    workingDir: mcp/opensearch_mcp
//	    port: 8000
//	    requiresTunnel: true
//	    health:
//	      kind: http          # http, tcp or mcp
//	      path: /sse
//	      interval: 2s
//	      maxAttempts: 15
//	  - name: search-agent
//	    dependsOn: [tool-server]
//	    requiredEnv: [OPENAI_API_KEY]
//	    env:
//	      MCP_SERVER_URL: "${MCP_SERVER_URL}"
//
// Services are merged by name; a project file only needs to list what it changes.
//
// # Environment
//
// The credential file (.env) is parsed with godotenv. Variables resolve in the
// order computed defaults, credential file, process environment; the last one
// wins. USE_TUNNEL, TUNNEL_TARGET, TUNNEL_REMOTE_HOST, AWS_PROFILE and
// AWS_REGION adjust the tunnel definition. Service env values may reference
// any resolved variable with ${VAR}.
package config
