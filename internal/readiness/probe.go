package readiness

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"stackctl/internal/config"
)

// Probe checks reachability of one endpoint once.
type Probe interface {
	Check(ctx context.Context) error
	String() string
}

// HTTPProbe issues an unauthenticated GET. Any status below 400 counts as
// reachable. The body is closed as soon as headers arrive, so streaming
// endpoints such as /sse are checked for connectivity only.
type HTTPProbe struct {
	URL    string
	Client *http.Client
}

func (p *HTTPProbe) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpClient := p.Client
	if httpClient == nil {
		// no client timeout, the per-attempt context bounds the request
		httpClient = &http.Client{}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", p.URL, err)
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("GET %s returned status %d", p.URL, resp.StatusCode)
	}
	return nil
}

func (p *HTTPProbe) String() string { return "http " + p.URL }

// TCPProbe succeeds when a connection to Address is accepted.
type TCPProbe struct {
	Address string
}

func (p *TCPProbe) Check(ctx context.Context) error {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", p.Address, err)
	}
	return conn.Close()
}

func (p *TCPProbe) String() string { return "tcp " + p.Address }

// MCPProbe performs an MCP initialize handshake over SSE. It is stricter than
// HTTPProbe: the tool server must answer the protocol, not just accept the stream.
type MCPProbe struct {
	URL string
}

func (p *MCPProbe) Check(ctx context.Context) error {
	sseClient, err := client.NewSSEMCPClient(p.URL)
	if err != nil {
		return fmt.Errorf("failed to create SSE client for %s: %w", p.URL, err)
	}
	defer sseClient.Close()

	if err := sseClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to open SSE stream %s: %w", p.URL, err)
	}

	var req mcp.InitializeRequest
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "stackctl-probe", Version: "1.0.0"}

	if _, err := sseClient.Initialize(ctx, req); err != nil {
		return fmt.Errorf("MCP initialize against %s failed: %w", p.URL, err)
	}
	return nil
}

func (p *MCPProbe) String() string { return "mcp " + p.URL }

// ForService builds the probe configured for a service.
func ForService(def config.ServiceDefinition) Probe {
	hostPort := net.JoinHostPort(def.ProbeHost(), fmt.Sprintf("%d", def.Port))
	switch def.Health.Kind {
	case config.HealthKindTCP:
		return &TCPProbe{Address: hostPort}
	case config.HealthKindMCP:
		return &MCPProbe{URL: "http://" + hostPort + pathOrRoot(def.Health.Path)}
	default:
		return &HTTPProbe{URL: "http://" + hostPort + pathOrRoot(def.Health.Path)}
	}
}

// ForTunnel builds the TCP probe against the tunnel's local port.
func ForTunnel(def config.TunnelDefinition) Probe {
	return &TCPProbe{Address: net.JoinHostPort("localhost", fmt.Sprintf("%d", def.LocalPort))}
}

func pathOrRoot(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		return "/" + p
	}
	return p
}
