package executors

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"mcpsched/internal/core"
)

// ToolInvoker invokes a named method on a remote MCP tool server. The
// implementation is injected so tests can substitute a fake.
type ToolInvoker interface {
	Invoke(ctx context.Context, tool, method string, params map[string]any) (string, error)
}

// ToolCallExecutor carries out tool_call tasks through an invoker.
type ToolCallExecutor struct {
	invoker ToolInvoker
}

// NewToolCallExecutor creates a tool_call executor over the given invoker.
func NewToolCallExecutor(invoker ToolInvoker) *ToolCallExecutor {
	return &ToolCallExecutor{invoker: invoker}
}

func (e *ToolCallExecutor) Execute(ctx context.Context, task *core.Task) (*core.Result, error) {
	data, err := e.invoker.Invoke(ctx, task.Tool, task.Method, task.Params)
	if err != nil {
		return &core.Result{Status: core.ResultError, Error: fmt.Sprintf("tool call %s.%s: %v", task.Tool, task.Method, err)}, nil
	}
	return &core.Result{Status: core.ResultSuccess, Data: data}, nil
}

// MCPInvoker talks to MCP servers over SSE. The tool name resolves a
// server endpoint under the configured base URL (a full URL in the tool
// field is used as-is); clients are dialed lazily and cached per endpoint
// for the invoker's lifetime.
type MCPInvoker struct {
	baseURL string

	mu      sync.Mutex
	clients map[string]*client.Client
}

// NewMCPInvoker creates an invoker with the given base URL for relative
// tool references.
func NewMCPInvoker(baseURL string) *MCPInvoker {
	return &MCPInvoker{
		baseURL: strings.TrimRight(baseURL, "/"),
		clients: make(map[string]*client.Client),
	}
}

func (m *MCPInvoker) Invoke(ctx context.Context, tool, method string, params map[string]any) (string, error) {
	c, err := m.clientFor(ctx, tool)
	if err != nil {
		return "", err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = method
	if params == nil {
		params = map[string]any{}
	}
	req.Params.Arguments = params

	result, err := c.CallTool(ctx, req)
	if err != nil {
		return "", err
	}
	text := flattenContent(result.Content)
	if result.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return "", fmt.Errorf("%s", text)
	}
	return text, nil
}

// Close shuts down every cached client connection.
func (m *MCPInvoker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for endpoint, c := range m.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close client %s: %w", endpoint, err)
		}
		delete(m.clients, endpoint)
	}
	return firstErr
}

func (m *MCPInvoker) clientFor(ctx context.Context, tool string) (*client.Client, error) {
	endpoint := m.endpointFor(tool)
	if endpoint == "" {
		return nil, fmt.Errorf("no endpoint for tool %q and no base url configured", tool)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clients[endpoint]; ok {
		return c, nil
	}

	c, err := client.NewSSEMCPClient(endpoint)
	if err != nil {
		return nil, fmt.Errorf("create mcp client for %s: %w", endpoint, err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("connect mcp client to %s: %w", endpoint, err)
	}
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "mcpsched", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize mcp client for %s: %w", endpoint, err)
	}
	m.clients[endpoint] = c
	return c, nil
}

func (m *MCPInvoker) endpointFor(tool string) string {
	if strings.HasPrefix(tool, "http://") || strings.HasPrefix(tool, "https://") {
		return tool
	}
	if m.baseURL == "" {
		return ""
	}
	if tool == "" {
		return m.baseURL
	}
	return m.baseURL + "/" + tool
}

func flattenContent(content []mcp.Content) string {
	var parts []string
	for _, item := range content {
		if tc, ok := item.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
