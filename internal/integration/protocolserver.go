package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/watchtower-ai/watchtower/internal/agent"
)

var lookupEnv = os.LookupEnv

// protocolServerBackend lazily spawns an MCP stdio server and exposes every
// tool it advertises as an agent.Tool. The connection is established on the
// first Tools() call, not at load time, mirroring hector's mcptoolset lazy
// -connect design.
type protocolServerBackend struct {
	cfg Config

	mu        sync.Mutex
	connected bool
	client    *client.Client
}

func newProtocolServerBackend(cfg Config) *protocolServerBackend {
	return &protocolServerBackend{cfg: cfg}
}

func (b *protocolServerBackend) Tools() ([]agent.Tool, error) {
	ctx := context.Background()
	mcpClient, listed, err := b.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("integration %q: %w", b.cfg.Name, err)
	}

	tools := make([]agent.Tool, 0, len(listed.Tools))
	for _, t := range listed.Tools {
		tools = append(tools, b.toolFor(mcpClient, t))
	}
	return tools, nil
}

func (b *protocolServerBackend) connect(ctx context.Context) (*client.Client, *mcp.ListToolsResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connected {
		listed, err := b.client.ListTools(ctx, mcp.ListToolsRequest{})
		return b.client, listed, err
	}

	mcpClient, err := client.NewStdioMCPClient(
		substituteEnv(b.cfg.Command, lookupEnv),
		convertEnv(substituteEnvMap(b.cfg.Env)),
		substituteEnvSlice(b.cfg.Args)...,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating MCP client: %w", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("starting MCP server: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "watchtower", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, nil, fmt.Errorf("initializing MCP session: %w", err)
	}

	listed, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return nil, nil, fmt.Errorf("listing MCP tools: %w", err)
	}

	b.client = mcpClient
	b.connected = true
	return b.client, listed, nil
}

func (b *protocolServerBackend) toolFor(mcpClient *client.Client, t mcp.Tool) agent.Tool {
	name := b.cfg.Name + "_" + t.Name
	schema := convertSchema(t.InputSchema)
	if schema == nil {
		schema = map[string]any{"type": "object"}
	}
	return agent.Tool{
		Name:        name,
		Description: t.Description,
		RiskTier:    riskForProtocolTool(t.Name, t.Description),
		Definition: agent.ToolDefinition{
			Name:        name,
			Description: t.Description,
			Parameters:  schema,
		},
		Executor: func(ctx context.Context, tc agent.ToolContext, args map[string]any) (agent.ToolResult, error) {
			req := mcp.CallToolRequest{}
			req.Params.Name = t.Name
			req.Params.Arguments = args

			resp, err := mcpClient.CallTool(ctx, req)
			if err != nil {
				return agent.ToolResult{Success: false, Error: err.Error()}, nil
			}
			return parseCallToolResult(resp), nil
		},
	}
}

func parseCallToolResult(resp *mcp.CallToolResult) agent.ToolResult {
	var texts []string
	for _, content := range resp.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	output := strings.Join(texts, "\n")
	if resp.IsError {
		if output == "" {
			output = "unknown MCP tool error"
		}
		return agent.ToolResult{Success: false, Error: output}
	}
	return agent.ToolResult{Success: true, Output: output}
}

func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

func convertEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, k+"="+v)
	}
	return result
}

func substituteEnvSlice(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = substituteEnv(a, lookupEnv)
	}
	return out
}

func (b *protocolServerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	b.connected = false
	return err
}
