package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/watchtower-ai/watchtower/internal/agent"
	"github.com/watchtower-ai/watchtower/internal/provider/retry"
)

const restCallTimeout = 30 * time.Second

// restBackend exposes a base_url plus named endpoints as tools, plus the
// generic `request` discovery operation spec §4.4 requires.
type restBackend struct {
	cfg    Config
	client *http.Client
}

func newRESTBackend(cfg Config) *restBackend {
	return &restBackend{cfg: cfg, client: &http.Client{Timeout: restCallTimeout}}
}

func (b *restBackend) Tools() ([]agent.Tool, error) {
	tools := make([]agent.Tool, 0, len(b.cfg.Endpoints)+1)
	for _, ep := range b.cfg.Endpoints {
		tools = append(tools, b.toolForEndpoint(ep))
	}
	tools = append(tools, b.genericRequestTool())
	return tools, nil
}

func (b *restBackend) toolForEndpoint(ep Endpoint) agent.Tool {
	name := b.cfg.Name + "_" + ep.Name
	return agent.Tool{
		Name:        name,
		Description: ep.Description,
		RiskTier:    riskForHTTPMethod(ep.Method),
		Definition: agent.ToolDefinition{
			Name:        name,
			Description: ep.Description,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path_params": map[string]any{"type": "object"},
					"query":       map[string]any{"type": "object"},
					"body":        map[string]any{"type": "object"},
				},
			},
		},
		Executor: func(ctx context.Context, tc agent.ToolContext, args map[string]any) (agent.ToolResult, error) {
			query, _ := args["query"].(map[string]any)
			body := args["body"]
			return b.call(ctx, ep.Method, b.expandPath(ep.Path, args), query, body)
		},
	}
}

func (b *restBackend) genericRequestTool() agent.Tool {
	name := b.cfg.Name + "_request"
	return agent.Tool{
		Name:        name,
		Description: "Issue an arbitrary HTTP request against this integration's base_url, for discovery.",
		RiskTier:    agent.RiskSafeWrite,
		Definition: agent.ToolDefinition{
			Name:        name,
			Description: "Issue an arbitrary HTTP request (method, path, query, body) against this integration.",
			Parameters: map[string]any{
				"type":     "object",
				"required": []string{"method", "path"},
				"properties": map[string]any{
					"method": map[string]any{"type": "string"},
					"path":   map[string]any{"type": "string"},
					"query":  map[string]any{"type": "object"},
					"body":   map[string]any{"type": "object"},
				},
			},
		},
		Executor: func(ctx context.Context, tc agent.ToolContext, args map[string]any) (agent.ToolResult, error) {
			method, _ := args["method"].(string)
			path, _ := args["path"].(string)
			if method == "" || path == "" {
				return agent.ToolResult{Success: false, Error: "method and path are required"}, nil
			}
			query, _ := args["query"].(map[string]any)
			return b.call(ctx, method, path, query, args["body"])
		},
	}
}

func (b *restBackend) expandPath(path string, args map[string]any) string {
	params, _ := args["path_params"].(map[string]any)
	for k, v := range params {
		path = strings.ReplaceAll(path, "{"+k+"}", fmt.Sprintf("%v", v))
	}
	return path
}

func (b *restBackend) call(ctx context.Context, method, path string, query map[string]any, body any) (agent.ToolResult, error) {
	base := strings.TrimRight(substituteEnv(b.cfg.BaseURL, os.LookupEnv), "/")
	u, err := url.Parse(base + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return agent.ToolResult{Success: false, Error: fmt.Sprintf("invalid url: %v", err)}, nil
	}
	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		u.RawQuery = q.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return agent.ToolResult{Success: false, Error: fmt.Sprintf("invalid body: %v", err)}, nil
		}
		reqBody = bytes.NewReader(data)
	}

	var result agent.ToolResult
	err = retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), u.String(), reqBody)
		if err != nil {
			return err
		}
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if authErr := applyAuth(req, b.cfg.Auth, os.LookupEnv); authErr != nil {
			return authErr
		}

		resp, err := b.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return readErr
		}
		if resp.StatusCode >= 400 {
			if retry.IsRetryable(&retry.HTTPStatusError{StatusCode: resp.StatusCode}) {
				return &retry.HTTPStatusError{StatusCode: resp.StatusCode, Message: string(data)}
			}
			result = agent.ToolResult{Success: false, Error: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(data))}
			return nil
		}
		result = agent.ToolResult{Success: true, Output: string(data)}
		return nil
	})
	if err != nil {
		return agent.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return result, nil
}
