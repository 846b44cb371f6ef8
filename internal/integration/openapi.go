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
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/watchtower-ai/watchtower/internal/agent"
	"github.com/watchtower-ai/watchtower/internal/provider/retry"
)

const openapiCallTimeout = 30 * time.Second

// openapiBackend fetches an OpenAPI document once and exposes each
// operation across every path as a tool, inferring risk from its HTTP
// method per spec §4.4.
type openapiBackend struct {
	cfg    Config
	client *http.Client

	once sync.Once
	doc  *openapi3.T
	err  error
}

func newOpenAPIBackend(cfg Config) *openapiBackend {
	return &openapiBackend{cfg: cfg, client: &http.Client{Timeout: openapiCallTimeout}}
}

func (b *openapiBackend) Tools() ([]agent.Tool, error) {
	b.once.Do(func() {
		loader := openapi3.NewLoader()
		b.doc, b.err = loader.LoadFromURI(mustParseURL(substituteEnv(b.cfg.SpecURL, os.LookupEnv)))
	})
	if b.err != nil {
		return nil, fmt.Errorf("integration %q: loading OpenAPI spec: %w", b.cfg.Name, b.err)
	}

	var tools []agent.Tool
	for path, item := range b.doc.Paths.Map() {
		for method, op := range item.Operations() {
			tools = append(tools, b.toolForOperation(path, method, op))
		}
	}
	return tools, nil
}

func mustParseURL(s string) *url.URL {
	u, err := url.Parse(s)
	if err != nil {
		return &url.URL{Path: s}
	}
	return u
}

func (b *openapiBackend) toolForOperation(path, method string, op *openapi3.Operation) agent.Tool {
	name := b.cfg.Name + "_" + operationToolName(op.OperationID, method, path)
	description := op.Summary
	if description == "" {
		description = op.Description
	}
	if description == "" {
		description = fmt.Sprintf("%s %s", strings.ToUpper(method), path)
	}

	properties := map[string]any{}
	for _, paramRef := range op.Parameters {
		if paramRef.Value == nil {
			continue
		}
		properties[paramRef.Value.Name] = map[string]any{"type": "string"}
	}
	if op.RequestBody != nil {
		properties["body"] = map[string]any{"type": "object"}
	}

	return agent.Tool{
		Name:        name,
		Description: description,
		RiskTier:    riskForHTTPMethod(method),
		Definition: agent.ToolDefinition{
			Name:        name,
			Description: description,
			Parameters: map[string]any{
				"type":       "object",
				"properties": properties,
			},
		},
		Executor: func(ctx context.Context, tc agent.ToolContext, args map[string]any) (agent.ToolResult, error) {
			return b.call(ctx, method, path, op, args)
		},
	}
}

func operationToolName(operationID, method, path string) string {
	if operationID != "" {
		return sanitizeToolName(operationID)
	}
	return sanitizeToolName(strings.ToLower(method) + "_" + path)
}

func sanitizeToolName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func (b *openapiBackend) call(ctx context.Context, method, path string, op *openapi3.Operation, args map[string]any) (agent.ToolResult, error) {
	base := strings.TrimRight(b.serverURL(), "/")
	resolvedPath := path
	query := url.Values{}
	for _, paramRef := range op.Parameters {
		if paramRef.Value == nil {
			continue
		}
		p := paramRef.Value
		v, ok := args[p.Name]
		if !ok {
			continue
		}
		switch p.In {
		case "path":
			resolvedPath = strings.ReplaceAll(resolvedPath, "{"+p.Name+"}", fmt.Sprintf("%v", v))
		case "query":
			query.Set(p.Name, fmt.Sprintf("%v", v))
		}
	}

	u, err := url.Parse(base + "/" + strings.TrimLeft(resolvedPath, "/"))
	if err != nil {
		return agent.ToolResult{Success: false, Error: fmt.Sprintf("invalid url: %v", err)}, nil
	}
	u.RawQuery = query.Encode()

	var reqBody io.Reader
	if body, ok := args["body"]; ok && op.RequestBody != nil {
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

func (b *openapiBackend) serverURL() string {
	if b.cfg.BaseURL != "" {
		return substituteEnv(b.cfg.BaseURL, os.LookupEnv)
	}
	if b.doc != nil && len(b.doc.Servers) > 0 {
		return b.doc.Servers[0].URL
	}
	return ""
}
