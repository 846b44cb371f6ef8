package integration

import (
	"context"
	"fmt"
	"sync"

	"github.com/watchtower-ai/watchtower/internal/agent"
	"github.com/watchtower-ai/watchtower/internal/toolregistry"
)

// backend is the common shape of the three integration variants: produce
// the agent.Tools this integration contributes to the registry.
type backend interface {
	Tools() ([]agent.Tool, error)
}

// Router loads a declarative set of integrations and synthesizes their
// tools into a toolregistry.Registry, alongside a handful of `_system`
// meta-tools for introspecting the integration set itself.
type Router struct {
	configs []Config

	once     sync.Once
	initErr  error
	backends map[string]backend
}

// NewRouter validates every config up front; connection to any given
// backend is still deferred until Load is called.
func NewRouter(configs []Config) (*Router, error) {
	seen := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if seen[cfg.Name] {
			return nil, fmt.Errorf("integration: duplicate name %q", cfg.Name)
		}
		seen[cfg.Name] = true
	}
	return &Router{configs: configs}, nil
}

// Load synthesizes tools from every configured integration and registers
// them on reg, plus the _system introspection tools. It is idempotent: the
// work runs once, on the first call's registry; concurrent and later calls
// wait for it and get its result, so a failure is cached and returned on
// every subsequent call rather than reattempted, since a
// partially-connected backend set would otherwise retry silently mid-run.
func (r *Router) Load(ctx context.Context, reg *toolregistry.Registry) error {
	r.once.Do(func() { r.initErr = r.load(ctx, reg) })
	return r.initErr
}

func (r *Router) load(ctx context.Context, reg *toolregistry.Registry) error {
	r.backends = make(map[string]backend, len(r.configs))
	for _, cfg := range r.configs {
		b, err := newBackend(cfg)
		if err != nil {
			return fmt.Errorf("integration %q: %w", cfg.Name, err)
		}
		r.backends[cfg.Name] = b
	}

	for name, b := range r.backends {
		tools, err := b.Tools()
		if err != nil {
			return fmt.Errorf("integration %q: %w", name, err)
		}
		for _, t := range tools {
			if err := reg.Register(t); err != nil {
				return fmt.Errorf("integration %q: %w", name, err)
			}
		}
	}

	for _, t := range r.systemTools() {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func newBackend(cfg Config) (backend, error) {
	switch cfg.Variant {
	case VariantProtocolServer:
		return newProtocolServerBackend(cfg), nil
	case VariantOpenAPI:
		return newOpenAPIBackend(cfg), nil
	case VariantREST:
		return newRESTBackend(cfg), nil
	default:
		return nil, fmt.Errorf("unknown variant %q", cfg.Variant)
	}
}

// systemTools implements spec §4.4's _system meta-tools: list_integrations,
// list_operations, test_connection.
func (r *Router) systemTools() []agent.Tool {
	return []agent.Tool{
		{
			Name:        "_system_list_integrations",
			Description: "List every configured integration and its variant.",
			RiskTier:    agent.RiskReadOnly,
			Definition: agent.ToolDefinition{
				Name:        "_system_list_integrations",
				Description: "List every configured integration and its variant.",
				Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
			},
			Executor: func(ctx context.Context, tc agent.ToolContext, args map[string]any) (agent.ToolResult, error) {
				entries := make([]map[string]any, 0, len(r.configs))
				for _, cfg := range r.configs {
					entries = append(entries, map[string]any{"name": cfg.Name, "variant": string(cfg.Variant)})
				}
				return agent.ToolResult{Success: true, Metadata: map[string]any{"integrations": entries}}, nil
			},
		},
		{
			Name:        "_system_list_operations",
			Description: "List every tool name synthesized from a given integration.",
			RiskTier:    agent.RiskReadOnly,
			Definition: agent.ToolDefinition{
				Name:        "_system_list_operations",
				Description: "List every tool name synthesized from a given integration.",
				Parameters: map[string]any{
					"type":       "object",
					"required":   []string{"integration"},
					"properties": map[string]any{"integration": map[string]any{"type": "string"}},
				},
			},
			Executor: func(ctx context.Context, tc agent.ToolContext, args map[string]any) (agent.ToolResult, error) {
				name, _ := args["integration"].(string)
				b, ok := r.backends[name]
				if !ok {
					return agent.ToolResult{Success: false, Error: fmt.Sprintf("unknown integration %q", name)}, nil
				}
				tools, err := b.Tools()
				if err != nil {
					return agent.ToolResult{Success: false, Error: err.Error()}, nil
				}
				names := make([]string, 0, len(tools))
				for _, t := range tools {
					names = append(names, t.Name)
				}
				return agent.ToolResult{Success: true, Metadata: map[string]any{"operations": names}}, nil
			},
		},
		{
			Name:        "_system_test_connection",
			Description: "Attempt to connect to a given integration and report whether it succeeded.",
			RiskTier:    agent.RiskReadOnly,
			Definition: agent.ToolDefinition{
				Name:        "_system_test_connection",
				Description: "Attempt to connect to a given integration and report whether it succeeded.",
				Parameters: map[string]any{
					"type":       "object",
					"required":   []string{"integration"},
					"properties": map[string]any{"integration": map[string]any{"type": "string"}},
				},
			},
			Executor: func(ctx context.Context, tc agent.ToolContext, args map[string]any) (agent.ToolResult, error) {
				name, _ := args["integration"].(string)
				b, ok := r.backends[name]
				if !ok {
					return agent.ToolResult{Success: false, Error: fmt.Sprintf("unknown integration %q", name)}, nil
				}
				if _, err := b.Tools(); err != nil {
					return agent.ToolResult{Success: false, Error: err.Error()}, nil
				}
				return agent.ToolResult{Success: true, Output: fmt.Sprintf("integration %q reachable", name)}, nil
			},
		},
	}
}
