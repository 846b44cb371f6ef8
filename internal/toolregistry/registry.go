// Package toolregistry provides the uniform name→Tool map the loop dispatches
// through. Grounded on the error-capture contract of the teacher's
// runtime/toolregistry/executor/executor.go: a failing or panicking tool
// never propagates an exception to the caller, it comes back as a failed
// ToolResult. Argument validation against each tool's JSON schema is
// grounded on the teacher's registry/service.go compile-then-validate step,
// adapted from payload validation to tool-call argument validation.
package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/watchtower-ai/watchtower/internal/agent"
)

// Registry is a thread-safe name→Tool map with risk-tier queries and
// exception-absorbing dispatch.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]agent.Tool
	schemas map[string]*jsonschema.Schema
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{tools: make(map[string]agent.Tool), schemas: make(map[string]*jsonschema.Schema)}
}

// Register adds a tool. Returns an error on duplicate name — a precondition
// error per spec §7, it is a caller bug and surfaces immediately rather than
// being absorbed.
func (r *Registry) Register(t agent.Tool) error {
	if t.Name == "" {
		return fmt.Errorf("toolregistry: tool name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("toolregistry: duplicate tool name %q", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (agent.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// GetAll returns every registered tool, in no particular order.
func (r *Registry) GetAll() []agent.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]agent.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// GetDefinitions returns the ToolDefinition for every registered tool, ready
// to be advertised to a Provider.
func (r *Registry) GetDefinitions() []agent.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]agent.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Definition)
	}
	return out
}

// RiskTier returns the risk tier of the named tool, if registered.
func (r *Registry) RiskTier(name string) (agent.RiskTier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return "", false
	}
	return t.RiskTier, true
}

// RequiresApproval reports whether name is destructive, or unregistered
// (unknown risk tier must be treated as requiring approval, per spec §4.6).
func (r *Registry) RequiresApproval(name string) bool {
	tier, ok := r.RiskTier(name)
	if !ok {
		return true
	}
	return tier == agent.RiskDestructive
}

// CanAutoExecute reports whether name is read_only or safe_write.
func (r *Registry) CanAutoExecute(name string) bool {
	tier, ok := r.RiskTier(name)
	if !ok {
		return false
	}
	return tier == agent.RiskReadOnly || tier == agent.RiskSafeWrite
}

// Execute dispatches name with args and ToolContext, absorbing any error or
// panic from the tool's Executor into a failed ToolResult. It never
// propagates a Go error to the caller. Arguments are validated against the
// tool's parameter schema before the executor runs; a schema violation comes
// back as a failed ToolResult rather than reaching the executor.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, tc agent.ToolContext) (result agent.ToolResult) {
	t, ok := r.Get(name)
	if !ok {
		return agent.ToolResult{Success: false, Error: "Unknown tool"}
	}
	if err := r.validateArgs(t, args); err != nil {
		return agent.ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}
	}
	defer func() {
		if rec := recover(); rec != nil {
			result = agent.ToolResult{Success: false, Error: fmt.Sprintf("tool panic: %v", rec)}
		}
	}()
	res, err := t.Executor(ctx, tc, args)
	if err != nil {
		return agent.ToolResult{Success: false, Error: err.Error()}
	}
	return res
}

// validateArgs compiles (and caches) t's parameter schema and validates args
// against it. A tool with no parameter schema, or one santhosh-tekuri/jsonschema
// cannot compile, is not validated — schema enforcement is best-effort, never
// a reason to block a tool call the schema itself can't describe.
func (r *Registry) validateArgs(t agent.Tool, args map[string]any) error {
	if len(t.Definition.Parameters) == 0 {
		return nil
	}
	schema, ok := r.compiledSchema(t)
	if !ok {
		return nil
	}
	payload, err := roundTripJSON(args)
	if err != nil {
		return nil
	}
	return schema.Validate(payload)
}

func (r *Registry) compiledSchema(t agent.Tool) (*jsonschema.Schema, bool) {
	r.mu.RLock()
	schema, ok := r.schemas[t.Name]
	r.mu.RUnlock()
	if ok {
		return schema, schema != nil
	}

	schema = compileSchema(t.Name, t.Definition.Parameters)
	r.mu.Lock()
	r.schemas[t.Name] = schema
	r.mu.Unlock()
	return schema, schema != nil
}

func compileSchema(name string, params map[string]any) *jsonschema.Schema {
	resourceURL := "tool:" + name
	c := jsonschema.NewCompiler()
	doc, err := roundTripJSON(params)
	if err != nil {
		return nil
	}
	if err := c.AddResource(resourceURL, doc); err != nil {
		return nil
	}
	schema, err := c.Compile(resourceURL)
	if err != nil {
		return nil
	}
	return schema
}

// roundTripJSON converts a map[string]any into the generic any jsonschema
// expects (json.Number-free, matching what encoding/json unmarshaling into
// `any` already produces).
func roundTripJSON(v map[string]any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
