// Package agent defines the provider-agnostic data model shared by every
// component of the investigation agent: messages, tool calls, tool
// definitions, and the serializable run state that the loop advances one
// turn at a time.
package agent

import (
	"context"
	"encoding/json"
)

// Role identifies who authored a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// RiskTier classifies the side-effect risk of a tool, which in turn
// determines whether the loop may auto-execute it or must pause for
// approval.
type RiskTier string

const (
	RiskReadOnly   RiskTier = "read_only"
	RiskSafeWrite  RiskTier = "safe_write"
	RiskDestructive RiskTier = "destructive"
)

// ToolCall is an immutable record of one tool invocation requested by the
// model. Arguments are kept as a raw JSON-object string and parsed lazily by
// whoever needs the structured form; malformed JSON degrades to
// {"raw": <string>} rather than aborting the turn.
type ToolCall struct {
	ID        string `json:"id"`
	ToolName  string `json:"tool_name"`
	Arguments string `json:"arguments"`
}

// ParseArguments decodes Arguments as a JSON object. On malformed JSON it
// returns {"raw": Arguments} rather than an error, per spec: a tool call
// with unparsable arguments still reaches the tool executor.
func (tc ToolCall) ParseArguments() map[string]any {
	if tc.Arguments == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(tc.Arguments), &m); err != nil {
		return map[string]any{"raw": tc.Arguments}
	}
	return m
}

// Message is one entry in the conversation transcript. Content may be empty
// when an assistant message carries only ToolCalls. ToolCallID is set only
// on tool-role messages and must reference a ToolCall emitted by some prior
// assistant message.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolDefinition describes a tool's name, purpose, and JSON-schema
// parameter spec, exactly as advertised to the LLM by a Provider.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolResult is what a tool executor returns. Output is the human-readable
// text that goes back to the LLM on success; Error is set on failure.
// Metadata is optional structured data for callers that need more than the
// text summary (e.g. the PR engine's pr_number).
type ToolResult struct {
	Success  bool           `json:"success"`
	Output   string         `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ToolContext is the opaque, per-run carrier passed unchanged to every tool
// executor: run/workspace identity and credentials-by-reference.
type ToolContext struct {
	RunID       string            `json:"run_id"`
	WorkspaceID string            `json:"workspace_id"`
	Credentials map[string]string `json:"-"`
}

// Tool is a registered, invocable capability. Executor implements the
// tool's side effect; the registry never inspects it beyond calling it and
// capturing whatever it returns or panics with.
type Tool struct {
	Name        string
	Description string
	RiskTier    RiskTier
	Definition  ToolDefinition
	Executor    func(ctx context.Context, tc ToolContext, args map[string]any) (ToolResult, error)
}
