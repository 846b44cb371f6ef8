package agent

import "time"

// Status is one of the four values an AgentState's lifecycle can occupy.
// paused and running may alternate any number of times; completed and
// failed are terminal.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// PendingApproval records the suspension point created when the loop pauses
// on a destructive or unknown-risk tool call. Present if and only if
// Status == StatusPaused.
type PendingApproval struct {
	ToolCallID  string    `json:"tool_call_id"`
	ToolName    string    `json:"tool_name"`
	ToolArgs    string    `json:"tool_args"`
	RequestedAt time.Time `json:"requested_at"`
}

// ToolCallRecord is one append-only entry in AgentState.ToolCallHistory.
type ToolCallRecord struct {
	Iteration int        `json:"iteration"`
	ToolName  string     `json:"tool_name"`
	Args      string     `json:"args"`
	Result    ToolResult `json:"result"`
	Timestamp time.Time  `json:"timestamp"`
}

// AgentState is the complete, serializable state of one agent run. It
// round-trips through JSON with no loss: resuming a run is JSON-decoding a
// persisted AgentState and calling back into the loop.
type AgentState struct {
	RunID            string           `json:"run_id"`
	WorkspaceID      string           `json:"workspace_id"`
	Status           Status           `json:"status"`
	Messages         []Message        `json:"messages"`
	Iterations       int              `json:"iterations"`
	PendingApproval  *PendingApproval `json:"pending_approval,omitempty"`
	Result           string           `json:"result,omitempty"`
	Error            string           `json:"error,omitempty"`
	ToolCallHistory  []ToolCallRecord `json:"tool_call_history"`
	LastToolCall     string           `json:"last_tool_call,omitempty"`
	ConsecutiveFails int              `json:"consecutive_fails"`
}

// Invariant reports the first violation of the state's documented
// invariants, or "" when the state is consistent. Intended for tests and
// defensive checks, not hot-path validation.
func (s *AgentState) Invariant() string {
	if (s.Status == StatusPaused) != (s.PendingApproval != nil) {
		return "status=paused must hold iff pending_approval is present"
	}
	seen := make(map[string]struct{})
	for _, m := range s.Messages {
		if m.Role == RoleAssistant {
			for _, tc := range m.ToolCalls {
				seen[tc.ID] = struct{}{}
			}
			continue
		}
		if m.Role == RoleTool {
			if _, ok := seen[m.ToolCallID]; !ok {
				return "tool message " + m.ToolCallID + " has no prior assistant tool_call"
			}
		}
	}
	return ""
}

// AgentConfig configures one run of the loop.
type AgentConfig struct {
	MaxIterations int
	SystemPrompt  string
	TimeoutMS     int64
}

// DefaultTimeoutMS is the default wall-clock budget for a run, per spec.
const DefaultTimeoutMS = 300_000

// WithDefaults returns a copy of cfg with zero-valued fields replaced by
// their documented defaults.
func (cfg AgentConfig) WithDefaults() AgentConfig {
	if cfg.TimeoutMS <= 0 {
		cfg.TimeoutMS = DefaultTimeoutMS
	}
	return cfg
}

// EventKind discriminates AgentEvent variants.
type EventKind string

const (
	EventIterationStart   EventKind = "iteration_start"
	EventToolCall         EventKind = "tool_call"
	EventToolResult       EventKind = "tool_result"
	EventApprovalRequired EventKind = "approval_required"
	EventLLMResponse      EventKind = "llm_response"
	EventCompleted        EventKind = "completed"
	EventFailed           EventKind = "failed"
	EventTimeout          EventKind = "timeout"
)

// AgentEvent is a side-channel lifecycle notification. Losing an event must
// never affect run correctness: AgentState alone is authoritative.
type AgentEvent struct {
	Kind      EventKind      `json:"kind"`
	RunID     string         `json:"run_id"`
	Iteration int            `json:"iteration,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ApprovalStatus is the lifecycle state of an ApprovalRequest.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// DefaultApprovalTTL is the default expiration window for an
// ApprovalRequest, per spec.
const DefaultApprovalTTL = 30 * time.Minute

// ApprovalRequest is the durable record of a suspension point, created when
// the loop pauses and consumed exactly once by Resume.
type ApprovalRequest struct {
	ID          string         `json:"id"`
	RunID       string         `json:"run_id"`
	WorkspaceID string         `json:"workspace_id"`
	ToolName    string         `json:"tool_name"`
	ToolArgs    string         `json:"tool_args"`
	Status      ApprovalStatus `json:"status"`
	RequestedAt time.Time      `json:"requested_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
	DecidedAt   *time.Time     `json:"decided_at,omitempty"`
	DecidedBy   string         `json:"decided_by,omitempty"`
}

// IsExpired reports whether the request's expiry has passed as of now.
func (r ApprovalRequest) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}
