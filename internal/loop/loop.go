// Package loop implements the agent scheduling core: the state machine that
// drives iterations, enforces the wall-clock budget, routes tool calls
// through the registry, and suspends for approval. Grounded on the
// teacher's runtime/agent/runtime/workflow_loop.go and workflow_turn.go
// turn-by-turn structure, collapsed from a durable-workflow-replay engine
// down to a single in-process, resumable loop (see DESIGN.md for what was
// dropped and why).
package loop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/watchtower-ai/watchtower/internal/agent"
	"github.com/watchtower-ai/watchtower/internal/events"
	"github.com/watchtower-ai/watchtower/internal/guardrail"
	"github.com/watchtower-ai/watchtower/internal/provider"
	"github.com/watchtower-ai/watchtower/internal/store"
	"github.com/watchtower-ai/watchtower/internal/store/memory"
	"github.com/watchtower-ai/watchtower/internal/telemetry"
	"github.com/watchtower-ai/watchtower/internal/timeout"
	"github.com/watchtower-ai/watchtower/internal/toolregistry"
)

// perCallMaxMS and temperature/max_tokens defaults match spec §4.6 step 3.
const (
	perCallMaxMS          = 60 * time.Second
	perCallSafetyMarginMS = 5 * time.Second
	callTemperature       = 0.2
	callMaxTokens         = 4096
	estimatedCostPerCall  = 0.05
)

// Loop wires together every collaborator the scheduling core dispatches
// through. All fields except Provider, Registry and Logger are optional
// (New sets Logger to a noop logger); nil Events/Guardrail/Budget/Audit
// degrade to no-ops, and Store/
// Approvals/Runs default in New to the in-memory backends in
// internal/store/memory, per spec §2's "in-memory by default" promise —
// a run works standalone with zero external dependencies unless the
// caller swaps in a Mongo/Redis-backed Store.
type Loop struct {
	Provider  provider.Provider
	Registry  *toolregistry.Registry
	Events    *events.Bus
	Guardrail *guardrail.Scanner
	Budget    *guardrail.Bucket
	Audit     *guardrail.AuditLog
	Logger    telemetry.Logger
	Store     store.Store
	Approvals store.ApprovalStore
	Runs      store.RunRecordStore
}

// New builds a Loop, replacing nil optional collaborators with no-ops and
// in-memory store defaults.
func New(p provider.Provider, registry *toolregistry.Registry) *Loop {
	return &Loop{
		Provider:  p,
		Registry:  registry,
		Events:    events.NewBus(nil),
		Logger:    telemetry.NewNoopLogger(),
		Store:     memory.NewStateStore(),
		Approvals: memory.NewApprovalStore(),
		Runs:      memory.NewRunRecordStore(),
	}
}

// Start creates a fresh AgentState and drives iterations until the run
// pauses, completes, or fails.
func (l *Loop) Start(ctx context.Context, cfg agent.AgentConfig, tc agent.ToolContext) (*agent.AgentState, error) {
	cfg = cfg.WithDefaults()
	state := &agent.AgentState{
		RunID:       uuid.NewString(),
		WorkspaceID: tc.WorkspaceID,
		Status:      agent.StatusRunning,
		Messages:    []agent.Message{{Role: agent.RoleSystem, Content: cfg.SystemPrompt}},
	}
	l.audit(ctx, state, "agent_started", nil)
	startedAt := time.Now()
	l.persist(ctx, state, startedAt)

	controller := timeout.New(time.Duration(cfg.TimeoutMS) * time.Millisecond)
	controller.Start()
	defer controller.Stop()

	return l.drive(ctx, state, cfg, tc, controller, startedAt)
}

// drive repeatedly advances state by one iteration until it leaves
// StatusRunning.
func (l *Loop) drive(ctx context.Context, state *agent.AgentState, cfg agent.AgentConfig, tc agent.ToolContext, controller *timeout.Controller, startedAt time.Time) (*agent.AgentState, error) {
	for state.Status == agent.StatusRunning {
		if cfg.MaxIterations > 0 && state.Iterations >= cfg.MaxIterations {
			l.terminateMaxIterations(state)
			break
		}
		if err := l.iterate(ctx, state, cfg, tc, controller); err != nil {
			l.persist(ctx, state, startedAt)
			return state, err
		}
	}
	l.persist(ctx, state, startedAt)
	return state, nil
}

// persist saves the full state and a RunRecord summary through the
// configured stores, if any. A persistence failure is not fatal to the
// run: it is logged and swallowed, matching AuditLog.Record's
// never-block-progress rule.
func (l *Loop) persist(ctx context.Context, state *agent.AgentState, startedAt time.Time) {
	if l.Store != nil {
		if err := l.Store.Save(ctx, state); err != nil {
			l.Logger.Warn(ctx, "saving agent state failed", "run_id", state.RunID, "err", err)
		}
	}
	if l.Runs != nil {
		if err := l.Runs.Upsert(ctx, agent.RunRecordFromState(state, startedAt)); err != nil {
			l.Logger.Warn(ctx, "upserting run record failed", "run_id", state.RunID, "err", err)
		}
	}
}

// iterate runs exactly one turn of the per-iteration contract (spec §4.6).
func (l *Loop) iterate(ctx context.Context, state *agent.AgentState, cfg agent.AgentConfig, tc agent.ToolContext, controller *timeout.Controller) error {
	// 1. Budget gate.
	if !controller.HasTimeFor(timeout.MinIterationTimeMS * time.Millisecond) {
		if controller.IsTimedOut() {
			l.publish(ctx, state, agent.EventTimeout, "", "", nil)
			state.Status = agent.StatusFailed
			state.Error = "wall-clock budget exhausted"
			l.publish(ctx, state, agent.EventFailed, "", "", nil)
			return nil
		}
		l.publish(ctx, state, agent.EventTimeout, "", "", nil)
		state.Status = agent.StatusCompleted
		state.Result = "Investigation timed out after " + controller.Elapsed().Round(time.Second).String() + ". " + stitchAssistantContent(state.Messages)
		l.publish(ctx, state, agent.EventCompleted, "", "", nil)
		return nil
	}

	// 2. Increment iterations.
	state.Iterations++
	l.publish(ctx, state, agent.EventIterationStart, "", "", nil)

	// Guardrail: enforce the rate/cost budget before the next LLM call.
	if l.Budget != nil {
		if err := l.Budget.Allow(ctx, estimatedCostPerCall); err != nil {
			state.Status = agent.StatusFailed
			state.Error = err.Error()
			l.publish(ctx, state, agent.EventFailed, "", "", nil)
			return nil
		}
	}

	// 3. LLM call.
	callBudget := controller.Remaining() - perCallSafetyMarginMS
	if callBudget > perCallMaxMS {
		callBudget = perCallMaxMS
	}
	if callBudget < 0 {
		callBudget = 0
	}

	tools := l.Registry.GetDefinitions()
	opts := provider.Options{Temperature: callTemperature, MaxTokens: callMaxTokens}

	var resp provider.ToolResponse
	callErr := controller.WithTimeout(ctx, callBudget, func(ctx context.Context) error {
		r, err := l.Provider.CompleteWithTools(ctx, state.Messages, tools, opts)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if callErr != nil {
		state.Status = agent.StatusFailed
		state.Error = fmt.Sprintf("provider call failed: %v", callErr)
		l.publish(ctx, state, agent.EventFailed, "", "", nil)
		return nil
	}
	if l.Budget != nil {
		_ = l.Budget.Record(ctx, estimatedCostPerCall)
	}
	l.publish(ctx, state, agent.EventLLMResponse, "", "", map[string]any{"finish_reason": string(resp.FinishReason)})

	// 4. Response dispatch.
	if len(resp.ToolCalls) == 0 {
		content := resp.Content
		if content == "" {
			content = "Investigation complete."
		}
		state.Messages = append(state.Messages, agent.Message{Role: agent.RoleAssistant, Content: content})
		state.Status = agent.StatusCompleted
		state.Result = content
		l.publish(ctx, state, agent.EventCompleted, "", "", nil)
		return nil
	}

	calls := crossCallFilter(resp.Content, resp.ToolCalls)
	state.Messages = append(state.Messages, agent.Message{Role: agent.RoleAssistant, Content: resp.Content, ToolCalls: calls})

	// 5. Per tool_call processing.
	for _, call := range calls {
		paused, err := l.processToolCall(ctx, state, tc, call)
		if err != nil {
			state.Status = agent.StatusFailed
			state.Error = err.Error()
			l.publish(ctx, state, agent.EventFailed, "", "", nil)
			return nil
		}
		if paused {
			return nil
		}
	}
	return nil
}

// processToolCall handles one ToolCall: approval-gating, guardrail
// scanning, execution, and transcript/history bookkeeping. Returns
// paused=true when the loop suspended on this call, meaning remaining
// calls in the same turn must not be processed.
func (l *Loop) processToolCall(ctx context.Context, state *agent.AgentState, tc agent.ToolContext, call agent.ToolCall) (bool, error) {
	l.publish(ctx, state, agent.EventToolCall, call.ToolName, call.ID, nil)

	if l.Registry.RequiresApproval(call.ToolName) || !l.Registry.CanAutoExecute(call.ToolName) {
		state.PendingApproval = &agent.PendingApproval{
			ToolCallID:  call.ID,
			ToolName:    call.ToolName,
			ToolArgs:    call.Arguments,
			RequestedAt: time.Now(),
		}
		state.Status = agent.StatusPaused
		l.audit(ctx, state, "approval_requested", map[string]any{"tool_name": call.ToolName})
		l.publish(ctx, state, agent.EventApprovalRequired, call.ToolName, call.ID, nil)
		if l.Approvals != nil {
			if req, ok := PendingApprovalRequest(state); ok {
				if err := l.Approvals.Save(ctx, req); err != nil {
					l.Logger.Warn(ctx, "saving approval request failed", "run_id", state.RunID, "err", err)
				}
			}
		}
		return true, nil
	}

	result := l.execute(ctx, state, tc, call)
	l.publish(ctx, state, agent.EventToolResult, call.ToolName, call.ID, map[string]any{"success": result.Success})

	state.LastToolCall = call.ToolName
	state.ToolCallHistory = append(state.ToolCallHistory, agent.ToolCallRecord{
		Iteration: state.Iterations,
		ToolName:  call.ToolName,
		Args:      call.Arguments,
		Result:    result,
		Timestamp: time.Now(),
	})
	state.Messages = append(state.Messages, agent.Message{
		Role:       agent.RoleTool,
		ToolCallID: call.ID,
		Content:    toolMessageContent(result),
	})
	return false, nil
}

// execute scans arguments for denylisted content before dispatching to the
// registry, and redacts secret shapes from the output before it can enter
// the transcript.
func (l *Loop) execute(ctx context.Context, state *agent.AgentState, tc agent.ToolContext, call agent.ToolCall) agent.ToolResult {
	args := call.ParseArguments()
	if l.Guardrail != nil {
		violations := l.Guardrail.Scan(call.Arguments)
		l.audit(ctx, state, "tool_called", map[string]any{"tool_name": call.ToolName, "args": args})
		if guardrail.Blocked(violations) {
			return agent.ToolResult{Success: false, Error: fmt.Sprintf("blocked by guardrail: %s", violations[0].Pattern)}
		}
	} else {
		l.audit(ctx, state, "tool_called", map[string]any{"tool_name": call.ToolName, "args": args})
	}

	result := l.Registry.Execute(ctx, call.ToolName, args, tc)
	result.Output = guardrail.RedactOutput(result.Output)
	return result
}

func (l *Loop) terminateMaxIterations(state *agent.AgentState) {
	state.Status = agent.StatusCompleted
	state.Result = "Investigation reached maximum iterations. " + stitchAssistantContent(state.Messages)
}

func toolMessageContent(result agent.ToolResult) string {
	if result.Success {
		return result.Output
	}
	return "Error: " + result.Error
}

// stitchAssistantContent concatenates every non-empty assistant message's
// content, in order, used to build a graceful-termination result string.
func stitchAssistantContent(messages []agent.Message) string {
	var parts []string
	for _, m := range messages {
		if m.Role == agent.RoleAssistant && m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// crossCallFilter drops a same-turn tool call that creates or drafts a PR
// against a repo when another call in the same turn reads a file from that
// same repo, per spec §4.6: the read must commit its tool message to the
// transcript before a later turn may propose a PR using its output.
func crossCallFilter(_ string, calls []agent.ToolCall) []agent.ToolCall {
	readRepos := make(map[string]struct{})
	for _, c := range calls {
		if isReadFileTool(c.ToolName) {
			if repo, ok := repoArg(c); ok {
				readRepos[repo] = struct{}{}
			}
		}
	}
	if len(readRepos) == 0 {
		return calls
	}

	out := make([]agent.ToolCall, 0, len(calls))
	for _, c := range calls {
		if isCreatePRTool(c.ToolName) {
			if repo, ok := repoArg(c); ok {
				if _, sameTurnRead := readRepos[repo]; sameTurnRead {
					continue
				}
			}
		}
		out = append(out, c)
	}
	return out
}

func isReadFileTool(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "read_file") || strings.Contains(n, "get_file") || strings.Contains(n, "read_repo")
}

func isCreatePRTool(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "create_pr") || strings.Contains(n, "draft_pr") || strings.Contains(n, "open_pr")
}

func repoArg(c agent.ToolCall) (string, bool) {
	args := c.ParseArguments()
	if repo, ok := args["repo"].(string); ok && repo != "" {
		return repo, true
	}
	if repo, ok := args["repository"].(string); ok && repo != "" {
		return repo, true
	}
	return "", false
}

func (l *Loop) publish(ctx context.Context, state *agent.AgentState, kind agent.EventKind, toolName, toolCallID string, data map[string]any) {
	if l.Events == nil {
		return
	}
	l.Events.Publish(ctx, agent.AgentEvent{
		Kind:       kind,
		RunID:      state.RunID,
		Iteration:  state.Iterations,
		ToolName:   toolName,
		ToolCallID: toolCallID,
		Data:       data,
		Timestamp:  time.Now(),
	})
}

func (l *Loop) audit(ctx context.Context, state *agent.AgentState, kind string, detail map[string]any) {
	if l.Audit == nil {
		return
	}
	l.Audit.Record(ctx, state.RunID, state.WorkspaceID, kind, detail)
}
