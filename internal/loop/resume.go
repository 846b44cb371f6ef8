package loop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/watchtower-ai/watchtower/internal/agent"
	"github.com/watchtower-ai/watchtower/internal/timeout"
)

// ErrNotPaused is returned when Resume is called on a state that is not
// currently paused, per spec §4.7's precondition error.
var ErrNotPaused = errors.New("loop: resume called on a non-paused run")

// Resume consumes the pending approval on state (exactly once — callers
// must not invoke this twice for the same PendingApproval) and re-enters
// the loop. approved=false rejects the pending tool call; approved=true
// executes it with its originally recorded arguments.
func (l *Loop) Resume(ctx context.Context, state *agent.AgentState, cfg agent.AgentConfig, tc agent.ToolContext, approved bool) (*agent.AgentState, error) {
	if state.Status != agent.StatusPaused || state.PendingApproval == nil {
		return state, ErrNotPaused
	}
	pending := *state.PendingApproval
	cfg = cfg.WithDefaults()

	isExpired := expired(pending)
	if isExpired {
		approved = false
	}

	if approved {
		call := agent.ToolCall{ID: pending.ToolCallID, ToolName: pending.ToolName, Arguments: pending.ToolArgs}
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
	} else {
		content := fmt.Sprintf("Action %q was rejected by the user. Please suggest an alternative approach.", pending.ToolName)
		if isExpired {
			content = fmt.Sprintf("Action %q was not run: its approval request expired before a decision was made. Please suggest an alternative approach.", pending.ToolName)
		}
		state.Messages = append(state.Messages, agent.Message{
			Role:       agent.RoleTool,
			ToolCallID: pending.ToolCallID,
			Content:    content,
		})
	}

	state.PendingApproval = nil
	state.Status = agent.StatusRunning
	l.audit(ctx, state, "approval_decided", map[string]any{"tool_name": pending.ToolName, "approved": approved})
	if l.Approvals != nil {
		if err := l.Approvals.Delete(ctx, pending.ToolCallID); err != nil {
			l.Logger.Warn(ctx, "deleting consumed approval request failed", "run_id", state.RunID, "err", err)
		}
	}

	controller := timeout.New(time.Duration(cfg.TimeoutMS) * time.Millisecond)
	controller.Start()
	defer controller.Stop()
	return l.drive(ctx, state, cfg, tc, controller, time.Now())
}

// ResumeByRunID loads a previously paused AgentState from l.Store, applies
// the approve/reject decision via Resume, and persists the result. It is
// the entry point for an out-of-process decision (spec §4.7): the CLI's
// -resume flag calls this instead of holding the *agent.AgentState from
// the original Start call in memory.
func (l *Loop) ResumeByRunID(ctx context.Context, runID string, cfg agent.AgentConfig, tc agent.ToolContext, approved bool) (*agent.AgentState, error) {
	if l.Store == nil {
		return nil, fmt.Errorf("loop: resume by run id requires a configured Store")
	}
	state, err := l.Store.Load(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("loop: loading state for run %q: %w", runID, err)
	}
	return l.Resume(ctx, state, cfg, tc, approved)
}

func expired(p agent.PendingApproval) bool {
	req := agent.ApprovalRequest{ExpiresAt: p.RequestedAt.Add(agent.DefaultApprovalTTL)}
	return req.IsExpired(time.Now())
}

// PendingApprovalRequest builds the durable ApprovalRequest record for
// state's current pending approval, for callers that persist it (e.g. to
// internal/store/redis) and later decide Approve/Reject out of process.
// The record's ID is the pending tool call's own ID, so a later
// ResumeByRunID/Resume can delete the same record it was handed without a
// separate lookup. Returns false if state is not currently paused.
func PendingApprovalRequest(state *agent.AgentState) (agent.ApprovalRequest, bool) {
	if state.PendingApproval == nil {
		return agent.ApprovalRequest{}, false
	}
	p := state.PendingApproval
	return agent.ApprovalRequest{
		ID:          p.ToolCallID,
		RunID:       state.RunID,
		WorkspaceID: state.WorkspaceID,
		ToolName:    p.ToolName,
		ToolArgs:    p.ToolArgs,
		Status:      agent.ApprovalPending,
		RequestedAt: p.RequestedAt,
		ExpiresAt:   p.RequestedAt.Add(agent.DefaultApprovalTTL),
	}, true
}
