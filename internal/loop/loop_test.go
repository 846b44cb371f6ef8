package loop

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchtower-ai/watchtower/internal/agent"
	"github.com/watchtower-ai/watchtower/internal/guardrail"
	"github.com/watchtower-ai/watchtower/internal/provider"
	"github.com/watchtower-ai/watchtower/internal/toolregistry"
)

// fakeProvider replays a scripted sequence of responses, one per call to
// CompleteWithTools, so tests can drive the loop deterministically.
type fakeProvider struct {
	responses []provider.ToolResponse
	calls     int
}

func (f *fakeProvider) Complete(ctx context.Context, messages []agent.Message, opts provider.Options) (string, error) {
	resp, err := f.CompleteWithTools(ctx, messages, nil, opts)
	return resp.Content, err
}

func (f *fakeProvider) CompleteWithTools(_ context.Context, _ []agent.Message, _ []agent.ToolDefinition, _ provider.Options) (provider.ToolResponse, error) {
	if f.calls >= len(f.responses) {
		return provider.ToolResponse{Content: "Investigation complete.", FinishReason: provider.FinishStop}, nil
	}
	r := f.responses[f.calls]
	f.calls++
	return r, nil
}

func newRegistry(t *testing.T, tools ...agent.Tool) *toolregistry.Registry {
	t.Helper()
	r := toolregistry.New()
	for _, tool := range tools {
		require.NoError(t, r.Register(tool))
	}
	return r
}

func readOnlyTool(name string, executor func(ctx context.Context, tc agent.ToolContext, args map[string]any) (agent.ToolResult, error)) agent.Tool {
	return agent.Tool{
		Name:       name,
		RiskTier:   agent.RiskReadOnly,
		Definition: agent.ToolDefinition{Name: name},
		Executor:   executor,
	}
}

func destructiveTool(name string) agent.Tool {
	return agent.Tool{
		Name:       name,
		RiskTier:   agent.RiskDestructive,
		Definition: agent.ToolDefinition{Name: name},
		Executor: func(ctx context.Context, tc agent.ToolContext, args map[string]any) (agent.ToolResult, error) {
			return agent.ToolResult{Success: true, Output: "deleted"}, nil
		},
	}
}

func TestStart_SingleReadOnlyToolRunsToCompletion(t *testing.T) {
	tool := readOnlyTool("cloudwatch_query_logs", func(ctx context.Context, tc agent.ToolContext, args map[string]any) (agent.ToolResult, error) {
		return agent.ToolResult{Success: true, Output: "3 errors found"}, nil
	})
	p := &fakeProvider{responses: []provider.ToolResponse{
		{ToolCalls: []agent.ToolCall{{ID: "call_1", ToolName: "cloudwatch_query_logs", Arguments: `{"query":"error"}`}}, FinishReason: provider.FinishToolCalls},
		{Content: "Root cause: disk full.", FinishReason: provider.FinishStop},
	}}
	l := New(p, newRegistry(t, tool))

	state, err := l.Start(context.Background(), agent.AgentConfig{MaxIterations: 10, SystemPrompt: "investigate"}, agent.ToolContext{WorkspaceID: "ws1"})
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, state.Status)
	assert.Equal(t, "Root cause: disk full.", state.Result)
	require.Len(t, state.ToolCallHistory, 1)
	assert.Equal(t, "cloudwatch_query_logs", state.ToolCallHistory[0].ToolName)
	assert.Equal(t, "", state.Invariant())
}

func TestStart_DestructiveToolSuspends(t *testing.T) {
	tool := destructiveTool("delete_pod")
	p := &fakeProvider{responses: []provider.ToolResponse{
		{ToolCalls: []agent.ToolCall{{ID: "call_1", ToolName: "delete_pod", Arguments: `{"pod":"api-1"}`}}, FinishReason: provider.FinishToolCalls},
	}}
	l := New(p, newRegistry(t, tool))

	state, err := l.Start(context.Background(), agent.AgentConfig{MaxIterations: 10}, agent.ToolContext{WorkspaceID: "ws1"})
	require.NoError(t, err)
	assert.Equal(t, agent.StatusPaused, state.Status)
	require.NotNil(t, state.PendingApproval)
	assert.Equal(t, "delete_pod", state.PendingApproval.ToolName)
	assert.Equal(t, "", state.Invariant())
}

func TestResume_ApprovedExecutesAndContinues(t *testing.T) {
	tool := destructiveTool("delete_pod")
	p := &fakeProvider{responses: []provider.ToolResponse{
		{ToolCalls: []agent.ToolCall{{ID: "call_1", ToolName: "delete_pod", Arguments: `{"pod":"api-1"}`}}, FinishReason: provider.FinishToolCalls},
		{Content: "Pod recycled, incident resolved.", FinishReason: provider.FinishStop},
	}}
	l := New(p, newRegistry(t, tool))
	cfg := agent.AgentConfig{MaxIterations: 10}
	tc := agent.ToolContext{WorkspaceID: "ws1"}

	state, err := l.Start(context.Background(), cfg, tc)
	require.NoError(t, err)
	require.Equal(t, agent.StatusPaused, state.Status)

	state, err = l.Resume(context.Background(), state, cfg, tc, true)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, state.Status)
	assert.Equal(t, "Pod recycled, incident resolved.", state.Result)
	assert.Nil(t, state.PendingApproval)
	require.Len(t, state.ToolCallHistory, 1)
	assert.True(t, state.ToolCallHistory[0].Result.Success)
}

func TestResume_RejectedAppendsMessageAndContinues(t *testing.T) {
	tool := destructiveTool("delete_pod")
	p := &fakeProvider{responses: []provider.ToolResponse{
		{ToolCalls: []agent.ToolCall{{ID: "call_1", ToolName: "delete_pod", Arguments: `{}`}}, FinishReason: provider.FinishToolCalls},
		{Content: "Understood, trying a safer remediation.", FinishReason: provider.FinishStop},
	}}
	l := New(p, newRegistry(t, tool))
	cfg := agent.AgentConfig{MaxIterations: 10}
	tc := agent.ToolContext{WorkspaceID: "ws1"}

	state, err := l.Start(context.Background(), cfg, tc)
	require.NoError(t, err)

	state, err = l.Resume(context.Background(), state, cfg, tc, false)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, state.Status)
	assert.Empty(t, state.ToolCallHistory)

	var sawRejection bool
	for _, m := range state.Messages {
		if m.Role == agent.RoleTool && m.ToolCallID == "call_1" {
			sawRejection = true
			assert.Contains(t, m.Content, "rejected by the user")
		}
	}
	assert.True(t, sawRejection)
}

func TestResume_PreconditionErrorWhenNotPaused(t *testing.T) {
	l := New(&fakeProvider{}, newRegistry(t))
	state := &agent.AgentState{Status: agent.StatusRunning}
	_, err := l.Resume(context.Background(), state, agent.AgentConfig{}, agent.ToolContext{}, true)
	assert.ErrorIs(t, err, ErrNotPaused)
}

func TestMaxIterations_GracefulTermination(t *testing.T) {
	tool := readOnlyTool("ping", func(ctx context.Context, tc agent.ToolContext, args map[string]any) (agent.ToolResult, error) {
		return agent.ToolResult{Success: true, Output: "pong"}, nil
	})
	var responses []provider.ToolResponse
	for i := 0; i < 5; i++ {
		responses = append(responses, provider.ToolResponse{
			Content:      "partial finding",
			ToolCalls:    []agent.ToolCall{{ID: "c", ToolName: "ping", Arguments: "{}"}},
			FinishReason: provider.FinishToolCalls,
		})
	}
	l := New(&fakeProvider{responses: responses}, newRegistry(t, tool))

	state, err := l.Start(context.Background(), agent.AgentConfig{MaxIterations: 2}, agent.ToolContext{WorkspaceID: "ws1"})
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, state.Status)
	assert.Contains(t, state.Result, "Investigation reached maximum iterations.")
	assert.Equal(t, 2, state.Iterations)
}

func TestCrossCallFilter_DropsSameTurnPRAfterRead(t *testing.T) {
	read := agent.ToolCall{ID: "c1", ToolName: "github_read_file", Arguments: `{"repo":"acme/api","path":"main.go"}`}
	pr := agent.ToolCall{ID: "c2", ToolName: "github_create_pr", Arguments: `{"repo":"acme/api"}`}
	other := agent.ToolCall{ID: "c3", ToolName: "github_create_pr", Arguments: `{"repo":"acme/other"}`}

	out := crossCallFilter("", []agent.ToolCall{read, pr, other})

	var names []string
	for _, c := range out {
		names = append(names, c.ToolName+":"+mustRepo(c))
	}
	assert.Equal(t, []string{"github_read_file:acme/api", "github_create_pr:acme/other"}, names)
}

func mustRepo(c agent.ToolCall) string {
	repo, _ := repoArg(c)
	return repo
}

func TestCrossCallFilter_NoReadLeavesPRIntact(t *testing.T) {
	pr := agent.ToolCall{ID: "c2", ToolName: "github_create_pr", Arguments: `{"repo":"acme/api"}`}
	out := crossCallFilter("", []agent.ToolCall{pr})
	require.Len(t, out, 1)
}

func TestToolCall_ParseArguments_MalformedJSONDegrades(t *testing.T) {
	tc := agent.ToolCall{Arguments: "not json"}
	args := tc.ParseArguments()
	assert.Equal(t, map[string]any{"raw": "not json"}, args)
}

func TestUnknownToolRequiresApproval(t *testing.T) {
	r := newRegistry(t)
	assert.True(t, r.RequiresApproval("mystery_tool"))
	assert.False(t, r.CanAutoExecute("mystery_tool"))
}

func TestGuardrail_BlocksDenylistedArguments(t *testing.T) {
	executed := false
	tool := readOnlyTool("run_sql", func(ctx context.Context, tc agent.ToolContext, args map[string]any) (agent.ToolResult, error) {
		executed = true
		return agent.ToolResult{Success: true}, nil
	})
	p := &fakeProvider{responses: []provider.ToolResponse{
		{ToolCalls: []agent.ToolCall{{ID: "c1", ToolName: "run_sql", Arguments: `{"query":"DROP TABLE users"}`}}, FinishReason: provider.FinishToolCalls},
		{Content: "done", FinishReason: provider.FinishStop},
	}}
	l := New(p, newRegistry(t, tool))
	l.Guardrail = guardrail.NewScanner(nil)

	state, err := l.Start(context.Background(), agent.AgentConfig{MaxIterations: 10}, agent.ToolContext{WorkspaceID: "ws1"})
	require.NoError(t, err)
	assert.False(t, executed)
	require.Len(t, state.ToolCallHistory, 1)
	assert.False(t, state.ToolCallHistory[0].Result.Success)
	assert.Contains(t, state.ToolCallHistory[0].Result.Error, "blocked by guardrail")
}

func TestStart_PersistsStateAndRunRecordToConfiguredStores(t *testing.T) {
	tool := readOnlyTool("ping", func(ctx context.Context, tc agent.ToolContext, args map[string]any) (agent.ToolResult, error) {
		return agent.ToolResult{Success: true, Output: "pong"}, nil
	})
	p := &fakeProvider{responses: []provider.ToolResponse{
		{ToolCalls: []agent.ToolCall{{ID: "c1", ToolName: "ping", Arguments: "{}"}}, FinishReason: provider.FinishToolCalls},
		{Content: "done", FinishReason: provider.FinishStop},
	}}
	l := New(p, newRegistry(t, tool))

	state, err := l.Start(context.Background(), agent.AgentConfig{MaxIterations: 10}, agent.ToolContext{WorkspaceID: "ws1"})
	require.NoError(t, err)

	saved, err := l.Store.Load(context.Background(), state.RunID)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, saved.Status)

	rec, err := l.Runs.Load(context.Background(), state.RunID)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, rec.Status)
	assert.Equal(t, "ws1", rec.WorkspaceID)
}

func TestStart_PersistsApprovalRequestOnPause(t *testing.T) {
	tool := destructiveTool("delete_pod")
	p := &fakeProvider{responses: []provider.ToolResponse{
		{ToolCalls: []agent.ToolCall{{ID: "call_1", ToolName: "delete_pod", Arguments: `{"pod":"api-1"}`}}, FinishReason: provider.FinishToolCalls},
	}}
	l := New(p, newRegistry(t, tool))

	state, err := l.Start(context.Background(), agent.AgentConfig{MaxIterations: 10}, agent.ToolContext{WorkspaceID: "ws1"})
	require.NoError(t, err)
	require.Equal(t, agent.StatusPaused, state.Status)

	req, err := l.Approvals.Load(context.Background(), "call_1")
	require.NoError(t, err)
	assert.Equal(t, "delete_pod", req.ToolName)
	assert.Equal(t, agent.ApprovalPending, req.Status)
}

func TestResumeByRunID_LoadsFromStoreAndDeletesApproval(t *testing.T) {
	tool := destructiveTool("delete_pod")
	p := &fakeProvider{responses: []provider.ToolResponse{
		{ToolCalls: []agent.ToolCall{{ID: "call_1", ToolName: "delete_pod", Arguments: `{}`}}, FinishReason: provider.FinishToolCalls},
		{Content: "Pod recycled.", FinishReason: provider.FinishStop},
	}}
	l := New(p, newRegistry(t, tool))
	cfg := agent.AgentConfig{MaxIterations: 10}
	tc := agent.ToolContext{WorkspaceID: "ws1"}

	state, err := l.Start(context.Background(), cfg, tc)
	require.NoError(t, err)
	require.Equal(t, agent.StatusPaused, state.Status)

	resumed, err := l.ResumeByRunID(context.Background(), state.RunID, cfg, tc, true)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, resumed.Status)

	_, err = l.Approvals.Load(context.Background(), "call_1")
	assert.Error(t, err)
}

func TestResumeByRunID_UnknownRunIDErrors(t *testing.T) {
	l := New(&fakeProvider{}, newRegistry(t))
	_, err := l.ResumeByRunID(context.Background(), "does-not-exist", agent.AgentConfig{}, agent.ToolContext{}, true)
	assert.Error(t, err)
}

func TestAgentState_RoundTripsThroughJSON(t *testing.T) {
	tool := readOnlyTool("ping", func(ctx context.Context, tc agent.ToolContext, args map[string]any) (agent.ToolResult, error) {
		return agent.ToolResult{Success: true, Output: "pong"}, nil
	})
	p := &fakeProvider{responses: []provider.ToolResponse{
		{ToolCalls: []agent.ToolCall{{ID: "c1", ToolName: "ping", Arguments: "{}"}}, FinishReason: provider.FinishToolCalls},
		{Content: "done", FinishReason: provider.FinishStop},
	}}
	l := New(p, newRegistry(t, tool))

	state, err := l.Start(context.Background(), agent.AgentConfig{MaxIterations: 10}, agent.ToolContext{WorkspaceID: "ws1"})
	require.NoError(t, err)

	data, err := json.Marshal(state)
	require.NoError(t, err)
	var decoded agent.AgentState
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, state.RunID, decoded.RunID)
	assert.Equal(t, state.Status, decoded.Status)
	assert.Equal(t, "", decoded.Invariant())
}
