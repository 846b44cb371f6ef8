package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchtower-ai/watchtower/internal/agent"
	"github.com/watchtower-ai/watchtower/internal/guardrail"
)

func TestStateStore_SaveAndLoad(t *testing.T) {
	s := NewStateStore()
	state := &agent.AgentState{RunID: "r1", Status: agent.StatusRunning}
	require.NoError(t, s.Save(context.Background(), state))

	got, err := s.Load(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.RunID)
}

func TestStateStore_LoadMissingReturnsError(t *testing.T) {
	s := NewStateStore()
	_, err := s.Load(context.Background(), "missing")
	assert.Error(t, err)
}

func TestApprovalStore_SaveLoadDelete(t *testing.T) {
	s := NewApprovalStore()
	req := agent.ApprovalRequest{ID: "a1", ToolName: "destroy"}
	require.NoError(t, s.Save(context.Background(), req))

	got, err := s.Load(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "destroy", got.ToolName)

	require.NoError(t, s.Delete(context.Background(), "a1"))
	_, err = s.Load(context.Background(), "a1")
	assert.Error(t, err)
}

func TestRunRecordStore_UpsertAndLoad(t *testing.T) {
	s := NewRunRecordStore()
	rec := agent.RunRecord{RunID: "r1", WorkspaceID: "ws1", Status: agent.StatusRunning}
	require.NoError(t, s.Upsert(context.Background(), rec))

	got, err := s.Load(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "ws1", got.WorkspaceID)

	rec.Status = agent.StatusCompleted
	require.NoError(t, s.Upsert(context.Background(), rec))
	got, err = s.Load(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, got.Status)
}

func TestRunRecordStore_LoadMissingReturnsError(t *testing.T) {
	s := NewRunRecordStore()
	_, err := s.Load(context.Background(), "missing")
	assert.Error(t, err)
}

func TestAuditSink_AppendAndEntriesReturnsCopy(t *testing.T) {
	s := NewAuditSink()
	require.NoError(t, s.Append(context.Background(), guardrail.AuditEntry{Kind: "agent_started"}))
	require.NoError(t, s.Append(context.Background(), guardrail.AuditEntry{Kind: "tool_called"}))

	entries := s.Entries()
	require.Len(t, entries, 2)
	entries[0].Kind = "mutated"
	assert.Equal(t, "agent_started", s.Entries()[0].Kind)
}
