package toolregistry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchtower-ai/watchtower/internal/agent"
)

func readOnlyTool(name string) agent.Tool {
	return agent.Tool{
		Name:     name,
		RiskTier: agent.RiskReadOnly,
		Executor: func(ctx context.Context, tc agent.ToolContext, args map[string]any) (agent.ToolResult, error) {
			return agent.ToolResult{Success: true, Output: "ok"}, nil
		},
	}
}

func TestRegister_RejectsDuplicateName(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(readOnlyTool("a")))
	err := r.Register(readOnlyTool("a"))
	assert.Error(t, err)
}

func TestRegister_RejectsEmptyName(t *testing.T) {
	r := New()
	err := r.Register(agent.Tool{})
	assert.Error(t, err)
}

func TestRiskTierHelpers(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(readOnlyTool("read")))
	require.NoError(t, r.Register(agent.Tool{Name: "write", RiskTier: agent.RiskSafeWrite, Executor: noopExec}))
	require.NoError(t, r.Register(agent.Tool{Name: "destroy", RiskTier: agent.RiskDestructive, Executor: noopExec}))

	assert.False(t, r.RequiresApproval("read"))
	assert.True(t, r.CanAutoExecute("read"))

	assert.False(t, r.RequiresApproval("write"))
	assert.True(t, r.CanAutoExecute("write"))

	assert.True(t, r.RequiresApproval("destroy"))
	assert.False(t, r.CanAutoExecute("destroy"))

	assert.True(t, r.RequiresApproval("unknown"))
	assert.False(t, r.CanAutoExecute("unknown"))
}

func noopExec(ctx context.Context, tc agent.ToolContext, args map[string]any) (agent.ToolResult, error) {
	return agent.ToolResult{Success: true}, nil
}

func TestExecute_UnknownToolReturnsFailedResult(t *testing.T) {
	r := New()
	res := r.Execute(context.Background(), "missing", nil, agent.ToolContext{})
	assert.False(t, res.Success)
	assert.Equal(t, "Unknown tool", res.Error)
}

func TestExecute_AbsorbsExecutorError(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(agent.Tool{
		Name: "fails",
		Executor: func(ctx context.Context, tc agent.ToolContext, args map[string]any) (agent.ToolResult, error) {
			return agent.ToolResult{}, errors.New("boom")
		},
	}))
	res := r.Execute(context.Background(), "fails", nil, agent.ToolContext{})
	assert.False(t, res.Success)
	assert.Equal(t, "boom", res.Error)
}

func TestExecute_AbsorbsPanic(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(agent.Tool{
		Name: "panics",
		Executor: func(ctx context.Context, tc agent.ToolContext, args map[string]any) (agent.ToolResult, error) {
			panic("kaboom")
		},
	}))
	res := r.Execute(context.Background(), "panics", nil, agent.ToolContext{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "kaboom")
}

func TestGetDefinitionsAndGetAll(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(readOnlyTool("a")))
	require.NoError(t, r.Register(readOnlyTool("b")))
	assert.Len(t, r.GetAll(), 2)
	assert.Len(t, r.GetDefinitions(), 2)
}

func schemaTool(name string) agent.Tool {
	return agent.Tool{
		Name:     name,
		RiskTier: agent.RiskReadOnly,
		Definition: agent.ToolDefinition{
			Name: name,
			Parameters: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{"query": map[string]any{"type": "string"}},
				"required":             []any{"query"},
				"additionalProperties": false,
			},
		},
		Executor: noopExec,
	}
}

func TestExecute_RejectsArgsViolatingSchema(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(schemaTool("query_logs")))

	res := r.Execute(context.Background(), "query_logs", map[string]any{"limit": 10}, agent.ToolContext{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "invalid arguments")
}

func TestExecute_AllowsArgsMatchingSchema(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(schemaTool("query_logs")))

	res := r.Execute(context.Background(), "query_logs", map[string]any{"query": "error"}, agent.ToolContext{})
	assert.True(t, res.Success)
}

func TestExecute_ToolWithoutSchemaSkipsValidation(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(readOnlyTool("no_schema")))

	res := r.Execute(context.Background(), "no_schema", map[string]any{"anything": true}, agent.ToolContext{})
	assert.True(t, res.Success)
}
