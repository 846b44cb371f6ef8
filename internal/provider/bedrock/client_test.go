package bedrock

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchtower-ai/watchtower/internal/agent"
	"github.com/watchtower-ai/watchtower/internal/provider"
)

type stubRuntimeClient struct {
	output *bedrockruntime.ConverseOutput
	err    error
	calls  int
}

func (s *stubRuntimeClient) Converse(_ context.Context, _ *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.calls++
	return s.output, s.err
}

type fakeAPIError struct{ code string }

func (e *fakeAPIError) Error() string                 { return e.code }
func (e *fakeAPIError) ErrorCode() string              { return e.code }
func (e *fakeAPIError) ErrorMessage() string           { return e.code }
func (e *fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

func TestNew_RequiresRuntimeAndModel(t *testing.T) {
	_, err := New(nil, "model", 0)
	assert.Error(t, err)

	_, err = New(&stubRuntimeClient{}, "", 0)
	assert.Error(t, err)
}

func TestComplete_TextOnly(t *testing.T) {
	stub := &stubRuntimeClient{output: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "hello there"}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
	}}
	cl, err := New(stub, "anthropic.claude-3", 512)
	require.NoError(t, err)

	out, err := cl.Complete(context.Background(), []agent.Message{{Role: agent.RoleUser, Content: "hi"}}, provider.Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)
	assert.Equal(t, 1, stub.calls)
}

func TestCompleteWithTools_ToolUseRoundTripsID(t *testing.T) {
	stub := &stubRuntimeClient{output: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role: brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
				ToolUseId: aws.String("call#1"),
				Name:      aws.String("query_logs"),
			}}},
		}},
		StopReason: brtypes.StopReasonToolUse,
	}}
	cl, err := New(stub, "anthropic.claude-3", 512)
	require.NoError(t, err)

	tools := []agent.ToolDefinition{{Name: "query_logs", Description: "query logs", Parameters: map[string]any{"type": "object"}}}
	resp, err := cl.CompleteWithTools(context.Background(), []agent.Message{{Role: agent.RoleUser, Content: "go"}}, tools, provider.Options{})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call#1", resp.ToolCalls[0].ID)
	assert.Equal(t, "query_logs", resp.ToolCalls[0].ToolName)
	assert.Equal(t, provider.FinishToolCalls, resp.FinishReason)
}

func TestClassifyError_ThrottlingExceptionMapsToRateLimited(t *testing.T) {
	err := classifyError(&fakeAPIError{code: "ThrottlingException"})
	assert.True(t, errors.Is(err, provider.ErrRateLimited))
}

func TestToolUseIDMapper_SanitizesInvalidIDs(t *testing.T) {
	m := newToolUseIDMapper()
	safe := m.safeID("weird id with spaces!!")
	assert.Regexp(t, `^[a-zA-Z0-9_-]{1,64}$`, safe)
	assert.Equal(t, "weird id with spaces!!", m.canonicalID(safe))
}

func TestCompleteWithTools_RecoversToolCallEmittedAsPlainTextJSON(t *testing.T) {
	stub := &stubRuntimeClient{output: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: `{"name":"query_logs","parameters":{"q":"error"}}`}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
	}}
	cl, err := New(stub, "anthropic.claude-3", 512)
	require.NoError(t, err)

	resp, err := cl.CompleteWithTools(context.Background(), []agent.Message{{Role: agent.RoleUser, Content: "go"}}, nil, provider.Options{})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "query_logs", resp.ToolCalls[0].ToolName)
	assert.Equal(t, provider.FinishToolCalls, resp.FinishReason)
	assert.Empty(t, resp.Content)
}
