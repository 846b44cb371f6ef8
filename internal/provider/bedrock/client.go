// Package bedrock adapts the AWS Bedrock Converse API to the
// provider.Provider contract. Grounded on the teacher's
// features/model/bedrock/client.go: a RuntimeClient seam wraps
// *bedrockruntime.Client, tool_use IDs are sanitized to Bedrock's
// [a-zA-Z0-9_-]{1,64} constraint, and rate-limit detection inspects
// smithy.APIError codes alongside HTTP 429.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/watchtower-ai/watchtower/internal/agent"
	"github.com/watchtower-ai/watchtower/internal/provider"
	"github.com/watchtower-ai/watchtower/internal/provider/retry"
)

// RuntimeClient is the subset of the Bedrock runtime client used by the
// adapter, matched by *bedrockruntime.Client.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client implements provider.Provider on top of AWS Bedrock Converse.
type Client struct {
	runtime     RuntimeClient
	modelID     string
	maxTokens   int
	retryConfig retry.Config
}

// New builds a Client from an injected RuntimeClient (real or fake).
func New(runtime RuntimeClient, modelID string, maxTokens int) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if modelID == "" {
		return nil, errors.New("bedrock: model identifier is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{runtime: runtime, modelID: modelID, maxTokens: maxTokens, retryConfig: retry.DefaultConfig()}, nil
}

func (c *Client) Complete(ctx context.Context, messages []agent.Message, opts provider.Options) (string, error) {
	resp, err := c.CompleteWithTools(ctx, messages, nil, opts)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (c *Client) CompleteWithTools(ctx context.Context, messages []agent.Message, tools []agent.ToolDefinition, opts provider.Options) (provider.ToolResponse, error) {
	idMap := newToolUseIDMapper()
	encoded, system, err := encodeMessages(messages, idMap)
	if err != nil {
		return provider.ToolResponse{}, err
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.resolveModel(opts)),
		Messages: encoded,
	}
	if len(system) > 0 {
		input.System = system
	}
	if len(tools) > 0 {
		input.ToolConfig = encodeTools(tools)
	}
	if cfg := c.inferenceConfig(opts); cfg != nil {
		input.InferenceConfig = cfg
	}

	var output *bedrockruntime.ConverseOutput
	retryErr := retry.Do(ctx, c.retryConfig, func(ctx context.Context) error {
		out, callErr := c.runtime.Converse(ctx, input)
		if callErr != nil {
			return classifyError(callErr)
		}
		output = out
		return nil
	})
	if retryErr != nil {
		if errors.Is(retryErr, provider.ErrRateLimited) {
			return provider.ToolResponse{}, retryErr
		}
		return provider.ToolResponse{}, fmt.Errorf("bedrock: converse: %w", retryErr)
	}
	return translateResponse(output, idMap)
}

func (c *Client) resolveModel(opts provider.Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	return c.modelID
}

func (c *Client) inferenceConfig(opts provider.Options) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	tokens := opts.MaxTokens
	if tokens <= 0 {
		tokens = c.maxTokens
	}
	if tokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(tokens)) //nolint:gosec // bounded by config, not user input
	}
	if opts.Temperature > 0 {
		cfg.Temperature = aws.Float32(float32(opts.Temperature))
	}
	if cfg.MaxTokens == nil && cfg.Temperature == nil {
		return nil
	}
	return &cfg
}

// toolUseIDMapper sanitizes tool_use IDs to Bedrock's [a-zA-Z0-9_-]{1,64}
// constraint and reverses the mapping when translating a response.
type toolUseIDMapper struct {
	canonicalToSafe map[string]string
	safeToCanonical map[string]string
	next            int
}

var safeToolUseID = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

func newToolUseIDMapper() *toolUseIDMapper {
	return &toolUseIDMapper{canonicalToSafe: map[string]string{}, safeToCanonical: map[string]string{}}
}

func (m *toolUseIDMapper) safeID(canonical string) string {
	if canonical == "" {
		return ""
	}
	if safeToolUseID.MatchString(canonical) {
		m.safeToCanonical[canonical] = canonical
		return canonical
	}
	if id, ok := m.canonicalToSafe[canonical]; ok {
		return id
	}
	m.next++
	id := fmt.Sprintf("t%d", m.next)
	m.canonicalToSafe[canonical] = id
	m.safeToCanonical[id] = canonical
	return id
}

func (m *toolUseIDMapper) canonicalID(safe string) string {
	if c, ok := m.safeToCanonical[safe]; ok {
		return c
	}
	return safe
}

func encodeMessages(messages []agent.Message, idMap *toolUseIDMapper) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	var system []brtypes.SystemContentBlock
	out := make([]brtypes.Message, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case agent.RoleSystem:
			if m.Content != "" {
				system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
			}
		case agent.RoleUser:
			out = append(out, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		case agent.RoleAssistant:
			var blocks []brtypes.ContentBlock
			if m.Content != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := document.NewLazyDocument(tc.ParseArguments())
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(idMap.safeID(tc.ID)),
					Name:      aws.String(tc.ToolName),
					Input:     input,
				}})
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, brtypes.Message{Role: brtypes.ConversationRoleAssistant, Content: blocks})
		case agent.RoleTool:
			block := brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
				ToolUseId: aws.String(idMap.safeID(m.ToolCallID)),
				Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: m.Content}},
			}}
			if n := len(out); n > 0 && out[n-1].Role == brtypes.ConversationRoleUser {
				out[n-1].Content = append(out[n-1].Content, &block)
			} else {
				out = append(out, brtypes.Message{Role: brtypes.ConversationRoleUser, Content: []brtypes.ContentBlock{&block}})
			}
		default:
			return nil, nil, fmt.Errorf("bedrock: unsupported message role %q", m.Role)
		}
	}
	return out, system, nil
}

func encodeTools(defs []agent.ToolDefinition) *brtypes.ToolConfiguration {
	tools := make([]brtypes.Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
			Name:        aws.String(def.Name),
			Description: aws.String(def.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(def.Parameters)},
		}})
	}
	return &brtypes.ToolConfiguration{Tools: tools}
}

func translateResponse(output *bedrockruntime.ConverseOutput, idMap *toolUseIDMapper) (provider.ToolResponse, error) {
	if output == nil || output.Output == nil {
		return provider.ToolResponse{}, fmt.Errorf("%w: nil converse output", provider.ErrProtocolInvalid)
	}
	msgOutput, ok := output.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return provider.ToolResponse{}, fmt.Errorf("%w: unexpected converse output variant", provider.ErrProtocolInvalid)
	}

	var resp provider.ToolResponse
	for _, block := range msgOutput.Value.Content {
		switch b := block.(type) {
		case *brtypes.ContentBlockMemberText:
			resp.Content += b.Value
		case *brtypes.ContentBlockMemberToolUse:
			var rawInput map[string]any
			if b.Value.Input != nil {
				if err := b.Value.Input.UnmarshalSmithyDocument(&rawInput); err != nil {
					return provider.ToolResponse{}, fmt.Errorf("%w: tool_use input: %v", provider.ErrProtocolInvalid, err)
				}
			}
			args, err := json.Marshal(rawInput)
			if err != nil {
				return provider.ToolResponse{}, fmt.Errorf("%w: tool_use input: %v", provider.ErrProtocolInvalid, err)
			}
			resp.ToolCalls = append(resp.ToolCalls, agent.ToolCall{
				ID:        idMap.canonicalID(aws.ToString(b.Value.ToolUseId)),
				ToolName:  aws.ToString(b.Value.Name),
				Arguments: string(args),
			})
		}
	}
	if len(resp.ToolCalls) == 0 {
		if recovered, ok := provider.RecoverToolCalls(resp.Content); ok {
			resp.ToolCalls = recovered
			resp.Content = ""
		}
	}
	switch {
	case len(resp.ToolCalls) > 0:
		resp.FinishReason = provider.FinishToolCalls
	case output.StopReason == brtypes.StopReasonMaxTokens:
		resp.FinishReason = provider.FinishLength
	default:
		resp.FinishReason = provider.FinishStop
	}
	return resp, nil
}

// classifyError detects Bedrock throttling, which surfaces as a smithy
// APIError code rather than a plain HTTP 429 in some SDK versions.
func classifyError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return fmt.Errorf("%w: %v", provider.ErrRateLimited, err)
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		if respErr.HTTPStatusCode() == 429 {
			return fmt.Errorf("%w: %v", provider.ErrRateLimited, err)
		}
		return &retry.HTTPStatusError{StatusCode: respErr.HTTPStatusCode(), Message: err.Error()}
	}
	return err
}
