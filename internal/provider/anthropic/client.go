// Package anthropic adapts the Anthropic Claude Messages API to the
// provider.Provider contract. Grounded on the teacher's
// features/model/anthropic/client.go: a MessagesClient seam wraps
// *sdk.MessageService so tests can inject a fake, and message/tool
// translation follows the same content-block shape.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/watchtower-ai/watchtower/internal/agent"
	"github.com/watchtower-ai/watchtower/internal/provider"
	"github.com/watchtower-ai/watchtower/internal/provider/retry"
)

// MessagesClient is the subset of the Anthropic SDK used by the adapter.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Client implements provider.Provider on top of Anthropic Claude Messages.
type Client struct {
	msg         MessagesClient
	model       string
	maxTokens   int
	retryConfig retry.Config
}

// New builds a Client from an injected MessagesClient (real or fake).
func New(msg MessagesClient, model string, maxTokens int) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if model == "" {
		return nil, errors.New("anthropic: model identifier is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{msg: msg, model: model, maxTokens: maxTokens, retryConfig: retry.DefaultConfig()}, nil
}

// NewFromAPIKey constructs a client from ANTHROPIC_API_KEY and
// ANTHROPIC_MODEL, using the default Anthropic HTTP client.
func NewFromAPIKey(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Messages, model, 4096)
}

func (c *Client) Complete(ctx context.Context, messages []agent.Message, opts provider.Options) (string, error) {
	resp, err := c.CompleteWithTools(ctx, messages, nil, opts)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (c *Client) CompleteWithTools(ctx context.Context, messages []agent.Message, tools []agent.ToolDefinition, opts provider.Options) (provider.ToolResponse, error) {
	params, err := c.buildParams(messages, tools, opts)
	if err != nil {
		return provider.ToolResponse{}, err
	}

	var msg *sdk.Message
	retryErr := retry.Do(ctx, c.retryConfig, func(ctx context.Context) error {
		m, callErr := c.msg.New(ctx, *params)
		if callErr != nil {
			return classifyError(callErr)
		}
		msg = m
		return nil
	})
	if retryErr != nil {
		if errors.Is(retryErr, provider.ErrRateLimited) {
			return provider.ToolResponse{}, retryErr
		}
		return provider.ToolResponse{}, fmt.Errorf("anthropic: messages.new: %w", retryErr)
	}
	return translateResponse(msg)
}

func (c *Client) buildParams(messages []agent.Message, tools []agent.ToolDefinition, opts provider.Options) (*sdk.MessageNewParams, error) {
	modelID := c.model
	if opts.Model != "" {
		modelID = opts.Model
	}
	maxTokens := c.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	msgs, system, err := encodeMessages(messages)
	if err != nil {
		return nil, err
	}
	params := &sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(modelID),
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if opts.Temperature > 0 {
		params.Temperature = sdk.Float(opts.Temperature)
	}
	if len(tools) > 0 {
		params.Tools = encodeTools(tools)
	}
	return params, nil
}

// encodeMessages merges a leading system message into the vendor's system
// slot (§4.1: "Merge a leading system message into the vendor's system slot
// when separated") and translates tool_calls/tool results into Anthropic
// content blocks, grouping a tool message's result into the adjacent
// user-role turn the vendor requires.
func encodeMessages(messages []agent.Message) ([]sdk.MessageParam, string, error) {
	var system string
	out := make([]sdk.MessageParam, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case agent.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case agent.RoleUser:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case agent.RoleAssistant:
			blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, tc.ParseArguments(), tc.ToolName))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, sdk.NewAssistantMessage(blocks...))
		case agent.RoleTool:
			block := sdk.NewToolResultBlock(m.ToolCallID, m.Content, false)
			// A tool-result block must be attached to a user-role message; append
			// to the previous user message if one is adjacent, otherwise start one.
			if n := len(out); n > 0 && isUserMessage(out[n-1]) {
				out[n-1].Content = append(out[n-1].Content, block)
			} else {
				out = append(out, sdk.NewUserMessage(block))
			}
		default:
			return nil, "", fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	return out, system, nil
}

func isUserMessage(m sdk.MessageParam) bool {
	return m.Role == sdk.MessageParamRoleUser
}

func encodeTools(defs []agent.ToolDefinition) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema := sdk.ToolInputSchemaParam{ExtraFields: def.Parameters}
		u := sdk.ToolUnionParamOfTool(schema, def.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		out = append(out, u)
	}
	return out
}

func translateResponse(msg *sdk.Message) (provider.ToolResponse, error) {
	if msg == nil {
		return provider.ToolResponse{}, fmt.Errorf("%w: nil response", provider.ErrProtocolInvalid)
	}
	var resp provider.ToolResponse
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Content += block.Text
		case "tool_use":
			args, err := json.Marshal(block.Input)
			if err != nil {
				return provider.ToolResponse{}, fmt.Errorf("%w: tool_use input: %v", provider.ErrProtocolInvalid, err)
			}
			resp.ToolCalls = append(resp.ToolCalls, agent.ToolCall{
				ID:        block.ID,
				ToolName:  block.Name,
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
	case string(msg.StopReason) == "max_tokens":
		resp.FinishReason = provider.FinishLength
	default:
		resp.FinishReason = provider.FinishStop
	}
	return resp, nil
}

func classifyError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 {
			return fmt.Errorf("%w: %v", provider.ErrRateLimited, err)
		}
		return &retry.HTTPStatusError{StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
	}
	return err
}
