// Package ollama adapts a local Ollama daemon, speaking its
// OpenAI-compatible chat completions API, to the provider.Provider
// contract via github.com/openai/openai-go. Grounded on the teacher's
// provider-adapter-wraps-vendor-SDK pattern (features/model/anthropic,
// features/model/bedrock); no pack repo talks to Ollama directly, so the
// OpenAI-compatible surface is the bridge spec §4.1 calls for
// ("OLLAMA_BASE_URL + /v1, OpenAI-compatible chat completions wire format").
package ollama

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/watchtower-ai/watchtower/internal/agent"
	"github.com/watchtower-ai/watchtower/internal/provider"
	"github.com/watchtower-ai/watchtower/internal/provider/retry"
)

// ChatClient is the subset of the openai-go client used by the adapter.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client implements provider.Provider against an Ollama daemon's
// OpenAI-compatible /v1/chat/completions endpoint.
type Client struct {
	chat        ChatClient
	model       string
	maxTokens   int
	retryConfig retry.Config
}

// New builds a Client from an injected ChatClient (real or fake).
func New(chat ChatClient, model string, maxTokens int) (*Client, error) {
	if chat == nil {
		return nil, errors.New("ollama: chat client is required")
	}
	if model == "" {
		return nil, errors.New("ollama: model identifier is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{chat: chat, model: model, maxTokens: maxTokens, retryConfig: retry.DefaultConfig()}, nil
}

// NewFromBaseURL constructs a client pointed at baseURL+"/v1". Ollama
// ignores the API key but openai-go requires a non-empty value.
func NewFromBaseURL(baseURL, model string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("ollama: base url is required")
	}
	c := openai.NewClient(
		option.WithBaseURL(baseURL+"/v1"),
		option.WithAPIKey("ollama"),
	)
	return New(&c.Chat.Completions, model, 4096)
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

	var completion *openai.ChatCompletion
	retryErr := retry.Do(ctx, c.retryConfig, func(ctx context.Context) error {
		out, callErr := c.chat.New(ctx, *params)
		if callErr != nil {
			return classifyError(callErr)
		}
		completion = out
		return nil
	})
	if retryErr != nil {
		if errors.Is(retryErr, provider.ErrRateLimited) {
			return provider.ToolResponse{}, retryErr
		}
		return provider.ToolResponse{}, fmt.Errorf("ollama: chat.completions.new: %w", retryErr)
	}
	return translateResponse(completion)
}

func (c *Client) buildParams(messages []agent.Message, tools []agent.ToolDefinition, opts provider.Options) (*openai.ChatCompletionNewParams, error) {
	modelID := c.model
	if opts.Model != "" {
		modelID = opts.Model
	}
	maxTokens := c.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	msgs, err := encodeMessages(messages)
	if err != nil {
		return nil, err
	}
	params := &openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(modelID),
		Messages:            msgs,
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if len(tools) > 0 {
		params.Tools = encodeTools(tools)
	}
	return params, nil
}

func encodeMessages(messages []agent.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case agent.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case agent.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case agent.RoleAssistant:
			msg := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				msg.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.ToolName,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &msg})
		case agent.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			return nil, fmt.Errorf("ollama: unsupported message role %q", m.Role)
		}
	}
	return out, nil
}

func encodeTools(defs []agent.ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		params := def.Parameters
		if params == nil {
			params = map[string]any{"type": "object"}
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  params,
			},
		})
	}
	return out
}

func translateResponse(completion *openai.ChatCompletion) (provider.ToolResponse, error) {
	if completion == nil || len(completion.Choices) == 0 {
		return provider.ToolResponse{}, fmt.Errorf("%w: empty completion", provider.ErrProtocolInvalid)
	}
	choice := completion.Choices[0]
	resp := provider.ToolResponse{Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, agent.ToolCall{
			ID:        tc.ID,
			ToolName:  tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
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
	case choice.FinishReason == "length":
		resp.FinishReason = provider.FinishLength
	default:
		resp.FinishReason = provider.FinishStop
	}
	return resp, nil
}

func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 {
			return fmt.Errorf("%w: %v", provider.ErrRateLimited, err)
		}
		return &retry.HTTPStatusError{StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
	}
	return err
}
