// Package provider defines the vendor-agnostic LLM interface every
// concrete adapter (anthropic, bedrock, ollama) implements, plus the shared
// retry policy and text-JSON tool-call recovery logic described in spec
// §4.1. Grounded on the teacher's features/model/{anthropic,bedrock}
// client.go adapters, collapsed from the teacher's multi-modal
// model.Request/model.Response shape down to the flatter
// Message/ToolDefinition/ToolResponse contract spec.md describes.
package provider

import (
	"context"
	"errors"

	"github.com/watchtower-ai/watchtower/internal/agent"
)

// FinishReason reports why the model stopped generating.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
)

// Options configures a single completion call.
type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string
}

// ToolResponse is a completion result that may carry tool calls.
type ToolResponse struct {
	Content      string
	ToolCalls    []agent.ToolCall
	FinishReason FinishReason
}

// Provider is implemented by every LLM backend adapter.
type Provider interface {
	// Complete issues a plain completion (no tools advertised).
	Complete(ctx context.Context, messages []agent.Message, opts Options) (string, error)

	// CompleteWithTools issues a completion with tools advertised, and
	// extracts any structured or text-recovered tool calls.
	CompleteWithTools(ctx context.Context, messages []agent.Message, tools []agent.ToolDefinition, opts Options) (ToolResponse, error)
}

// Sentinel errors distinguishing retryable transport failures from
// unrecoverable protocol failures, per spec §7 (kinds 1 and 8).
var (
	ErrRateLimited     = errors.New("provider: rate limited")
	ErrProtocolInvalid = errors.New("provider: invalid or unparseable response")
)
