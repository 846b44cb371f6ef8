package provider

import (
	"context"
	"fmt"
	"os"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/watchtower-ai/watchtower/internal/provider/anthropic"
	"github.com/watchtower-ai/watchtower/internal/provider/bedrock"
	"github.com/watchtower-ai/watchtower/internal/provider/ollama"
)

// FromEnv builds a Provider for the vendor named by LLM_PROVIDER
// (ollama|anthropic|bedrock; unset means ollama), reading each vendor's
// own env vars per spec §6 ("External Interfaces").
func FromEnv(ctx context.Context) (Provider, error) {
	switch vendor := os.Getenv("LLM_PROVIDER"); vendor {
	case "anthropic":
		return anthropicFromEnv()
	case "bedrock":
		return bedrockFromEnv(ctx)
	case "ollama", "":
		return ollamaFromEnv()
	default:
		return nil, fmt.Errorf("provider: unknown LLM_PROVIDER %q", vendor)
	}
}

func anthropicFromEnv() (Provider, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	model := os.Getenv("ANTHROPIC_MODEL")
	if model == "" {
		model = string(sdkanthropic.ModelClaudeSonnet4_5)
	}
	return anthropic.NewFromAPIKey(apiKey, model)
}

func bedrockFromEnv(ctx context.Context) (Provider, error) {
	region := os.Getenv("BEDROCK_REGION")
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("provider: load aws config: %w", err)
	}
	model := os.Getenv("BEDROCK_MODEL")
	if model == "" {
		return nil, fmt.Errorf("provider: BEDROCK_MODEL is required")
	}
	runtime := bedrockruntime.NewFromConfig(cfg)
	return bedrock.New(runtime, model, 4096)
}

func ollamaFromEnv() (Provider, error) {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := os.Getenv("OLLAMA_MODEL")
	if model == "" {
		return nil, fmt.Errorf("provider: OLLAMA_MODEL is required")
	}
	return ollama.NewFromBaseURL(baseURL, model)
}
