// Package config loads watchtower's YAML integration manifest and builds
// the AgentConfig the loop runs with, reading the remaining ambient
// settings from the environment. Grounded on the teacher's convention of
// thin env-var readers plus a single YAML document for declarative
// collaborators (features/model adapters are selected by env var; the
// integration set here is the YAML-declarative analogue).
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/watchtower-ai/watchtower/internal/agent"
	"github.com/watchtower-ai/watchtower/internal/integration"
)

// IntegrationManifest is the top-level shape of the YAML file passed via
// INTEGRATIONS_CONFIG_PATH. A missing file is not an error — it yields
// an empty integration set, per spec §4.4.
type IntegrationManifest struct {
	Version      int                  `yaml:"version"`
	Integrations []integration.Config `yaml:"integrations"`
}

// LoadIntegrations reads and validates the integration manifest at path. A
// missing file returns an empty manifest rather than an error.
func LoadIntegrations(path string) (IntegrationManifest, error) {
	if path == "" {
		return IntegrationManifest{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return IntegrationManifest{}, nil
		}
		return IntegrationManifest{}, fmt.Errorf("config: reading integrations file: %w", err)
	}
	var manifest IntegrationManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return IntegrationManifest{}, fmt.Errorf("config: parsing integrations file: %w", err)
	}
	for _, cfg := range manifest.Integrations {
		if err := cfg.Validate(); err != nil {
			return IntegrationManifest{}, err
		}
	}
	return manifest, nil
}

// AgentConfigFromEnv builds an agent.AgentConfig from WATCHTOWER_* env
// vars, falling back to spec-documented defaults (AgentConfig.WithDefaults
// applies the timeout default; max_iterations and system_prompt are
// config's own concern).
func AgentConfigFromEnv() (agent.AgentConfig, error) {
	cfg := agent.AgentConfig{
		SystemPrompt:  os.Getenv("WATCHTOWER_SYSTEM_PROMPT"),
		MaxIterations: defaultMaxIterations,
	}
	if v := os.Getenv("WATCHTOWER_MAX_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return agent.AgentConfig{}, fmt.Errorf("config: WATCHTOWER_MAX_ITERATIONS: %w", err)
		}
		cfg.MaxIterations = n
	}
	if v := os.Getenv("WATCHTOWER_TIMEOUT_MS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return agent.AgentConfig{}, fmt.Errorf("config: WATCHTOWER_TIMEOUT_MS: %w", err)
		}
		cfg.TimeoutMS = n
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	return cfg.WithDefaults(), nil
}

const defaultMaxIterations = 25

const defaultSystemPrompt = `You are an autonomous incident-investigation agent. Use the available tools to gather evidence before drawing conclusions, prefer read-only operations first, and only propose a pull request once you have confirmed the root cause.`
