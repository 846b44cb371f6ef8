// Package integration loads a declarative set of external integrations
// and synthesizes agent.Tools from each one: protocol-server (MCP over
// stdio), OpenAPI-described REST APIs, and plain REST endpoints.
// Grounded on the teacher's features/model adapter pattern (a thin Go
// wrapper around a vendor SDK, exposed as an idiomatic contract) and, for
// the protocol-server variant specifically, on
// kadirpekel-hector/pkg/tool/mcptoolset/mcptoolset.go's lazy-connect +
// tool-wrapper shape, adapted from hector's Toolset interface to
// watchtower's agent.Tool/agent.ToolDefinition contract.
package integration

import "fmt"

// Variant discriminates the three integration kinds spec §4.4 describes.
type Variant string

const (
	VariantProtocolServer Variant = "protocol_server"
	VariantOpenAPI        Variant = "openapi"
	VariantREST           Variant = "rest"
)

// AuthKind selects how credentials are attached to outbound REST/OpenAPI
// requests.
type AuthKind string

const (
	AuthNone   AuthKind = "none"
	AuthBearer AuthKind = "bearer"
	AuthBasic  AuthKind = "basic"
	AuthHeader AuthKind = "header"
	AuthAPIKey AuthKind = "api_key"
)

// Auth configures request authentication. Values may themselves be
// ${VAR}-style references, resolved against the environment on every
// outbound request (see applyAuth), not at load time.
type Auth struct {
	Kind       AuthKind `yaml:"kind"`
	Token      string   `yaml:"token,omitempty"`
	Username   string   `yaml:"username,omitempty"`
	Password   string   `yaml:"password,omitempty"`
	HeaderName string   `yaml:"header_name,omitempty"`
	HeaderValue string  `yaml:"header_value,omitempty"`
	QueryParam string   `yaml:"query_param,omitempty"`
	APIKey     string   `yaml:"api_key,omitempty"`
}

// Endpoint names one REST operation exposed as a tool.
type Endpoint struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Method      string `yaml:"method"`
	Path        string `yaml:"path"`
}

// Config is one named integration's declarative definition, as loaded from
// YAML (internal/config).
type Config struct {
	Name    string   `yaml:"name"`
	Variant Variant  `yaml:"variant"`
	Auth    Auth     `yaml:"auth,omitempty"`

	// Protocol-server fields.
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	// OpenAPI fields.
	SpecURL string `yaml:"spec_url,omitempty"`

	// REST fields.
	BaseURL   string     `yaml:"base_url,omitempty"`
	Endpoints []Endpoint `yaml:"endpoints,omitempty"`
}

// Validate checks that cfg carries the fields its Variant requires.
func (cfg Config) Validate() error {
	if cfg.Name == "" {
		return fmt.Errorf("integration: name is required")
	}
	switch cfg.Variant {
	case VariantProtocolServer:
		if cfg.Command == "" {
			return fmt.Errorf("integration %q: command is required for protocol_server", cfg.Name)
		}
	case VariantOpenAPI:
		if cfg.SpecURL == "" {
			return fmt.Errorf("integration %q: spec_url is required for openapi", cfg.Name)
		}
	case VariantREST:
		if cfg.BaseURL == "" {
			return fmt.Errorf("integration %q: base_url is required for rest", cfg.Name)
		}
	default:
		return fmt.Errorf("integration %q: unknown variant %q", cfg.Name, cfg.Variant)
	}
	return nil
}
