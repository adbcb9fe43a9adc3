// Package insight is the boundary to the external text-generation service:
// health summaries of log snapshots and agent configs from descriptions.
package insight

import (
	"context"
	"fmt"
	"strings"

	"github.com/rendis/nexus/pkg/schema"
)

// Provider names accepted by NewModel.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// DefaultGeminiModel is the model the dashboard was built against.
const DefaultGeminiModel = "gemini-2.5-flash"

// DefaultOpenAIModel is used when the openai provider has no model configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// Prompt is one generation request.
type Prompt struct {
	Text string
	// JSON asks for a single JSON object matching the agent config shape.
	JSON bool
}

// Model is a single-shot text generator. Implementations make exactly one
// call per Generate and never retry.
type Model interface {
	Name() string
	Generate(ctx context.Context, p Prompt) (string, error)
}

// ModelConfig selects and configures a provider.
type ModelConfig struct {
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`
	Model    string `json:"model" yaml:"model" mapstructure:"model"`
	APIKey   string `json:"-" yaml:"-" mapstructure:"-"`
	BaseURL  string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`
}

// NewModel builds the configured provider. It returns (nil, nil) when no API
// key is set so callers fall back to canned responses without a network attempt.
func NewModel(ctx context.Context, cfg ModelConfig) (Model, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, nil
	}
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderGemini:
		m, err := NewGeminiModel(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return m, nil
	case ProviderOpenAI:
		return NewOpenAIModel(cfg), nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unsupported model provider %q", cfg.Provider).
			WithDetails(map[string]any{"supported": []string{ProviderGemini, ProviderOpenAI}})
	}
}

func generationError(provider string, err error) error {
	return schema.NewError(schema.ErrCodeGeneration, fmt.Sprintf("%s generation failed", provider)).WithCause(err)
}
