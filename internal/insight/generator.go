package insight

import (
	"context"

	"github.com/rendis/nexus/pkg/schema"
)

// Generator produces summaries and agent configs. Errors are returned as-is;
// fallback policy belongs to Service.
type Generator interface {
	Name() string
	Summarize(ctx context.Context, logs string, lang schema.Lang) (string, error)
	GenerateAgentConfig(ctx context.Context, description string, lang schema.Lang) (*schema.AgentConfig, error)
}

// AgentConfigDecoder turns raw generation output into a validated config.
// Satisfied by validation.Validator.
type AgentConfigDecoder interface {
	DecodeAgentConfig(raw []byte) (*schema.AgentConfig, error)
}

// LLMGenerator drives a Model with the summary and architect prompts.
type LLMGenerator struct {
	model   Model
	decoder AgentConfigDecoder
}

// NewLLMGenerator wraps m; generated configs are checked by decoder.
func NewLLMGenerator(m Model, decoder AgentConfigDecoder) *LLMGenerator {
	return &LLMGenerator{model: m, decoder: decoder}
}

func (g *LLMGenerator) Name() string { return g.model.Name() }

func (g *LLMGenerator) Summarize(ctx context.Context, logs string, lang schema.Lang) (string, error) {
	return g.model.Generate(ctx, Prompt{Text: summaryPrompt(logs, lang)})
}

func (g *LLMGenerator) GenerateAgentConfig(ctx context.Context, description string, lang schema.Lang) (*schema.AgentConfig, error) {
	raw, err := g.model.Generate(ctx, Prompt{Text: architectPrompt(description, lang), JSON: true})
	if err != nil {
		return nil, err
	}
	cfg, err := g.decoder.DecodeAgentConfig([]byte(raw))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeGeneration, "generated agent config is invalid").WithCause(err)
	}
	return cfg, nil
}

// MockGenerator answers with canned content and never touches the network.
type MockGenerator struct{}

func (MockGenerator) Name() string { return "simulated" }

func (MockGenerator) Summarize(context.Context, string, schema.Lang) (string, error) {
	return NoKeySummary, nil
}

func (MockGenerator) GenerateAgentConfig(_ context.Context, description string, lang schema.Lang) (*schema.AgentConfig, error) {
	return mockAgentConfig(description, lang), nil
}
