package insight

import (
	"context"
	"errors"
	"strings"

	"trpc.group/trpc-go/trpc-agent-go/model"
	"trpc.group/trpc-go/trpc-agent-go/model/openai"
)

const jsonInstruction = "Respond with a single JSON object only, no markdown."

// OpenAIModel calls an OpenAI-compatible endpoint through trpc-agent-go.
type OpenAIModel struct {
	llm  model.Model
	name string
}

// NewOpenAIModel builds the client. BaseURL may point at any compatible gateway.
func NewOpenAIModel(cfg ModelConfig) *OpenAIModel {
	name := cfg.Model
	if name == "" {
		name = DefaultOpenAIModel
	}
	opts := []openai.Option{openai.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIModel{llm: openai.New(name, opts...), name: name}
}

func (o *OpenAIModel) Name() string { return ProviderOpenAI + ":" + o.name }

// Generate sends one non-streaming request and concatenates the final message.
func (o *OpenAIModel) Generate(ctx context.Context, p Prompt) (string, error) {
	msgs := []model.Message{model.NewUserMessage(p.Text)}
	if p.JSON {
		msgs = append([]model.Message{model.NewSystemMessage(jsonInstruction)}, msgs...)
	}
	ch, err := o.llm.GenerateContent(ctx, &model.Request{
		Messages:         msgs,
		GenerationConfig: model.GenerationConfig{Stream: false},
	})
	if err != nil {
		return "", generationError(ProviderOpenAI, err)
	}

	var b strings.Builder
	for resp := range ch {
		if resp == nil {
			continue
		}
		if resp.Error != nil {
			return "", generationError(ProviderOpenAI, errors.New(resp.Error.Message))
		}
		if resp.IsPartial || len(resp.Choices) == 0 {
			continue
		}
		b.WriteString(resp.Choices[0].Message.Content)
	}
	if err := ctx.Err(); err != nil {
		return "", generationError(ProviderOpenAI, err)
	}
	return b.String(), nil
}
