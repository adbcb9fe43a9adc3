package insight

import (
	"context"

	"google.golang.org/genai"
)

// GeminiModel calls the Gemini API through the genai SDK.
type GeminiModel struct {
	client *genai.Client
	model  string
}

// NewGeminiModel creates a Gemini client for cfg.APIKey.
func NewGeminiModel(ctx context.Context, cfg ModelConfig) (*GeminiModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, generationError(ProviderGemini, err)
	}
	name := cfg.Model
	if name == "" {
		name = DefaultGeminiModel
	}
	return &GeminiModel{client: client, model: name}, nil
}

func (g *GeminiModel) Name() string { return ProviderGemini + ":" + g.model }

// Generate sends one request. JSON prompts carry a response schema so the
// service returns the agent config object directly.
func (g *GeminiModel) Generate(ctx context.Context, p Prompt) (string, error) {
	var cfg *genai.GenerateContentConfig
	if p.JSON {
		cfg = &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   agentConfigResponseSchema(),
		}
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(p.Text), cfg)
	if err != nil {
		return "", generationError(ProviderGemini, err)
	}
	return resp.Text(), nil
}

func agentConfigResponseSchema() *genai.Schema {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name":         str("Agent name"),
			"role":         str("Agent role"),
			"description":  str("What the agent does"),
			"systemPrompt": str("Full system instruction"),
			"model":        str("Recommended model id"),
			"temperature":  {Type: genai.TypeNumber, Description: "Sampling temperature 0-2"},
			"tools": {
				Type:        genai.TypeArray,
				Description: "Tool names the agent may call",
				Items:       &genai.Schema{Type: genai.TypeString},
			},
		},
		Required:         []string{"name", "role", "description", "systemPrompt", "model", "temperature", "tools"},
		PropertyOrdering: []string{"name", "role", "description", "systemPrompt", "model", "temperature", "tools"},
	}
}
