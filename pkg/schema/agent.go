package schema

import "time"

// AgentConfig is the structured agent definition produced by the architect.
// Field names follow the JSON contract of the generation service.
type AgentConfig struct {
	Name         string   `json:"name" mapstructure:"name"`
	Role         string   `json:"role" mapstructure:"role"`
	Description  string   `json:"description" mapstructure:"description"`
	SystemPrompt string   `json:"systemPrompt" mapstructure:"systemPrompt"`
	Model        string   `json:"model" mapstructure:"model"`
	Temperature  float64  `json:"temperature" mapstructure:"temperature"`
	Tools        []string `json:"tools" mapstructure:"tools"`
}

// Lang is a language tag accepted by the generation service.
type Lang string

const (
	LangEN Lang = "en"
	LangZH Lang = "zh"
)

// ParseLang normalizes a language tag, defaulting to English.
func ParseLang(s string) Lang {
	switch s {
	case "zh", "zh-CN", "zh-cn", "cn":
		return LangZH
	default:
		return LangEN
	}
}

// Insight is a stored health summary.
type Insight struct {
	ID        string    `json:"id"`
	Snapshot  string    `json:"snapshot"`
	Summary   string    `json:"summary"`
	Lang      Lang      `json:"lang"`
	Fallback  bool      `json:"fallback"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// StoredAgentConfig is an AgentConfig persisted with its request metadata.
type StoredAgentConfig struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Lang        Lang        `json:"lang"`
	Config      AgentConfig `json:"config"`
	Mock        bool        `json:"mock"`
	CreatedAt   time.Time   `json:"created_at"`
}
