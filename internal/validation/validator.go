package validation

import "github.com/rendis/nexus/pkg/schema"

// Validator checks generated agent configs and API request bodies.
// Uses JSON Schema Draft 2020-12.
type Validator interface {
	ValidateAgentConfig(cfg *schema.AgentConfig) error
	DecodeAgentConfig(raw []byte) (*schema.AgentConfig, error)
	ValidateRequest(kind string, body []byte) error
}
