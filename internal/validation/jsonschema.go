package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/nexus/pkg/schema"
)

// JSONSchemaValidator implements Validator with schemas compiled once at
// construction. It is safe for concurrent use.
type JSONSchemaValidator struct {
	schemas map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator compiles every built-in schema.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	compiled := make(map[string]*jsonschema.Schema, len(builtinSchemas))
	for name, src := range builtinSchemas {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s schema: %w", name, err)
		}
		url := schemaBase + name + ".json"
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add %s schema resource: %w", name, err)
		}
		s, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", name, err)
		}
		compiled[name] = s
	}
	return &JSONSchemaValidator{schemas: compiled}, nil
}

// ValidateAgentConfig checks cfg against the agent config schema plus the
// rules JSON Schema cannot express.
func (v *JSONSchemaValidator) ValidateAgentConfig(cfg *schema.AgentConfig) error {
	if cfg == nil {
		return schema.NewError(schema.ErrCodeValidation, "agent config is nil")
	}
	doc, err := toJSONValue(cfg)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize agent config").WithCause(err)
	}
	if err := v.schemas[SchemaAgentConfig].Validate(doc); err != nil {
		return toNexusError(err)
	}
	return checkAgentConfig(cfg)
}

// DecodeAgentConfig validates raw generation output and decodes it.
// A null tools list is accepted and normalized to empty.
func (v *JSONSchemaValidator) DecodeAgentConfig(raw []byte) (*schema.AgentConfig, error) {
	raw = bytes.TrimSpace(stripCodeFence(raw))
	if len(raw) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty agent config")
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "agent config is not a JSON object").WithCause(err)
	}
	if tools, ok := generic["tools"]; ok && tools == nil {
		generic["tools"] = []any{}
	}
	doc, err := toJSONValue(generic)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "failed to normalize agent config").WithCause(err)
	}
	if err := v.schemas[SchemaAgentConfig].Validate(doc); err != nil {
		return nil, toNexusError(err)
	}

	var cfg schema.AgentConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "decode agent config").WithCause(err)
	}
	if cfg.Tools == nil {
		cfg.Tools = []string{}
	}
	if err := checkAgentConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateRequest checks an API request body against the named schema.
func (v *JSONSchemaValidator) ValidateRequest(kind string, body []byte) error {
	s, ok := v.schemas[kind]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown schema %q", kind)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "request body is not valid JSON").WithCause(err)
	}
	if err := s.Validate(doc); err != nil {
		return toNexusError(err)
	}
	return nil
}

// checkAgentConfig enforces rules outside JSON Schema: trimmed name, finite
// temperature, unique tool names.
func checkAgentConfig(cfg *schema.AgentConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return schema.NewError(schema.ErrCodeValidation, "/name: must not be blank")
	}
	if math.IsNaN(cfg.Temperature) || math.IsInf(cfg.Temperature, 0) {
		return schema.NewError(schema.ErrCodeValidation, "/temperature: must be finite")
	}
	seen := make(map[string]struct{}, len(cfg.Tools))
	for i, tool := range cfg.Tools {
		if _, dup := seen[tool]; dup {
			return schema.NewErrorf(schema.ErrCodeValidation, "/tools/%d: duplicate tool %q", i, tool)
		}
		seen[tool] = struct{}{}
	}
	return nil
}

// stripCodeFence removes a surrounding ```json fence some models emit.
func stripCodeFence(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "```") {
		return raw
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return []byte(s)
}

// toJSONValue round-trips a Go value through JSON so numbers become
// json.Number, as the jsonschema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

// toNexusError flattens a ValidationError into one NexusError listing every
// leaf violation with its instance location.
func toNexusError(err error) *schema.NexusError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	switch len(violations) {
	case 0:
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	case 1:
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "validation failed with %d errors", len(violations)).
			WithDetails(map[string]any{"violations": violations})
	}
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/" + strings.Join(verr.InstanceLocation, "/")
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}
	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

var _ Validator = (*JSONSchemaValidator)(nil)
