package validation

const schemaBase = "https://nexus.dev/schemas/"

// Schema names accepted by ValidateRequest.
const (
	SchemaAgentConfig      = "agent_config"
	SchemaArchitectRequest = "architect_request"
	SchemaInsightRequest   = "insight_request"
	SchemaControlRequest   = "control_request"
	SchemaQueryRequest     = "query_request"
)

// agentConfigSchemaJSON mirrors the response schema sent to the generation service.
const agentConfigSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "role", "description", "systemPrompt", "model", "temperature", "tools"],
  "properties": {
    "name": { "type": "string", "minLength": 1, "maxLength": 120 },
    "role": { "type": "string", "minLength": 1 },
    "description": { "type": "string" },
    "systemPrompt": { "type": "string", "minLength": 1 },
    "model": { "type": "string", "minLength": 1 },
    "temperature": { "type": "number", "minimum": 0, "maximum": 2 },
    "tools": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    }
  }
}`

const architectRequestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["description"],
  "properties": {
    "description": { "type": "string", "minLength": 1, "maxLength": 4000 },
    "lang": { "type": "string", "enum": ["en", "zh"] }
  },
  "additionalProperties": false
}`

const insightRequestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "snapshot": { "type": "string", "maxLength": 20000 },
    "lang": { "type": "string", "enum": ["en", "zh"] },
    "from_feed": { "type": "integer", "minimum": 0, "maximum": 50 }
  },
  "additionalProperties": false
}`

const controlRequestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["action"],
  "properties": {
    "action": { "type": "string", "enum": ["start", "pause", "resume", "reset", "tick"] }
  },
  "additionalProperties": false
}`

const queryRequestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["expression"],
  "properties": {
    "engine": { "type": "string", "enum": ["cel", "expr", "jq"] },
    "expression": { "type": "string", "minLength": 1, "maxLength": 2000 }
  },
  "additionalProperties": false
}`

var builtinSchemas = map[string]string{
	SchemaAgentConfig:      agentConfigSchemaJSON,
	SchemaArchitectRequest: architectRequestSchemaJSON,
	SchemaInsightRequest:   insightRequestSchemaJSON,
	SchemaControlRequest:   controlRequestSchemaJSON,
	SchemaQueryRequest:     queryRequestSchemaJSON,
}
