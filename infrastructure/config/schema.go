package config

import (
	"encoding/json"
)

// JSONSchema represents a JSON Schema document.
type JSONSchema struct {
	Schema      string                 `json:"$schema,omitempty"`
	ID          string                 `json:"$id,omitempty"`
	Title       string                 `json:"title,omitempty"`
	Description string                 `json:"description,omitempty"`
	Type        string                 `json:"type,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Enum        []string               `json:"enum,omitempty"`
	Default     any                    `json:"default,omitempty"`
	Minimum     *float64               `json:"minimum,omitempty"`
	Maximum     *float64               `json:"maximum,omitempty"`
	Format      string                 `json:"format,omitempty"`
}

// GenerateSchema generates a JSON Schema for the configuration file.
func GenerateSchema() *JSONSchema {
	return &JSONSchema{
		Schema:      "https://json-schema.org/draft/2020-12/schema",
		ID:          "https://github.com/felixgeelhaar/opsquery/opsquery.schema.json",
		Title:       "opsquery configuration",
		Description: "Configuration schema for the opsquery service",
		Type:        "object",
		Properties: map[string]*JSONSchema{
			"agent":         agentSchema(),
			"gateway":       gatewaySchema(),
			"tools":         toolsSchema(),
			"resilience":    resilienceSchema(),
			"logging":       loggingSchema(),
			"server":        serverSchema(),
			"observability": observabilitySchema(),
		},
	}
}

func agentSchema() *JSONSchema {
	return object("Decision loop bounds", map[string]*JSONSchema{
		"max_iterations": {
			Type:        "integer",
			Description: "Loop passes before forced completion",
			Minimum:     floatPtr(1),
			Default:     10,
		},
		"max_invalid_calls_per_tool": {
			Type:        "integer",
			Description: "Refused calls a tool may accumulate before the run fails",
			Minimum:     floatPtr(0),
			Default:     2,
		},
		"timezone": {
			Type:        "string",
			Description: "IANA zone relative time expressions resolve in",
			Default:     "US/Eastern",
		},
		"metadata_fields": {
			Type:        "array",
			Description: "Fields a run may extract",
			Items:       &JSONSchema{Type: "string"},
		},
	})
}

func gatewaySchema() *JSONSchema {
	return object("Completion provider", map[string]*JSONSchema{
		"provider": {
			Type:    "string",
			Enum:    []string{"openai", "anthropic", "scripted"},
			Default: "openai",
		},
		"model":    {Type: "string", Default: "gpt-oss:120b"},
		"base_url": {Type: "string", Format: "uri"},
		"api_key":  {Type: "string", Description: "Use ${VAR} to read it from the environment"},
		"timeout":  duration("Bound on every completion call", "60s"),
		"temperature": {
			Type:    "number",
			Minimum: floatPtr(0),
			Maximum: floatPtr(2),
		},
		"max_tokens": {Type: "integer", Minimum: floatPtr(0)},
	})
}

func toolsSchema() *JSONSchema {
	return object("Tool execution", map[string]*JSONSchema{
		"timeout": duration("Timeout for tools without their own", "10s"),
		"disabled": {
			Type:        "array",
			Description: "Tool names left out of the registry",
			Items:       &JSONSchema{Type: "string"},
		},
	})
}

func resilienceSchema() *JSONSchema {
	return object("Resilience settings", map[string]*JSONSchema{
		"retry": object("Retry of idempotent tools", map[string]*JSONSchema{
			"max_attempts":  {Type: "integer", Minimum: floatPtr(0), Default: 2},
			"initial_delay": duration("", "50ms"),
			"multiplier":    {Type: "number", Minimum: floatPtr(1), Default: 2.0},
		}),
		"circuit_breaker": object("Per-tool and gateway breakers", map[string]*JSONSchema{
			"threshold": {Type: "integer", Description: "Failures before opening", Minimum: floatPtr(0), Default: 5},
			"timeout":   duration("How long the circuit stays open", "30s"),
		}),
		"bulkhead": object("Concurrent tool executions", map[string]*JSONSchema{
			"max_concurrent": {Type: "integer", Minimum: floatPtr(0), Default: 10},
		}),
	})
}

func loggingSchema() *JSONSchema {
	return object("Structured logging", map[string]*JSONSchema{
		"level":  {Type: "string", Enum: []string{"trace", "debug", "info", "warn", "error"}, Default: "info"},
		"format": {Type: "string", Enum: []string{"json", "console"}, Default: "json"},
	})
}

func serverSchema() *JSONSchema {
	return object("HTTP service", map[string]*JSONSchema{
		"addr":             {Type: "string", Default: ":8000"},
		"request_timeout":  duration("Bound on one query request", "5m"),
		"shutdown_timeout": duration("Bound on graceful shutdown", "10s"),
		"allowed_origins":  {Type: "array", Items: &JSONSchema{Type: "string"}},
		"max_query_length": {Type: "integer", Minimum: floatPtr(0), Default: 4096},
		"rate_limit": object("Per-client rate limiting", map[string]*JSONSchema{
			"enabled": {Type: "boolean", Default: false},
			"rate":    {Type: "integer", Minimum: floatPtr(1)},
			"burst":   {Type: "integer", Minimum: floatPtr(0)},
		}),
	})
}

func observabilitySchema() *JSONSchema {
	return object("Tracing and metrics", map[string]*JSONSchema{
		"service_name":    {Type: "string", Default: "opsquery"},
		"tracing_enabled": {Type: "boolean", Default: false},
		"metrics_enabled": {Type: "boolean", Default: false},
		"otlp_endpoint":   {Type: "string", Description: "Empty exports spans to stdout"},
		"insecure":        {Type: "boolean"},
		"sample_rate":     {Type: "number", Minimum: floatPtr(0), Maximum: floatPtr(1), Default: 1.0},
	})
}

func object(description string, props map[string]*JSONSchema) *JSONSchema {
	return &JSONSchema{Type: "object", Description: description, Properties: props}
}

func duration(description, def string) *JSONSchema {
	return &JSONSchema{Type: "string", Format: "duration", Description: description, Default: def}
}

func floatPtr(f float64) *float64 {
	return &f
}

// SchemaJSON returns the JSON Schema as an indented JSON string.
func SchemaJSON() (string, error) {
	data, err := json.MarshalIndent(GenerateSchema(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
