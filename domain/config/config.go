// Package config provides the configuration model for the opsquery service.
package config

import (
	"time"
	_ "time/tzdata" // timezone names must resolve on minimal images
)

// Config is the root configuration of an opsquery process.
type Config struct {
	// Agent bounds the decision loop.
	Agent AgentSettings `json:"agent,omitempty" yaml:"agent,omitempty"`

	// Gateway selects and configures the completion provider.
	Gateway GatewayConfig `json:"gateway,omitempty" yaml:"gateway,omitempty"`

	// Tools configures tool execution.
	Tools ToolsConfig `json:"tools,omitempty" yaml:"tools,omitempty"`

	// Resilience configures the fortify primitives around tools and the gateway.
	Resilience ResilienceConfig `json:"resilience,omitempty" yaml:"resilience,omitempty"`

	// Logging configures structured logging.
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`

	// Server configures the HTTP service.
	Server ServerConfig `json:"server,omitempty" yaml:"server,omitempty"`

	// Observability configures tracing and metrics.
	Observability ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"`
}

// AgentSettings bounds a single run.
type AgentSettings struct {
	// MaxIterations is the number of loop passes before forced completion.
	MaxIterations int `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	// MaxInvalidCallsPerTool is how many refused calls a tool may accumulate.
	MaxInvalidCallsPerTool int `json:"max_invalid_calls_per_tool,omitempty" yaml:"max_invalid_calls_per_tool,omitempty"`
	// Timezone is the IANA zone relative expressions resolve in.
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	// MetadataFields is the fixed set of fields a run may extract.
	MetadataFields []string `json:"metadata_fields,omitempty" yaml:"metadata_fields,omitempty"`
}

// GatewayConfig configures the completion gateway.
type GatewayConfig struct {
	// Provider is one of openai, anthropic or scripted.
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	// Model is the provider model identifier.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
	// BaseURL overrides the provider endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// APIKey authenticates against the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	// Timeout bounds every completion call.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Temperature is the sampling temperature.
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	// MaxTokens caps the completion length.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// ToolsConfig configures tool execution.
type ToolsConfig struct {
	// Timeout applies to tools without their own timeout.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Disabled lists tool names left out of the registry.
	Disabled []string `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// ResilienceConfig contains resilience settings.
type ResilienceConfig struct {
	// Retry configures retry of idempotent tools.
	Retry RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`
	// CircuitBreaker configures the per-tool and gateway breakers.
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker,omitempty" yaml:"circuit_breaker,omitempty"`
	// Bulkhead caps concurrent tool executions across runs.
	Bulkhead BulkheadConfig `json:"bulkhead,omitempty" yaml:"bulkhead,omitempty"`
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts.
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	// InitialDelay is the first retry delay.
	InitialDelay Duration `json:"initial_delay,omitempty" yaml:"initial_delay,omitempty"`
	// Multiplier is the backoff multiplier.
	Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// Threshold is consecutive failures before opening.
	Threshold int `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	// Timeout is how long the circuit stays open.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// BulkheadConfig configures bulkhead behavior.
type BulkheadConfig struct {
	// MaxConcurrent is the maximum concurrent executions.
	MaxConcurrent int `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	// Format is json or console.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
	// RequestTimeout bounds one query request including streaming.
	RequestTimeout Duration `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `json:"shutdown_timeout,omitempty" yaml:"shutdown_timeout,omitempty"`
	// AllowedOrigins lists CORS origins.
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
	// MaxQueryLength rejects longer queries.
	MaxQueryLength int `json:"max_query_length,omitempty" yaml:"max_query_length,omitempty"`
	// RateLimit limits requests per client.
	RateLimit RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// RateLimitConfig configures per-client rate limiting.
type RateLimitConfig struct {
	// Enabled enables rate limiting.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Rate is the requests per second.
	Rate int `json:"rate,omitempty" yaml:"rate,omitempty"`
	// Burst is the maximum burst size.
	Burst int `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// ObservabilityConfig configures tracing and metrics.
type ObservabilityConfig struct {
	// ServiceName is reported on every span and metric.
	ServiceName string `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	// TracingEnabled turns on span export.
	TracingEnabled bool `json:"tracing_enabled,omitempty" yaml:"tracing_enabled,omitempty"`
	// MetricsEnabled turns on OTel instruments.
	MetricsEnabled bool `json:"metrics_enabled,omitempty" yaml:"metrics_enabled,omitempty"`
	// OTLPEndpoint is the OTLP gRPC endpoint; empty exports to stdout.
	OTLPEndpoint string `json:"otlp_endpoint,omitempty" yaml:"otlp_endpoint,omitempty"`
	// Insecure disables TLS to the OTLP endpoint.
	Insecure bool `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	// SampleRate is the trace sampling ratio in [0, 1].
	SampleRate float64 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Agent: AgentSettings{
			MaxIterations:          10,
			MaxInvalidCallsPerTool: 2,
			Timezone:               "US/Eastern",
			MetadataFields: []string{
				"time_start", "time_end", "timezone",
				"username", "pod", "namespace", "identifiers",
			},
		},
		Gateway: GatewayConfig{
			Provider:  "openai",
			Model:     "gpt-oss:120b",
			BaseURL:   "https://genai.rcac.purdue.edu/api",
			Timeout:   Duration(60 * time.Second),
			MaxTokens: 1024,
		},
		Tools: ToolsConfig{
			Timeout: Duration(10 * time.Second),
		},
		Resilience: ResilienceConfig{
			Retry: RetryConfig{
				MaxAttempts:  2,
				InitialDelay: Duration(50 * time.Millisecond),
				Multiplier:   2,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Threshold: 5,
				Timeout:   Duration(30 * time.Second),
			},
			Bulkhead: BulkheadConfig{MaxConcurrent: 10},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Addr:            ":8000",
			RequestTimeout:  Duration(5 * time.Minute),
			ShutdownTimeout: Duration(10 * time.Second),
			AllowedOrigins:  []string{"*"},
			MaxQueryLength:  4096,
			RateLimit:       RateLimitConfig{Rate: 5, Burst: 10},
		},
		Observability: ObservabilityConfig{
			ServiceName: "opsquery",
			SampleRate:  1,
		},
	}
}

// Location loads the configured timezone.
func (c AgentSettings) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Duration is a time.Duration that supports JSON/YAML string representation.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
