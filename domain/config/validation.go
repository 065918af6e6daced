package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the dotted path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Unwrap lets errors.Is match ErrValidationFailed.
func (e ValidationErrors) Unwrap() error {
	return ErrValidationFailed
}

var (
	validProviders = map[string]bool{"openai": true, "anthropic": true, "scripted": true}
	validLevels    = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	validFormats   = map[string]bool{"json": true, "console": true}
)

// Validator validates a Config.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *Config) ValidationErrors {
	v.errors = nil

	v.validateAgent(config)
	v.validateGateway(config)
	v.validateTools(config)
	v.validateResilience(config)
	v.validateLogging(config)
	v.validateServer(config)
	v.validateObservability(config)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateAgent(config *Config) {
	a := config.Agent
	if a.MaxIterations < 1 {
		v.addError("agent.max_iterations", "max_iterations must be positive")
	}
	if a.MaxInvalidCallsPerTool < 0 {
		v.addError("agent.max_invalid_calls_per_tool", "max_invalid_calls_per_tool must be non-negative")
	}
	if a.Timezone != "" {
		if _, err := time.LoadLocation(a.Timezone); err != nil {
			v.addError("agent.timezone", fmt.Sprintf("unknown timezone: %s", a.Timezone))
		}
	}
	seen := make(map[string]bool, len(a.MetadataFields))
	for i, f := range a.MetadataFields {
		path := fmt.Sprintf("agent.metadata_fields[%d]", i)
		switch {
		case strings.TrimSpace(f) == "":
			v.addError(path, "field name must not be empty")
		case seen[f]:
			v.addError(path, fmt.Sprintf("duplicate field: %s", f))
		}
		seen[f] = true
	}
}

func (v *Validator) validateGateway(config *Config) {
	g := config.Gateway
	if g.Provider != "" && !validProviders[g.Provider] {
		v.addError("gateway.provider", fmt.Sprintf("unknown provider: %s (want openai, anthropic or scripted)", g.Provider))
	}
	if g.Timeout < 0 {
		v.addError("gateway.timeout", "timeout must be non-negative")
	}
	if g.Temperature < 0 || g.Temperature > 2 {
		v.addError("gateway.temperature", "temperature must be between 0 and 2")
	}
	if g.MaxTokens < 0 {
		v.addError("gateway.max_tokens", "max_tokens must be non-negative")
	}
	if g.BaseURL != "" && !strings.HasPrefix(g.BaseURL, "http://") && !strings.HasPrefix(g.BaseURL, "https://") {
		v.addError("gateway.base_url", "base_url must be an http or https URL")
	}
}

func (v *Validator) validateTools(config *Config) {
	if config.Tools.Timeout < 0 {
		v.addError("tools.timeout", "timeout must be non-negative")
	}
	for i, name := range config.Tools.Disabled {
		if name == "" {
			v.addError(fmt.Sprintf("tools.disabled[%d]", i), "tool name must not be empty")
		}
	}
}

func (v *Validator) validateResilience(config *Config) {
	r := config.Resilience
	if r.Retry.MaxAttempts < 0 {
		v.addError("resilience.retry.max_attempts", "max_attempts must be non-negative")
	}
	if r.Retry.Multiplier != 0 && r.Retry.Multiplier < 1 {
		v.addError("resilience.retry.multiplier", "multiplier must be at least 1")
	}
	if r.CircuitBreaker.Threshold < 0 {
		v.addError("resilience.circuit_breaker.threshold", "threshold must be non-negative")
	}
	if r.Bulkhead.MaxConcurrent < 0 {
		v.addError("resilience.bulkhead.max_concurrent", "max_concurrent must be non-negative")
	}
}

func (v *Validator) validateLogging(config *Config) {
	l := config.Logging
	if l.Level != "" && !validLevels[strings.ToLower(l.Level)] {
		v.addError("logging.level", fmt.Sprintf("invalid level: %s", l.Level))
	}
	if l.Format != "" && !validFormats[l.Format] {
		v.addError("logging.format", fmt.Sprintf("invalid format: %s", l.Format))
	}
}

func (v *Validator) validateServer(config *Config) {
	s := config.Server
	if s.MaxQueryLength < 0 {
		v.addError("server.max_query_length", "max_query_length must be non-negative")
	}
	if s.RateLimit.Enabled {
		if s.RateLimit.Rate <= 0 {
			v.addError("server.rate_limit.rate", "rate must be positive when rate limiting is enabled")
		}
		if s.RateLimit.Burst < 0 {
			v.addError("server.rate_limit.burst", "burst must be non-negative")
		}
	}
}

func (v *Validator) validateObservability(config *Config) {
	if r := config.Observability.SampleRate; r < 0 || r > 1 {
		v.addError("observability.sample_rate", "sample_rate must be between 0 and 1")
	}
}
