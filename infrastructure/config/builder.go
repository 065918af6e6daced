package config

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/opsquery/domain/agent"
	domainconfig "github.com/felixgeelhaar/opsquery/domain/config"
	"github.com/felixgeelhaar/opsquery/domain/policy"
	"github.com/felixgeelhaar/opsquery/infrastructure/gateway"
	"github.com/felixgeelhaar/opsquery/infrastructure/resilience"
)

// Builder turns a validated configuration into component settings.
type Builder struct {
	config *domainconfig.Config
}

// NewBuilder creates a new configuration builder.
func NewBuilder(config *domainconfig.Config) *Builder {
	return &Builder{config: config}
}

// BuildResult contains the component settings derived from configuration.
type BuildResult struct {
	// Loop bounds the agent loop.
	Loop policy.LoopPolicy
	// Location is the default timezone of a run.
	Location *time.Location
	// Fields is the fixed metadata field set.
	Fields agent.FieldSet
	// Gateway selects the completion provider.
	Gateway gateway.Config
	// Guard bounds every completion call.
	Guard resilience.GuardConfig
	// Executor configures tool execution.
	Executor resilience.ExecutorConfig
	// Temperature is sent with every completion request.
	Temperature float64
	// DisabledTools are left out of the registry.
	DisabledTools map[string]bool
}

// Build derives component settings. Zero values fall back to the defaults.
func (b *Builder) Build() (*BuildResult, error) {
	cfg := b.config
	defaults := domainconfig.Default()

	loop := policy.LoopPolicy{
		MaxIterations:          orInt(cfg.Agent.MaxIterations, defaults.Agent.MaxIterations),
		MaxInvalidCallsPerTool: cfg.Agent.MaxInvalidCallsPerTool,
	}
	if err := loop.Validate(); err != nil {
		return nil, fmt.Errorf("building loop policy: %w", err)
	}

	loc, err := cfg.Agent.Location()
	if err != nil {
		return nil, fmt.Errorf("building location: %w", err)
	}

	fields := cfg.Agent.MetadataFields
	if len(fields) == 0 {
		fields = agent.DefaultFields()
	}

	gatewayTimeout := orDuration(cfg.Gateway.Timeout, defaults.Gateway.Timeout)
	toolTimeout := orDuration(cfg.Tools.Timeout, defaults.Tools.Timeout)
	r := cfg.Resilience

	result := &BuildResult{
		Loop:     loop,
		Location: loc,
		Fields:   agent.NewFieldSet(fields...),
		Gateway: gateway.Config{
			Provider:  cfg.Gateway.Provider,
			Model:     cfg.Gateway.Model,
			BaseURL:   cfg.Gateway.BaseURL,
			APIKey:    cfg.Gateway.APIKey,
			MaxTokens: cfg.Gateway.MaxTokens,
			Timeout:   gatewayTimeout,
		},
		Guard: resilience.GuardConfig{
			Timeout:          gatewayTimeout,
			BreakerThreshold: r.CircuitBreaker.Threshold,
			BreakerTimeout:   orDuration(r.CircuitBreaker.Timeout, defaults.Resilience.CircuitBreaker.Timeout),
		},
		Executor: resilience.ExecutorConfig{
			MaxConcurrent:           orInt(r.Bulkhead.MaxConcurrent, defaults.Resilience.Bulkhead.MaxConcurrent),
			CircuitBreakerThreshold: orInt(r.CircuitBreaker.Threshold, defaults.Resilience.CircuitBreaker.Threshold),
			CircuitBreakerTimeout:   orDuration(r.CircuitBreaker.Timeout, defaults.Resilience.CircuitBreaker.Timeout),
			RetryMaxAttempts:        orInt(r.Retry.MaxAttempts, defaults.Resilience.Retry.MaxAttempts),
			RetryInitialDelay:       orDuration(r.Retry.InitialDelay, defaults.Resilience.Retry.InitialDelay),
			RetryBackoffMultiplier:  orFloat(r.Retry.Multiplier, defaults.Resilience.Retry.Multiplier),
			DefaultTimeout:          toolTimeout,
		},
		Temperature:   cfg.Gateway.Temperature,
		DisabledTools: make(map[string]bool, len(cfg.Tools.Disabled)),
	}
	for _, name := range cfg.Tools.Disabled {
		result.DisabledTools[name] = true
	}
	return result, nil
}

func orInt(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func orFloat(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}

func orDuration(v, fallback domainconfig.Duration) time.Duration {
	if v > 0 {
		return v.Duration()
	}
	return fallback.Duration()
}
