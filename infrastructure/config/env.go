package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	domainconfig "github.com/felixgeelhaar/opsquery/domain/config"
)

// Environment variables that override file values.
const (
	EnvBaseURL       = "OPENAI_BASE_URL"
	EnvModel         = "OPENAI_MODEL"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvAnthropicKey  = "ANTHROPIC_API_KEY"
	EnvProvider      = "OPSQUERY_PROVIDER"
	EnvTimezone      = "TIMEZONE"
	EnvMaxIterations = "MAX_TOOL_ITERATIONS"
	EnvLogLevel      = "OPSQUERY_LOG_LEVEL"
	EnvAddr          = "OPSQUERY_ADDR"
)

var bracketPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*|:\?[^}]*)?\}`)

// envExpander expands environment variables in configuration text.
type envExpander struct {
	// strict fails if a referenced variable is not set.
	strict bool
	lookup LookupFunc
	// missing tracks missing environment variables.
	missing []string
}

// Expand expands environment variables in the input string.
// Supported patterns:
//   - ${VAR} - expands to the value of VAR
//   - ${VAR:-default} - expands to VAR or "default" if unset or empty
//   - ${VAR:?error message} - fails if VAR is unset or empty
func (e *envExpander) Expand(input string) (string, error) {
	e.missing = nil
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	result := bracketPattern.ReplaceAllStringFunc(input, func(match string) string {
		inner := match[2 : len(match)-1]

		parts := strings.SplitN(inner, ":", 2)
		name := parts[0]
		var modifier string
		if len(parts) > 1 {
			modifier = parts[1]
		}

		value, exists := lookup(name)
		switch {
		case strings.HasPrefix(modifier, "-"):
			if !exists || value == "" {
				return modifier[1:]
			}
		case strings.HasPrefix(modifier, "?"):
			if !exists || value == "" {
				e.missing = append(e.missing, fmt.Sprintf("%s: %s", name, modifier[1:]))
				return match
			}
		case !exists:
			if e.strict {
				e.missing = append(e.missing, name)
			}
			return ""
		}
		return value
	})

	if len(e.missing) > 0 {
		return "", fmt.Errorf("%w: %s", domainconfig.ErrMissingEnvVar, strings.Join(e.missing, ", "))
	}
	return result, nil
}

// ExpandEnv expands ${VAR} references, leaving unset variables empty.
func ExpandEnv(input string) string {
	e := &envExpander{}
	result, _ := e.Expand(input)
	return result
}

// ApplyEnv overrides cfg with the well-known environment variables.
// A nil lookup reads the process environment.
func ApplyEnv(cfg *domainconfig.Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvProvider); ok {
		cfg.Gateway.Provider = v
	}
	if v, ok := get(EnvBaseURL); ok {
		cfg.Gateway.BaseURL = v
	}
	if v, ok := get(EnvModel); ok {
		cfg.Gateway.Model = v
	}
	if cfg.Gateway.APIKey == "" {
		key := EnvOpenAIKey
		if cfg.Gateway.Provider == "anthropic" {
			key = EnvAnthropicKey
		}
		if v, ok := get(key); ok {
			cfg.Gateway.APIKey = v
		}
	}
	if v, ok := get(EnvTimezone); ok {
		cfg.Agent.Timezone = v
	}
	if v, ok := get(EnvMaxIterations); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", domainconfig.ErrEnvExpansionFailed, EnvMaxIterations, v)
		}
		cfg.Agent.MaxIterations = n
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v, ok := get(EnvAddr); ok {
		cfg.Server.Addr = v
	}
	return nil
}
