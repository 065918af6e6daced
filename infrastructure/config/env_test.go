package config

import (
	"errors"
	"testing"

	domainconfig "github.com/felixgeelhaar/opsquery/domain/config"
)

func TestEnvExpander_Expand(t *testing.T) {
	t.Parallel()

	lookup := env(map[string]string{"NAME": "hello", "EMPTY": ""})

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "bracket syntax", input: "${NAME}", want: "hello"},
		{name: "embedded in text", input: "prefix-${NAME}-suffix", want: "prefix-hello-suffix"},
		{name: "multiple variables", input: "${NAME} ${NAME}", want: "hello hello"},
		{name: "unset without default", input: "[${UNSET}]", want: "[]"},
		{name: "default for unset", input: "${UNSET:-fallback}", want: "fallback"},
		{name: "default for empty", input: "${EMPTY:-fallback}", want: "fallback"},
		{name: "default ignored when set", input: "${NAME:-fallback}", want: "hello"},
		{name: "bare dollar untouched", input: "cost $5", want: "cost $5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := &envExpander{lookup: lookup}
			got, err := e.Expand(tt.input)
			if err != nil {
				t.Fatalf("Expand() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Expand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEnvExpander_Strict(t *testing.T) {
	t.Parallel()

	e := &envExpander{strict: true, lookup: env(nil)}
	if _, err := e.Expand("${A} ${B}"); !errors.Is(err, domainconfig.ErrMissingEnvVar) {
		t.Errorf("Expand() error = %v, want ErrMissingEnvVar", err)
	}

	e = &envExpander{lookup: env(nil)}
	_, err := e.Expand("${KEY:?provide an api key}")
	if !errors.Is(err, domainconfig.ErrMissingEnvVar) {
		t.Fatalf("Expand() error = %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		vars  map[string]string
		check func(t *testing.T, cfg domainconfig.Config)
	}{
		{
			name: "openai overrides",
			vars: map[string]string{
				EnvBaseURL:   "http://localhost:11434/v1",
				EnvModel:     "llama3",
				EnvOpenAIKey: "sk-openai",
				EnvTimezone:  "UTC",
				EnvLogLevel:  "DEBUG",
			},
			check: func(t *testing.T, cfg domainconfig.Config) {
				if cfg.Gateway.BaseURL != "http://localhost:11434/v1" || cfg.Gateway.Model != "llama3" {
					t.Errorf("Gateway = %+v", cfg.Gateway)
				}
				if cfg.Gateway.APIKey != "sk-openai" {
					t.Errorf("APIKey = %q", cfg.Gateway.APIKey)
				}
				if cfg.Agent.Timezone != "UTC" || cfg.Logging.Level != "debug" {
					t.Errorf("Timezone = %q, Level = %q", cfg.Agent.Timezone, cfg.Logging.Level)
				}
			},
		},
		{
			name: "anthropic key follows provider",
			vars: map[string]string{
				EnvProvider:     "anthropic",
				EnvOpenAIKey:    "sk-openai",
				EnvAnthropicKey: "sk-ant",
			},
			check: func(t *testing.T, cfg domainconfig.Config) {
				if cfg.Gateway.Provider != "anthropic" || cfg.Gateway.APIKey != "sk-ant" {
					t.Errorf("Gateway = %+v", cfg.Gateway)
				}
			},
		},
		{
			name: "blank values ignored",
			vars: map[string]string{EnvModel: "  ", EnvAddr: ":9090"},
			check: func(t *testing.T, cfg domainconfig.Config) {
				if cfg.Gateway.Model != "gpt-oss:120b" {
					t.Errorf("Model = %q, want default", cfg.Gateway.Model)
				}
				if cfg.Server.Addr != ":9090" {
					t.Errorf("Addr = %q", cfg.Server.Addr)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := domainconfig.Default()
			if err := ApplyEnv(&cfg, env(tt.vars)); err != nil {
				t.Fatalf("ApplyEnv() error = %v", err)
			}
			tt.check(t, cfg)
		})
	}
}
