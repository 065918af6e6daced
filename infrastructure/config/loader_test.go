package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	domainconfig "github.com/felixgeelhaar/opsquery/domain/config"
)

func env(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestLoader_LoadFile_YAML(t *testing.T) {
	t.Parallel()

	content := `
agent:
  max_iterations: 6
  timezone: Europe/Amsterdam
gateway:
  provider: anthropic
  api_key: ${CLAUDE_KEY}
  timeout: 20s
tools:
  timeout: 3s
`
	path := filepath.Join(t.TempDir(), "opsquery.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	loader := NewLoader(WithLookup(env(map[string]string{"CLAUDE_KEY": "sk-test"})))
	cfg, err := loader.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Agent.MaxIterations != 6 {
		t.Errorf("MaxIterations = %d, want 6", cfg.Agent.MaxIterations)
	}
	if cfg.Gateway.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, want sk-test", cfg.Gateway.APIKey)
	}
	if cfg.Gateway.Timeout.Duration() != 20*time.Second {
		t.Errorf("Gateway.Timeout = %v", cfg.Gateway.Timeout.Duration())
	}
	// Untouched sections keep their defaults.
	if cfg.Agent.MaxInvalidCallsPerTool != 2 {
		t.Errorf("MaxInvalidCallsPerTool = %d, want default 2", cfg.Agent.MaxInvalidCallsPerTool)
	}
	if cfg.Server.Addr != ":8000" {
		t.Errorf("Server.Addr = %q, want default", cfg.Server.Addr)
	}
}

func TestLoader_LoadString_JSON(t *testing.T) {
	t.Parallel()

	loader := NewLoader(WithLookup(env(nil)))
	cfg, err := loader.LoadString(`{"agent":{"max_iterations":3},"logging":{"level":"debug"}}`, FormatJSON)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if cfg.Agent.MaxIterations != 3 || cfg.Logging.Level != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoader_EmptyPath(t *testing.T) {
	t.Parallel()

	loader := NewLoader(WithLookup(env(map[string]string{EnvMaxIterations: "4"})))
	cfg, err := loader.LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile(\"\") error = %v", err)
	}
	if cfg.Agent.MaxIterations != 4 {
		t.Errorf("MaxIterations = %d, want 4 from the environment", cfg.Agent.MaxIterations)
	}
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
		return path
	}

	tests := []struct {
		name    string
		path    string
		lookup  LookupFunc
		wantErr error
	}{
		{name: "missing file", path: filepath.Join(dir, "nope.yaml"), wantErr: domainconfig.ErrConfigNotFound},
		{name: "directory", path: dir, wantErr: domainconfig.ErrInvalidFormat},
		{name: "unsupported extension", path: write("opsquery.toml", "x = 1"), wantErr: domainconfig.ErrUnsupportedFormat},
		{name: "malformed yaml", path: write("bad.yaml", "agent: [unclosed"), wantErr: domainconfig.ErrInvalidFormat},
		{name: "invalid values", path: write("invalid.yaml", "agent:\n  max_iterations: -1\n"), wantErr: domainconfig.ErrValidationFailed},
		{name: "required variable", path: write("required.yaml", "gateway:\n  api_key: ${OPSQUERY_TEST_KEY:?set the key}\n"), wantErr: domainconfig.ErrMissingEnvVar},
		{
			name:    "bad iteration override",
			path:    write("ok.yaml", "agent:\n  max_iterations: 2\n"),
			lookup:  env(map[string]string{EnvMaxIterations: "many"}),
			wantErr: domainconfig.ErrEnvExpansionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			lookup := tt.lookup
			if lookup == nil {
				lookup = env(nil)
			}
			_, err := NewLoader(WithLookup(lookup)).LoadFile(tt.path)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("LoadFile() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoader_WithoutValidation(t *testing.T) {
	t.Parallel()

	loader := NewLoader(WithLookup(env(nil)), WithValidation(false), WithEnvOverrides(false))
	cfg, err := loader.LoadString("agent:\n  max_iterations: -1\n", FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if cfg.Agent.MaxIterations != -1 {
		t.Errorf("MaxIterations = %d", cfg.Agent.MaxIterations)
	}
}
