package config

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDuration_JSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		duration Duration
		wantJSON string
	}{
		{name: "zero value", duration: Duration(0), wantJSON: `"0s"`},
		{name: "seconds", duration: Duration(5 * time.Second), wantJSON: `"5s"`},
		{name: "minutes and seconds", duration: Duration(90 * time.Second), wantJSON: `"1m30s"`},
		{name: "milliseconds", duration: Duration(500 * time.Millisecond), wantJSON: `"500ms"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data, err := json.Marshal(tt.duration)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tt.wantJSON {
				t.Errorf("Marshal() = %s, want %s", data, tt.wantJSON)
			}

			var got Duration
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got != tt.duration {
				t.Errorf("Unmarshal() = %v, want %v", got, tt.duration)
			}
		})
	}
}

func TestDuration_UnmarshalJSON_Invalid(t *testing.T) {
	t.Parallel()

	var d Duration
	if err := json.Unmarshal([]byte(`"soon"`), &d); err == nil {
		t.Error("Unmarshal(soon) should fail")
	}
	if err := json.Unmarshal([]byte(`null`), &d); err != nil || d != 0 {
		t.Errorf("Unmarshal(null) = %v, %v", d, err)
	}
}

func TestConfig_YAML(t *testing.T) {
	t.Parallel()

	src := `
agent:
  max_iterations: 4
  timezone: Europe/Amsterdam
  metadata_fields: [time_start, time_end]
gateway:
  provider: anthropic
  timeout: 15s
tools:
  timeout: 2s
server:
  rate_limit:
    enabled: true
    rate: 3
`
	var cfg Config
	if err := yaml.Unmarshal([]byte(src), &cfg); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}

	if cfg.Agent.MaxIterations != 4 {
		t.Errorf("MaxIterations = %d", cfg.Agent.MaxIterations)
	}
	if len(cfg.Agent.MetadataFields) != 2 {
		t.Errorf("MetadataFields = %v", cfg.Agent.MetadataFields)
	}
	if cfg.Gateway.Timeout.Duration() != 15*time.Second {
		t.Errorf("Gateway.Timeout = %v", cfg.Gateway.Timeout.Duration())
	}
	if cfg.Tools.Timeout.Duration() != 2*time.Second {
		t.Errorf("Tools.Timeout = %v", cfg.Tools.Timeout.Duration())
	}
	if !cfg.Server.RateLimit.Enabled || cfg.Server.RateLimit.Rate != 3 {
		t.Errorf("RateLimit = %+v", cfg.Server.RateLimit)
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()

	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("MaxIterations = %d, want 10", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.MaxInvalidCallsPerTool != 2 {
		t.Errorf("MaxInvalidCallsPerTool = %d, want 2", cfg.Agent.MaxInvalidCallsPerTool)
	}
	if cfg.Gateway.Timeout.Duration() != 60*time.Second {
		t.Errorf("Gateway.Timeout = %v, want 60s", cfg.Gateway.Timeout.Duration())
	}
	if cfg.Tools.Timeout.Duration() != 10*time.Second {
		t.Errorf("Tools.Timeout = %v, want 10s", cfg.Tools.Timeout.Duration())
	}

	loc, err := cfg.Agent.Location()
	if err != nil {
		t.Fatalf("Location() error = %v", err)
	}
	if loc.String() != "US/Eastern" {
		t.Errorf("Location() = %s", loc)
	}

	if errs := NewValidator().Validate(&cfg); errs.HasErrors() {
		t.Errorf("Default() is invalid: %v", errs)
	}
}

func TestAgentSettings_Location_Empty(t *testing.T) {
	t.Parallel()

	loc, err := AgentSettings{}.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("Location() = %v, %v, want UTC", loc, err)
	}
}
