package logging

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/opsquery/domain/agent"
)

// testLogger creates a logger that writes to a buffer for testing
func testLogger() (*bolt.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := New(Config{Level: "trace", Format: "json", Output: buf})
	return logger, buf
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	if config.Level != "info" || config.Format != "console" || config.Output != os.Stderr {
		t.Errorf("DefaultConfig() = %+v", config)
	}

	config = ProductionConfig()
	if config.Format != "json" || config.Output != os.Stdout {
		t.Errorf("ProductionConfig() = %+v", config)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected bolt.Level
	}{
		{"trace", bolt.TRACE},
		{"debug", bolt.DEBUG},
		{"INFO", bolt.INFO},
		{"warn", bolt.WARN},
		{"error", bolt.ERROR},
		{"unknown", bolt.INFO},
		{"", bolt.INFO},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			if result := parseLevel(tt.input); result != tt.expected {
				t.Errorf("parseLevel(%s) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		field Field
		want  []string
	}{
		{name: "run id", field: RunID("run-123"), want: []string{`"run_id":"run-123"`}},
		{name: "node", field: Node(agent.NodeReflect), want: []string{`"node":"reflect"`}},
		{name: "transition", field: Transition(agent.NodeAct, agent.NodeFinalize), want: []string{`"from_node":"act"`, `"to_node":"finalize"`}},
		{name: "status", field: Status(agent.StatusRejected), want: []string{`"status":"rejected"`}},
		{name: "classification", field: Classification(agent.ClassificationInScope), want: []string{`"classification":"in_scope"`}},
		{name: "iteration", field: Iteration(3, 10), want: []string{`"iteration":3`, `"max_iterations":10`}},
		{name: "tool", field: ToolName("extract_time_window"), want: []string{`"tool":"extract_time_window"`}},
		{name: "validation", field: Validation(agent.ValidationUnknownTool), want: []string{`"validation":"unknown_tool"`}},
		{name: "code", field: Code("timeout"), want: []string{`"code":"timeout"`}},
		{name: "purpose", field: Purpose("classify"), want: []string{`"purpose":"classify"`}},
		{name: "provider", field: Provider("openai"), want: []string{`"provider":"openai"`}},
		{name: "tokens", field: Tokens(12, 3), want: []string{`"input_tokens":12`, `"output_tokens":3`}},
		{name: "duration", field: Duration(100 * time.Millisecond), want: []string{`"duration_ms":100`}},
		{name: "error", field: ErrorField(errors.New("test error")), want: []string{`"error":"test error"`}},
		{name: "component", field: Component("api"), want: []string{`"component":"api"`}},
		{name: "custom string", field: Str("key", "value"), want: []string{`"key":"value"`}},
		{name: "custom int", field: Int("count", 7), want: []string{`"count":7`}},
		{name: "custom bool", field: Bool("ok", true), want: []string{`"ok":true`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, buf := testLogger()
			NewEvent(logger.Info()).Add(tt.field).Msg("test")

			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("expected %s in output: %s", w, buf.String())
				}
			}
		})
	}
}

func TestErrorField_Nil(t *testing.T) {
	t.Parallel()

	logger, buf := testLogger()
	NewEvent(logger.Info()).Add(ErrorField(nil)).Msg("test")

	if strings.Contains(buf.String(), `"error"`) {
		t.Errorf("unexpected error field in output: %s", buf.String())
	}
}

func TestNew_Level(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	logger := New(Config{Level: "warn", Format: "json", Output: buf})
	logger.Info().Msg("dropped")
	logger.Warn().Msg("kept")

	if strings.Contains(buf.String(), "dropped") {
		t.Errorf("info line written at warn level: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn line missing: %s", buf.String())
	}
}

// Not parallel: swaps the process-wide logger.
func TestReplace(t *testing.T) {
	buf := &bytes.Buffer{}
	restore := Replace(New(Config{Level: "debug", Format: "json", Output: buf}))
	defer restore()

	Debug().Add(RunID("r1")).Msg("node entered")

	if !strings.Contains(buf.String(), `"run_id":"r1"`) {
		t.Errorf("default logger not replaced: %s", buf.String())
	}
}
