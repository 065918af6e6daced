package tool_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/opsquery/domain/tool"
)

func echoHandler(_ context.Context, input json.RawMessage) (tool.Result, error) {
	return tool.Result{Output: input}, nil
}

func TestToolBuilder_Basic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		toolName string
		handler  tool.Handler
		wantErr  error
	}{
		{name: "valid tool", toolName: "test_tool", handler: echoHandler},
		{name: "empty name fails", toolName: "", handler: echoHandler, wantErr: tool.ErrEmptyName},
		{name: "name with spaces fails", toolName: "test tool", handler: echoHandler, wantErr: tool.ErrInvalidName},
		{name: "missing handler fails", toolName: "test_tool", wantErr: tool.ErrNoHandler},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			built, err := tool.NewBuilder(tt.toolName).
				WithDescription("A test tool").
				WithHandler(tt.handler).
				Build()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Build() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && built.Name() != tt.toolName {
				t.Errorf("Name() = %v, want %v", built.Name(), tt.toolName)
			}
		})
	}
}

func TestToolBuilder_Declarations(t *testing.T) {
	t.Parallel()

	built := tool.NewBuilder("extract_time_window").
		WithDescription("Resolve a time expression").
		WithFields(tool.Field{Name: "expression", Type: tool.TypeString, Required: true}).
		WithMetadataFields("time_start", "time_end").
		ReadOnly().
		Idempotent().
		WithTimeout(2 * time.Second).
		WithTags("time").
		WithHandler(echoHandler).
		MustBuild()

	if got := built.InputSchema().Required(); len(got) != 1 || got[0] != "expression" {
		t.Errorf("InputSchema().Required() = %v", got)
	}
	if got := built.MetadataFields(); len(got) != 2 {
		t.Errorf("MetadataFields() = %v", got)
	}
	ann := built.Annotations()
	if !ann.ReadOnly || !ann.Idempotent || !ann.CanRetry() {
		t.Errorf("Annotations() = %+v", ann)
	}
	if ann.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", ann.Timeout)
	}
	if !ann.HasTag("time") || ann.HasTag("net") {
		t.Errorf("Tags = %v", ann.Tags)
	}

	decl := tool.Declare(built)
	if decl.Name != "extract_time_window" || decl.Description == "" || decl.Schema.IsEmpty() {
		t.Errorf("Declare() = %+v", decl)
	}
}

func TestToolBuilder_InvalidFields(t *testing.T) {
	t.Parallel()

	_, err := tool.NewBuilder("broken").
		WithFields(tool.Field{Name: "a", Type: "date"}).
		WithHandler(echoHandler).
		Build()
	if !errors.Is(err, tool.ErrInvalidSchema) {
		t.Errorf("Build() error = %v, want ErrInvalidSchema", err)
	}
}

func TestDefinition_Execute(t *testing.T) {
	t.Parallel()

	built := tool.NewBuilder("echo").WithHandler(echoHandler).MustBuild()
	res, err := built.Execute(context.Background(), json.RawMessage(`{"a":1}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.OutputString() != `{"a":1}` {
		t.Errorf("Output = %s", res.Output)
	}
}

func TestResult(t *testing.T) {
	t.Parallel()

	res, err := tool.JSONResult(map[string]string{"time_start": "x"})
	if err != nil {
		t.Fatalf("JSONResult() error = %v", err)
	}
	res = res.WithMetadata("time_start", "x")
	if res.Failed() || res.Metadata["time_start"] != "x" {
		t.Errorf("result = %+v", res)
	}

	failed := tool.Fail("unresolvable_expression", "cannot resolve %q", "blue moon")
	if !failed.Failed() || failed.Failure.Code != "unresolvable_expression" {
		t.Errorf("Fail() = %+v", failed)
	}
	if failed.Failure.Error() != `unresolvable_expression: cannot resolve "blue moon"` {
		t.Errorf("Failure.Error() = %q", failed.Failure.Error())
	}
}

func TestClock(t *testing.T) {
	t.Parallel()

	if _, ok := tool.ClockFrom(context.Background()); ok {
		t.Error("ClockFrom() ok = true on empty context")
	}
	ref := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	ctx := tool.WithClock(context.Background(), tool.Clock{Reference: ref, Location: time.UTC})
	c, ok := tool.ClockFrom(ctx)
	if !ok || !c.Reference.Equal(ref) {
		t.Errorf("ClockFrom() = %+v, %v", c, ok)
	}
}
