package tool

import (
	"encoding/json"
	"fmt"
	"time"
)

// Result contains the output of a tool execution.
type Result struct {
	// Output is the primary result data shown to the model.
	Output json.RawMessage `json:"output,omitempty"`

	// Metadata are named fields the tool contributes to the run.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Failure is a declared failure outcome. Tools report expected problems
	// here instead of returning an error.
	Failure *Failure `json:"failure,omitempty"`

	// Duration is how long the execution took.
	Duration time.Duration `json:"duration"`
}

// Failure is a typed, declared failure outcome of a tool.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return f.Code + ": " + f.Message
}

// NewResult creates a successful result with the given output.
func NewResult(output json.RawMessage) Result {
	return Result{Output: output}
}

// JSONResult marshals v as the output of a successful result.
func JSONResult(v any) (Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Result{}, fmt.Errorf("marshal tool output: %w", err)
	}
	return Result{Output: data}, nil
}

// Fail creates a result carrying a declared failure.
func Fail(code, format string, args ...any) Result {
	return Result{Failure: &Failure{Code: code, Message: fmt.Sprintf(format, args...)}}
}

// Failed returns true if the result carries a declared failure.
func (r Result) Failed() bool {
	return r.Failure != nil
}

// WithMetadata returns a copy of the result with a metadata contribution added.
func (r Result) WithMetadata(field string, value any) Result {
	md := make(map[string]any, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		md[k] = v
	}
	md[field] = value
	r.Metadata = md
	return r
}

// OutputString returns the output as a string for convenience.
func (r Result) OutputString() string {
	return string(r.Output)
}
