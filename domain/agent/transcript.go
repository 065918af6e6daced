package agent

import (
	"encoding/json"
	"time"
)

// TurnKind categorizes a transcript entry.
type TurnKind string

const (
	TurnQuery          TurnKind = "query"           // The user query
	TurnClassification TurnKind = "classification"  // Classifier verdict
	TurnAssistant      TurnKind = "assistant"       // Free text from the model
	TurnToolCall       TurnKind = "tool_call"       // A resolved ToolCallRecord
	TurnReflection     TurnKind = "reflection"      // Advisory sufficiency check
	TurnGatewayFailure TurnKind = "gateway_failure" // A failed completion call
	TurnNote           TurnKind = "note"            // Orchestrator note such as budget exhaustion
	TurnSummary        TurnKind = "summary"         // Finalizer output
)

// Turn is one immutable transcript entry.
type Turn struct {
	Seq            int             `json:"seq"`
	Kind           TurnKind        `json:"kind"`
	Node           Node            `json:"node"`
	Content        string          `json:"content,omitempty"`
	Classification Classification  `json:"classification,omitempty"`
	Sufficient     *bool           `json:"sufficient,omitempty"`
	ToolCall       *ToolCallRecord `json:"tool_call,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Validation is the outcome of checking a proposed tool call.
type Validation string

const (
	ValidationValid       Validation = "valid"
	ValidationInvalid     Validation = "invalid"
	ValidationUnknownTool Validation = "unknown_tool"
)

// Issue is a machine-readable validation problem.
type Issue struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToolFailure is a declared failure outcome reported by a tool.
type ToolFailure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ProposedCall is a tool call suggested by the model, not yet validated.
type ProposedCall struct {
	ID        string          `json:"id"`
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolCallRecord is the resolved outcome of a proposed tool call.
type ToolCallRecord struct {
	ID         string          `json:"id"`
	ToolName   string          `json:"tool_name"`
	Arguments  json.RawMessage `json:"arguments"`
	Validation Validation      `json:"validation"`
	Issues     []Issue         `json:"issues,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Failure    *ToolFailure    `json:"failure,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	Duration   time.Duration   `json:"duration"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Executed returns true if the call passed validation and was run.
func (r ToolCallRecord) Executed() bool {
	return r.Validation == ValidationValid
}

// Succeeded returns true if the call ran without a tool failure.
func (r ToolCallRecord) Succeeded() bool {
	return r.Executed() && r.Failure == nil
}

// Feedback renders what the model should see as the result of the call.
func (r ToolCallRecord) Feedback() json.RawMessage {
	var v any
	switch {
	case !r.Executed():
		v = map[string]any{
			"error":      "validation_failed",
			"validation": r.Validation,
			"issues":     r.Issues,
		}
	case r.Failure != nil:
		v = map[string]any{
			"error":   r.Failure.Code,
			"message": r.Failure.Message,
		}
	default:
		if len(r.Output) > 0 {
			return r.Output
		}
		v = map[string]any{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{"error":"unrenderable_result"}`)
	}
	return data
}

// RunError is an error encountered during a run, surfaced in the FinalResult.
type RunError struct {
	Node    Node   `json:"node"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Tool    string `json:"tool,omitempty"`
}

// Error implements the error interface.
func (e RunError) Error() string {
	if e.Tool != "" {
		return string(e.Node) + ": " + e.Tool + ": " + e.Code + ": " + e.Message
	}
	return string(e.Node) + ": " + e.Code + ": " + e.Message
}
