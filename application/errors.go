package application

import "errors"

var (
	// ErrNoGateway indicates the orchestrator was built without a gateway.
	ErrNoGateway = errors.New("gateway is required")

	// ErrNoRegistry indicates the orchestrator was built without a tool registry.
	ErrNoRegistry = errors.New("registry is required")

	errMissingToolCall = errors.New("tool call response carries no call")
)

// Error codes recorded on run errors besides gateway kinds and tool failure codes.
const (
	CodeCancelled         = "cancelled"
	CodeInvalidArguments  = "invalid_arguments"
	CodeUnknownTool       = "unknown_tool"
	CodeInvalidCallBudget = "invalid_call_budget"
	CodeUnparseable       = "unparseable_verdict"
)

// NoteBudgetExhausted is recorded when the loop runs out of iterations.
const NoteBudgetExhausted = "iteration budget exhausted"

// NoteLastInvalidCall is formatted with the tool name once that tool has no
// refusals left before the run fails.
const NoteLastInvalidCall = "no invalid calls to %s remain"
