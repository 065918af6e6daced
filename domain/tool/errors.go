package tool

import (
	"errors"
	"strings"
)

// Domain errors for the tool system.
var (
	// ErrEmptyName indicates a tool was created with an empty name.
	ErrEmptyName = errors.New("tool name cannot be empty")

	// ErrInvalidName indicates a tool name the completion gateway cannot carry.
	ErrInvalidName = errors.New("tool name must match [a-zA-Z0-9_-]{1,64}")

	// ErrNoHandler indicates a tool was created without a handler.
	ErrNoHandler = errors.New("tool has no handler")

	// ErrToolNotFound indicates the requested tool was not found.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolExists indicates a tool with the same name already exists.
	ErrToolExists = errors.New("tool already exists")

	// ErrInvalidSchema indicates a malformed input schema declaration.
	ErrInvalidSchema = errors.New("invalid tool schema")

	// ErrInvalidInput indicates the input failed schema validation.
	ErrInvalidInput = errors.New("invalid tool input")

	// ErrExecutionTimeout indicates the tool execution timed out.
	ErrExecutionTimeout = errors.New("tool execution timed out")
)

// Issue codes reported by schema validation.
const (
	IssueMalformedJSON   = "malformed_json"
	IssueNotObject       = "not_object"
	IssueMissingRequired = "missing_required"
	IssueTypeMismatch    = "type_mismatch"
	IssueNotInEnum       = "not_in_enum"
	IssueUnknownField    = "unknown_field"
	IssueUnknownTool     = "unknown_tool"
)

// Issue is one machine-readable validation problem.
type Issue struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError reports why tool arguments were refused.
type ValidationError struct {
	Tool   string
	Issues []Issue
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid input")
	if e.Tool != "" {
		b.WriteString(" for tool ")
		b.WriteString(e.Tool)
	}
	for i, issue := range e.Issues {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		if issue.Field != "" {
			b.WriteString(issue.Field)
			b.WriteString(": ")
		}
		b.WriteString(issue.Code)
	}
	return b.String()
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
