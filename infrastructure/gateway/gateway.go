// Package gateway provides completion gateway implementations: the single
// boundary through which the agent consults a language model.
package gateway

import (
	"context"
	"encoding/json"

	"github.com/felixgeelhaar/opsquery/domain/tool"
)

// Gateway sends one completion request and returns one response.
// Implementations are stateless and safe for concurrent use.
type Gateway interface {
	// Complete sends a completion request. Failures are returned as *Error.
	Complete(ctx context.Context, req Request) (Response, error)

	// Name returns the provider name for logging.
	Name() string
}

// Purpose identifies which agent node issued a request.
type Purpose string

const (
	PurposeClassify Purpose = "classify"
	PurposeAct      Purpose = "act"
	PurposeReflect  Purpose = "reflect"
	PurposeFinalize Purpose = "finalize"
)

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Request is a provider-neutral completion request.
type Request struct {
	Purpose  Purpose
	Messages []Message

	// Tools are offered to the model. Empty means no tool calling.
	Tools []tool.Declaration

	// Schema asks for a structured response matching the JSON schema.
	Schema *OutputSchema

	Temperature float64
	MaxTokens   int
}

// Message is one entry of the conversation sent to the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`

	// ToolCall is set on assistant messages that requested a tool.
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// ToolCallID and ToolName are set on tool result messages.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

// OutputSchema names a JSON schema for structured output.
type OutputSchema struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// ResponseKind classifies a response.
type ResponseKind string

const (
	KindToolCall   ResponseKind = "tool_call"
	KindText       ResponseKind = "text"
	KindStructured ResponseKind = "structured"
)

// Response is a provider-neutral completion response.
type Response struct {
	Kind ResponseKind

	// Text is set for text responses and may accompany tool calls.
	Text string

	// ToolCall is set for tool_call responses.
	ToolCall *ToolCall

	// Object is set for structured responses.
	Object json.RawMessage

	Usage Usage
}

// ToolCall is a tool invocation requested by the model. Arguments are
// passed through untouched and may be malformed.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Usage contains token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Decode unmarshals a structured response into v.
func (r Response) Decode(v any) error {
	if r.Kind != KindStructured || len(r.Object) == 0 {
		return &Error{Kind: ErrMalformed, Err: errNotStructured}
	}
	if err := json.Unmarshal(r.Object, v); err != nil {
		return &Error{Kind: ErrMalformed, Err: err}
	}
	return nil
}
