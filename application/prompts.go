package application

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/opsquery/domain/agent"
	"github.com/felixgeelhaar/opsquery/infrastructure/gateway"
)

const classifyPrompt = `You screen requests for an operations assistant.
The assistant handles operational and profiling questions about workloads: debugging pods, CPU or memory usage, performance of a user's jobs, and time windows for such investigations.
Decide whether the message is in scope. Reply only with the requested JSON object.`

const actPromptTemplate = `You are an operations assistant. Extract the time window and identifiers an operator needs from the user's message.
Do not fetch profiling data; that is not available.

Reference time: %s (%s)

Instructions:
- Resolve relative times such as "yesterday" or "last 2 hours" with the time tools instead of computing them yourself.
- Use exact tool names and parameter names; arguments must be a JSON object.
- When a tool result reports issues, correct the arguments and try again.
- Normalize user, pod and namespace names with the identifier tool.
- Once the window and identifiers are known, or cannot be determined, answer in plain text without calling a tool.`

const reflectPromptTemplate = `You called %s and it returned:

%s

Assess whether the information gathered so far is enough to answer the request. Report any metadata fields the results establish.`

const finalizePrompt = `Review the conversation and write a single paragraph summarizing what was determined.
No bullets, sections or line breaks.
Use only the extracted values below for dates and times; do not repeat intermediate or corrected values from the conversation.`

// RejectionSummary is the fixed summary of an out of scope query.
const RejectionSummary = "This query is not supported. The assistant only handles operational and profiling questions such as debugging a user's pods, CPU or memory usage, and the time windows of such investigations."

func actPrompt(ref time.Time, loc *time.Location) string {
	return fmt.Sprintf(actPromptTemplate, ref.In(loc).Format(time.RFC3339), loc.String())
}

func reflectPrompt(rec agent.ToolCallRecord) string {
	return fmt.Sprintf(reflectPromptTemplate, rec.ToolName, string(rec.Feedback()))
}

// metadataBlock renders the extracted metadata for the finalizer.
func metadataBlock(md agent.Metadata) string {
	var b strings.Builder
	b.WriteString("Extracted values:\n")
	if len(md) == 0 {
		b.WriteString("- none\n")
		return b.String()
	}
	for _, k := range md.Keys() {
		fmt.Fprintf(&b, "- %s: %s\n", k, renderValue(md[k]))
	}
	return b.String()
}

func renderValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		return strings.Join(val, ", ")
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

// classifyVerdict is the structured classifier output.
type classifyVerdict struct {
	InScope   *bool  `json:"in_scope"`
	Rationale string `json:"rationale"`
}

// reflectionVerdict is the structured reflection output.
type reflectionVerdict struct {
	Sufficient *bool          `json:"sufficient"`
	Assessment string         `json:"assessment"`
	Metadata   map[string]any `json:"metadata"`
}

// finalOutput is the structured finalizer output.
type finalOutput struct {
	Summary  string         `json:"summary"`
	Metadata map[string]any `json:"metadata"`
}

var classifySchema = &gateway.OutputSchema{
	Name:        "classification",
	Description: "Whether the query is in scope",
	Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "in_scope": {"type": "boolean"},
    "rationale": {"type": "string"}
  },
  "required": ["in_scope", "rationale"]
}`),
}

func reflectionSchema(fields agent.FieldSet) *gateway.OutputSchema {
	return &gateway.OutputSchema{
		Name:        "reflection",
		Description: "Assessment of the gathered information",
		Schema: mustJSON(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sufficient": map[string]any{"type": "boolean"},
				"assessment": map[string]any{"type": "string"},
				"metadata":   metadataSchema(fields),
			},
			"required": []string{"sufficient", "assessment"},
		}),
	}
}

func finalSchema(fields agent.FieldSet) *gateway.OutputSchema {
	return &gateway.OutputSchema{
		Name:        "final_summary",
		Description: "Summary of the run and any remaining metadata",
		Schema: mustJSON(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"summary":  map[string]any{"type": "string"},
				"metadata": metadataSchema(fields),
			},
			"required": []string{"summary"},
		}),
	}
}

func metadataSchema(fields agent.FieldSet) map[string]any {
	props := make(map[string]any, fields.Len())
	for _, name := range fields.Names() {
		if name == agent.FieldIdentifiers {
			props[name] = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
			continue
		}
		props[name] = map[string]any{"type": "string"}
	}
	return map[string]any{"type": "object", "properties": props}
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
