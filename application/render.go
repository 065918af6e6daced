package application

import (
	"github.com/felixgeelhaar/opsquery/domain/agent"
	"github.com/felixgeelhaar/opsquery/infrastructure/gateway"
)

// renderTranscript turns the transcript into the conversation the model
// sees. Classification, gateway failures and notes are orchestration
// bookkeeping and stay out of the conversation.
func renderTranscript(system string, turns []agent.Turn) []gateway.Message {
	msgs := make([]gateway.Message, 0, len(turns)+1)
	if system != "" {
		msgs = append(msgs, gateway.Message{Role: gateway.RoleSystem, Content: system})
	}
	for _, t := range turns {
		switch t.Kind {
		case agent.TurnQuery:
			msgs = append(msgs, gateway.Message{Role: gateway.RoleUser, Content: t.Content})
		case agent.TurnAssistant:
			msgs = append(msgs, gateway.Message{Role: gateway.RoleAssistant, Content: t.Content})
		case agent.TurnToolCall:
			if t.ToolCall == nil {
				continue
			}
			rec := t.ToolCall
			msgs = append(msgs,
				gateway.Message{
					Role:     gateway.RoleAssistant,
					ToolCall: &gateway.ToolCall{ID: rec.ID, Name: rec.ToolName, Arguments: rec.Arguments},
				},
				gateway.Message{
					Role:       gateway.RoleTool,
					Content:    string(rec.Feedback()),
					ToolCallID: rec.ID,
					ToolName:   rec.ToolName,
				},
			)
		case agent.TurnReflection:
			msgs = append(msgs, gateway.Message{Role: gateway.RoleAssistant, Content: "Assessment: " + t.Content})
		}
	}
	return msgs
}

// lastToolCall returns the most recent resolved tool call.
func lastToolCall(turns []agent.Turn) (agent.ToolCallRecord, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Kind == agent.TurnToolCall && turns[i].ToolCall != nil {
			return *turns[i].ToolCall, true
		}
	}
	return agent.ToolCallRecord{}, false
}
