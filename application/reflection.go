package application

import (
	"context"
	"strings"

	"github.com/felixgeelhaar/opsquery/domain/agent"
	"github.com/felixgeelhaar/opsquery/infrastructure/gateway"
	"github.com/felixgeelhaar/opsquery/infrastructure/logging"
)

// reflect assesses the latest tool result. The verdict is advisory: it may
// contribute metadata but never changes the run status.
func (r *run) reflect(ctx context.Context) {
	defer r.enforceBudget()

	if r.checkCancelled(ctx, agent.NodeReflect) {
		return
	}
	rec, ok := lastToolCall(r.state.Transcript())
	if !ok {
		return
	}

	fields := r.state.Fields()
	msgs := renderTranscript(actPrompt(r.state.ReferenceTime(), r.location), r.state.Transcript())
	msgs = append(msgs, gateway.Message{Role: gateway.RoleUser, Content: reflectPrompt(rec)})

	resp, err := r.complete(ctx, agent.NodeReflect, gateway.Request{
		Messages: msgs,
		Schema:   reflectionSchema(fields),
	})
	if err != nil {
		if r.checkCancelled(ctx, agent.NodeReflect) {
			return
		}
		r.gatewayFailure(agent.NodeReflect, err)
		return
	}

	var v reflectionVerdict
	if err := resp.Decode(&v); err != nil {
		r.state.RecordError(agent.RunError{Node: agent.NodeReflect, Code: CodeUnparseable, Message: err.Error()})
		logging.Warn().
			Add(logging.RunID(r.state.ID())).
			Add(logging.Code(CodeUnparseable)).
			Add(logging.ErrorField(err)).
			Msg("reflection verdict unparseable")
		return
	}

	merged := r.state.MergeMetadata(v.Metadata, agent.MergeLatestWins)
	r.append(agent.Turn{
		Kind:       agent.TurnReflection,
		Node:       agent.NodeReflect,
		Content:    strings.TrimSpace(v.Assessment),
		Sufficient: v.Sufficient,
	})

	sufficient := v.Sufficient != nil && *v.Sufficient
	logging.Info().
		Add(logging.RunID(r.state.ID())).
		Add(logging.ToolName(rec.ToolName)).
		Add(logging.Bool("sufficient", sufficient)).
		Add(logging.Int("metadata_applied", len(merged.Applied))).
		Msg("reflection recorded")
}
