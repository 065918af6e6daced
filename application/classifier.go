package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/opsquery/domain/agent"
	"github.com/felixgeelhaar/opsquery/infrastructure/gateway"
	"github.com/felixgeelhaar/opsquery/infrastructure/logging"
)

// classify makes exactly one gateway call and always leaves the run with a
// decided classification. Anything short of a parseable in-scope verdict
// is treated as out of scope.
func (r *run) classify(ctx context.Context) {
	if r.checkCancelled(ctx, agent.NodeClassify) {
		_ = r.state.Classify(agent.ClassificationOutOfScope)
		r.append(agent.Turn{
			Kind:           agent.TurnClassification,
			Node:           agent.NodeClassify,
			Classification: agent.ClassificationOutOfScope,
			Content:        "not classified: run cancelled",
		})
		return
	}

	verdict, content := r.requestVerdict(ctx)

	c := agent.ClassificationOutOfScope
	if verdict {
		c = agent.ClassificationInScope
	}
	_ = r.state.Classify(c)
	r.append(agent.Turn{
		Kind:           agent.TurnClassification,
		Node:           agent.NodeClassify,
		Classification: c,
		Content:        content,
	})

	logging.Info().
		Add(logging.RunID(r.state.ID())).
		Add(logging.Classification(c)).
		Msg("query classified")

	if c == agent.ClassificationOutOfScope && !r.state.Status().IsTerminal() {
		_ = r.state.Reject()
	}
}

// requestVerdict returns whether the query is in scope and the text kept in
// the classification turn.
func (r *run) requestVerdict(ctx context.Context) (bool, string) {
	resp, err := r.complete(ctx, agent.NodeClassify, gateway.Request{
		Messages: []gateway.Message{
			{Role: gateway.RoleSystem, Content: classifyPrompt},
			{Role: gateway.RoleUser, Content: r.state.Query()},
		},
		Schema: classifySchema,
	})
	if err != nil {
		if r.checkCancelled(ctx, agent.NodeClassify) {
			return false, "not classified: run cancelled"
		}
		r.gatewayFailure(agent.NodeClassify, err)
		return false, "not classified: " + err.Error()
	}

	var v classifyVerdict
	if err := resp.Decode(&v); err != nil || v.InScope == nil {
		if err == nil {
			err = fmt.Errorf("verdict is missing in_scope")
		}
		r.state.RecordError(agent.RunError{
			Node:    agent.NodeClassify,
			Code:    CodeUnparseable,
			Message: err.Error(),
		})
		logging.Warn().
			Add(logging.RunID(r.state.ID())).
			Add(logging.Code(CodeUnparseable)).
			Add(logging.ErrorField(err)).
			Msg("classifier verdict unparseable")
		return false, "not classified: " + err.Error()
	}
	return *v.InScope, strings.TrimSpace(v.Rationale)
}
