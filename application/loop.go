package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/opsquery/domain/agent"
	"github.com/felixgeelhaar/opsquery/domain/policy"
	"github.com/felixgeelhaar/opsquery/domain/telemetry"
	"github.com/felixgeelhaar/opsquery/domain/tool"
	"github.com/felixgeelhaar/opsquery/infrastructure/gateway"
	"github.com/felixgeelhaar/opsquery/infrastructure/logging"
)

// act runs one loop pass: a single gateway call with every tool declared,
// followed by the validated execution of at most one proposed call.
func (r *run) act(ctx context.Context) (outcome, error) {
	if r.checkCancelled(ctx, agent.NodeAct) {
		return outcomeNone, nil
	}

	system := actPrompt(r.state.ReferenceTime(), r.location)
	resp, err := r.complete(ctx, agent.NodeAct, gateway.Request{
		Messages: renderTranscript(system, r.state.Transcript()),
		Tools:    r.o.declarations,
	})

	out := outcomeNone
	switch {
	case err != nil:
		if r.checkCancelled(ctx, agent.NodeAct) {
			return outcomeNone, nil
		}
		r.gatewayFailure(agent.NodeAct, err)
	case resp.Kind == gateway.KindToolCall && resp.ToolCall != nil:
		if resp.Text != "" {
			r.append(agent.Turn{Kind: agent.TurnAssistant, Node: agent.NodeAct, Content: resp.Text})
		}
		out = r.handleCall(ctx, *resp.ToolCall)
	case resp.Kind == gateway.KindToolCall:
		r.gatewayFailure(agent.NodeAct, &gateway.Error{
			Kind:     gateway.ErrMalformed,
			Provider: r.o.gateway.Name(),
			Err:      errMissingToolCall,
		})
	default:
		content := resp.Text
		if content == "" && len(resp.Object) > 0 {
			content = string(resp.Object)
		}
		r.append(agent.Turn{Kind: agent.TurnAssistant, Node: agent.NodeAct, Content: strings.TrimSpace(content)})
		_ = r.state.Complete("")
	}

	if err := r.state.NextIteration(); err != nil {
		return out, fmt.Errorf("%w: %v", agent.ErrInvariant, err)
	}
	if out != outcomeToolSucceeded {
		r.enforceBudget()
	}
	return out, nil
}

// handleCall validates a proposed call and executes it if it is valid.
func (r *run) handleCall(ctx context.Context, call gateway.ToolCall) outcome {
	proposed := agent.ProposedCall{
		ID:        call.ID,
		ToolName:  call.Name,
		Arguments: recordedArguments(call.Arguments),
	}
	if proposed.ID == "" {
		proposed.ID = "call_" + uuid.NewString()
	}
	r.state.Propose(proposed)
	defer r.state.ClearPending()

	rec := agent.ToolCallRecord{
		ID:        proposed.ID,
		ToolName:  proposed.ToolName,
		Arguments: proposed.Arguments,
		Timestamp: r.state.Now(),
	}

	t, ok := r.o.registry.Get(call.Name)
	if !ok {
		rec.Validation = agent.ValidationUnknownTool
		rec.Issues = []agent.Issue{{
			Code:    tool.IssueUnknownTool,
			Message: fmt.Sprintf("no tool named %q; available tools: %s", call.Name, strings.Join(r.o.registry.Names(), ", ")),
		}}
		r.refuse(ctx, rec, CodeUnknownTool)
		return outcomeNone
	}

	if issues := t.InputSchema().Check(call.Arguments); len(issues) > 0 {
		rec.Validation = agent.ValidationInvalid
		rec.Issues = convertIssues(issues)
		r.refuse(ctx, rec, CodeInvalidArguments)
		return outcomeNone
	}

	rec.Validation = agent.ValidationValid
	return r.execute(ctx, t, call.Arguments, rec)
}

// refuse records a call that failed validation and charges the tool's
// invalid call budget. Exhausting the budget fails the run.
func (r *run) refuse(ctx context.Context, rec agent.ToolCallRecord, code string) {
	r.append(agent.Turn{Kind: agent.TurnToolCall, Node: agent.NodeAct, ToolCall: &rec})
	r.state.RecordError(agent.RunError{
		Node:    agent.NodeAct,
		Code:    code,
		Message: issueSummary(rec.Issues),
		Tool:    rec.ToolName,
	})
	r.o.recorder.ToolCalled(ctx, telemetry.ToolCall{
		Tool:       rec.ToolName,
		Validation: string(rec.Validation),
		Code:       code,
	})
	logging.Warn().
		Add(logging.RunID(r.state.ID())).
		Add(logging.ToolName(rec.ToolName)).
		Add(logging.Validation(rec.Validation)).
		Add(logging.Int("issues", len(rec.Issues))).
		Msg("tool call refused")

	key := policy.InvalidCallKey(rec.ToolName)
	if err := r.budget.Consume(key, 1); err != nil {
		if !errors.Is(err, policy.ErrBudgetExceeded) {
			return
		}
		r.state.RecordError(agent.RunError{
			Node:    agent.NodeAct,
			Code:    CodeInvalidCallBudget,
			Message: fmt.Sprintf("too many invalid calls to %s", rec.ToolName),
			Tool:    rec.ToolName,
		})
		_ = r.state.Fail(CodeInvalidCallBudget)
		logging.Warn().
			Add(logging.RunID(r.state.ID())).
			Add(logging.ToolName(rec.ToolName)).
			Add(logging.Code(CodeInvalidCallBudget)).
			Msg("invalid call budget exhausted")
		return
	}
	logging.Debug().
		Add(logging.RunID(r.state.ID())).
		Add(logging.ToolName(rec.ToolName)).
		Add(logging.Int("invalid_calls_left", r.budget.Remaining(key))).
		Msg("invalid call counted")
	if !r.budget.CanConsume(key, 1) {
		r.state.AddNote(fmt.Sprintf(NoteLastInvalidCall, rec.ToolName))
	}
}

// execute runs a validated call through the resilient executor.
func (r *run) execute(ctx context.Context, t tool.Tool, args json.RawMessage, rec agent.ToolCallRecord) outcome {
	ctx, span := r.o.tracer.StartSpan(ctx, telemetry.SpanTool,
		telemetry.WithAttributes(telemetry.String(telemetry.AttrTool, t.Name())))
	defer span.End()

	execCtx := tool.WithClock(ctx, tool.Clock{Reference: r.state.ReferenceTime(), Location: r.location})
	start := time.Now()
	res, err := r.o.executor.Execute(execCtx, t, args)
	if err != nil {
		rec.Failure = &agent.ToolFailure{Code: CodeCancelled, Message: err.Error()}
		rec.Duration = time.Since(start)
		r.append(agent.Turn{Kind: agent.TurnToolCall, Node: agent.NodeAct, ToolCall: &rec})
		span.RecordError(err)
		r.checkCancelled(ctx, agent.NodeAct)
		return outcomeNone
	}

	rec.Output = res.Output
	rec.Duration = res.Duration
	code := ""
	if res.Failed() {
		code = res.Failure.Code
		rec.Failure = &agent.ToolFailure{Code: res.Failure.Code, Message: res.Failure.Message}
	} else {
		rec.Metadata = declaredMetadata(t, res.Metadata)
	}
	r.append(agent.Turn{Kind: agent.TurnToolCall, Node: agent.NodeAct, ToolCall: &rec})

	span.SetAttributes(
		telemetry.String(telemetry.AttrValidation, string(rec.Validation)),
		telemetry.String(telemetry.AttrCode, code),
	)
	r.o.recorder.ToolCalled(ctx, telemetry.ToolCall{
		Tool:       t.Name(),
		Validation: string(rec.Validation),
		Code:       code,
		Duration:   rec.Duration,
	})

	if rec.Failure != nil {
		span.SetStatus(telemetry.StatusCodeError, code)
		r.state.RecordError(agent.RunError{
			Node:    agent.NodeAct,
			Code:    rec.Failure.Code,
			Message: rec.Failure.Message,
			Tool:    t.Name(),
		})
		logging.Warn().
			Add(logging.RunID(r.state.ID())).
			Add(logging.ToolName(t.Name())).
			Add(logging.Code(code)).
			Add(logging.Duration(rec.Duration)).
			Msg("tool failed")
		return outcomeNone
	}

	merged := r.state.MergeMetadata(rec.Metadata, agent.MergeLatestWins)
	logging.Info().
		Add(logging.RunID(r.state.ID())).
		Add(logging.ToolName(t.Name())).
		Add(logging.Int("metadata_applied", len(merged.Applied))).
		Add(logging.Duration(rec.Duration)).
		Msg("tool executed")
	return outcomeToolSucceeded
}

// recordedArguments keeps malformed arguments as a JSON string so the
// record stays serializable.
func recordedArguments(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	if json.Valid(raw) {
		return raw
	}
	return mustJSON(string(raw))
}

// declaredMetadata keeps the fields t declares it may contribute.
func declaredMetadata(t tool.Tool, md map[string]any) map[string]any {
	if len(md) == 0 {
		return nil
	}
	declared := make(map[string]struct{})
	for _, f := range t.MetadataFields() {
		declared[f] = struct{}{}
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		if _, ok := declared[k]; ok {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func convertIssues(issues []tool.Issue) []agent.Issue {
	out := make([]agent.Issue, len(issues))
	for i, is := range issues {
		out[i] = agent.Issue{Field: is.Field, Code: is.Code, Message: is.Message}
	}
	return out
}

func issueSummary(issues []agent.Issue) string {
	msgs := make([]string, len(issues))
	for i, is := range issues {
		msgs[i] = is.Message
	}
	return strings.Join(msgs, "; ")
}
