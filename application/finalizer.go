package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/opsquery/domain/agent"
	"github.com/felixgeelhaar/opsquery/infrastructure/gateway"
	"github.com/felixgeelhaar/opsquery/infrastructure/logging"
)

var errEmptySummary = errors.New("summary is empty")

// finalize produces the single result of the run. Rejected and cancelled
// runs are answered locally; everything else gets one summarizing call.
func (r *run) finalize(ctx context.Context) agent.FinalResult {
	r.checkCancelled(ctx, agent.NodeFinalize)
	if r.state.IsRunning() {
		_ = r.state.Complete("")
	}

	var result agent.FinalResult
	switch {
	case r.state.Status() == agent.StatusRejected:
		result = r.state.Result(agent.StatusRejected, RejectionSummary)
	case r.cancelled:
		result = r.state.Result(agent.StatusFailed, cancelledSummary(r.state.Metadata()))
	default:
		result = r.summarize(ctx)
	}

	r.append(agent.Turn{Kind: agent.TurnSummary, Node: agent.NodeFinalize, Content: result.Summary})
	return result
}

func (r *run) summarize(ctx context.Context) agent.FinalResult {
	fields := r.state.Fields()
	system := finalizePrompt + "\n\n" + metadataBlock(r.state.Metadata())

	resp, err := r.complete(ctx, agent.NodeFinalize, gateway.Request{
		Messages: renderTranscript(system, r.state.Transcript()),
		Schema:   finalSchema(fields),
	})
	if err != nil {
		if r.checkCancelled(ctx, agent.NodeFinalize) {
			return r.state.Result(agent.StatusFailed, cancelledSummary(r.state.Metadata()))
		}
		r.gatewayFailure(agent.NodeFinalize, err)
		return r.state.Result(agent.StatusFailed, localSummary(r.state.Metadata()))
	}

	var out finalOutput
	err = resp.Decode(&out)
	if err == nil && strings.TrimSpace(out.Summary) == "" {
		err = errEmptySummary
	}
	if err != nil {
		r.state.RecordError(agent.RunError{Node: agent.NodeFinalize, Code: CodeUnparseable, Message: err.Error()})
		logging.Warn().
			Add(logging.RunID(r.state.ID())).
			Add(logging.Code(CodeUnparseable)).
			Add(logging.ErrorField(err)).
			Msg("final summary unparseable")
		return r.state.Result(agent.StatusFailed, localSummary(r.state.Metadata()))
	}

	merged := r.state.MergeMetadata(out.Metadata, agent.MergeFillMissing)
	logging.Debug().
		Add(logging.RunID(r.state.ID())).
		Add(logging.Int("metadata_applied", len(merged.Applied))).
		Add(logging.Int("metadata_skipped", len(merged.Skipped))).
		Msg("final summary received")
	return r.state.Result(r.state.Status(), singleParagraph(out.Summary))
}

// localSummary describes the gathered metadata when no summary could be
// produced by the model.
func localSummary(md agent.Metadata) string {
	if len(md) == 0 {
		return "The request could not be summarized and no values were extracted."
	}
	return "The request could not be summarized. Extracted values: " + inlineMetadata(md) + "."
}

func cancelledSummary(md agent.Metadata) string {
	if len(md) == 0 {
		return "The run was cancelled before any values were extracted."
	}
	return "The run was cancelled. Extracted values so far: " + inlineMetadata(md) + "."
}

func inlineMetadata(md agent.Metadata) string {
	parts := make([]string, 0, len(md))
	for _, k := range md.Keys() {
		parts = append(parts, fmt.Sprintf("%s %s", k, renderValue(md[k])))
	}
	return strings.Join(parts, ", ")
}

// singleParagraph folds line breaks so the summary reads as one paragraph.
func singleParagraph(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
