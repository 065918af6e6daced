package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	domain "github.com/felixgeelhaar/opsquery/domain/telemetry"
)

func TestPrometheusRecorder(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)
	ctx := context.Background()

	rec.RunStarted(ctx)
	rec.ToolCalled(ctx, domain.ToolCall{Tool: "parse_time", Validation: "valid", Duration: time.Millisecond})
	rec.ToolCalled(ctx, domain.ToolCall{Tool: "parse_time", Validation: "invalid", Code: "type_mismatch"})
	rec.GatewayCalled(ctx, domain.GatewayCall{Purpose: "act", Provider: "scripted", Kind: "call"})
	rec.RunFinished(ctx, "completed", 2, time.Second)

	if got := testutil.ToFloat64(rec.runsTotal.WithLabelValues("completed")); got != 1 {
		t.Errorf("runs_total{completed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.activeRuns); got != 0 {
		t.Errorf("runs_active = %v, want 0", got)
	}
	if got := testutil.ToFloat64(rec.toolCallsTotal.WithLabelValues("parse_time", "invalid", "type_mismatch")); got != 1 {
		t.Errorf("tool_calls_total{invalid} = %v, want 1", got)
	}

	expected := `
# HELP opsquery_gateway_calls_total Completion calls by purpose, provider and outcome
# TYPE opsquery_gateway_calls_total counter
opsquery_gateway_calls_total{kind="call",provider="scripted",purpose="act"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "opsquery_gateway_calls_total"); err != nil {
		t.Error(err)
	}
}

func TestRecorders(t *testing.T) {
	t.Parallel()

	a := NewPrometheusRecorder(prometheus.NewRegistry())
	b := NewPrometheusRecorder(prometheus.NewRegistry())
	rs := Recorders{a, b, domain.NopRecorder{}}

	rs.RunStarted(context.Background())
	for i, r := range []*PrometheusRecorder{a, b} {
		if got := testutil.ToFloat64(r.activeRuns); got != 1 {
			t.Errorf("recorder %d runs_active = %v, want 1", i, got)
		}
	}
}
