package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/opsquery/domain/telemetry"
)

func TestNewSpanConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		opts      []telemetry.SpanOption
		wantAttrs int
		wantKind  telemetry.SpanKind
	}{
		{name: "empty", wantKind: telemetry.SpanKindInternal},
		{
			name: "attributes append",
			opts: []telemetry.SpanOption{
				telemetry.WithAttributes(telemetry.String(telemetry.AttrRunID, "r1")),
				telemetry.WithAttributes(telemetry.Int(telemetry.AttrIterations, 2), telemetry.Bool("ok", true)),
			},
			wantAttrs: 3,
			wantKind:  telemetry.SpanKindInternal,
		},
		{
			name:     "kind",
			opts:     []telemetry.SpanOption{telemetry.WithSpanKind(telemetry.SpanKindClient)},
			wantKind: telemetry.SpanKindClient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := telemetry.NewSpanConfig(tt.opts...)
			if len(cfg.Attributes) != tt.wantAttrs {
				t.Errorf("Attributes len = %d, want %d", len(cfg.Attributes), tt.wantAttrs)
			}
			if cfg.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", cfg.Kind, tt.wantKind)
			}
		})
	}
}

func TestNop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gotCtx, span := telemetry.NopTracer{}.StartSpan(ctx, telemetry.SpanRun)
	if gotCtx != ctx {
		t.Error("NopTracer should return the caller's context")
	}
	span.SetAttributes(telemetry.String("k", "v"))
	span.SetStatus(telemetry.StatusCodeOK, "")
	span.End()

	var r telemetry.Recorder = telemetry.NopRecorder{}
	r.RunStarted(ctx)
	r.ToolCalled(ctx, telemetry.ToolCall{Tool: "parse_time", Duration: time.Millisecond})
	r.GatewayCalled(ctx, telemetry.GatewayCall{Purpose: "classify"})
	r.RunFinished(ctx, "completed", 1, time.Second)
}
