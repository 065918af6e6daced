package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/opsquery/domain/telemetry"
)

// otelTracer records run, node, gateway and tool spans through OpenTelemetry.
type otelTracer struct {
	tracer trace.Tracer
}

func (t otelTracer) StartSpan(ctx context.Context, name string, opts ...telemetry.SpanOption) (context.Context, telemetry.Span) {
	cfg := telemetry.NewSpanConfig(opts...)

	kind := trace.SpanKindInternal
	switch cfg.Kind {
	case telemetry.SpanKindClient:
		kind = trace.SpanKindClient
	case telemetry.SpanKindServer:
		kind = trace.SpanKindServer
	}

	ctx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(keyValues(cfg.Attributes)...),
	)
	return ctx, otelSpan{span}
}

type otelSpan struct {
	trace.Span
}

func (s otelSpan) SetAttributes(attrs ...telemetry.Attribute) {
	s.Span.SetAttributes(keyValues(attrs)...)
}

func (s otelSpan) RecordError(err error) {
	if err != nil {
		s.Span.RecordError(err)
	}
}

func (s otelSpan) SetStatus(code telemetry.StatusCode, description string) {
	switch code {
	case telemetry.StatusCodeOK:
		s.Span.SetStatus(codes.Ok, "")
	case telemetry.StatusCodeError:
		s.Span.SetStatus(codes.Error, description)
	}
}

func (s otelSpan) AddEvent(name string, attrs ...telemetry.Attribute) {
	s.Span.AddEvent(name, trace.WithAttributes(keyValues(attrs)...))
}

func (s otelSpan) End() {
	s.Span.End()
}

var (
	_ telemetry.Tracer = otelTracer{}
	_ telemetry.Span   = otelSpan{}
)

// keyValues converts attributes. Durations are recorded in milliseconds and
// values of other types by their fmt representation.
func keyValues(attrs []telemetry.Attribute) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		switch v := a.Value.(type) {
		case string:
			out = append(out, attribute.String(a.Key, v))
		case int:
			out = append(out, attribute.Int(a.Key, v))
		case int64:
			out = append(out, attribute.Int64(a.Key, v))
		case float64:
			out = append(out, attribute.Float64(a.Key, v))
		case bool:
			out = append(out, attribute.Bool(a.Key, v))
		case []string:
			out = append(out, attribute.StringSlice(a.Key, v))
		case time.Duration:
			out = append(out, attribute.Int64(a.Key, v.Milliseconds()))
		case nil:
		default:
			out = append(out, attribute.String(a.Key, fmt.Sprint(v)))
		}
	}
	return out
}
