// Package telemetry defines the tracing and run-metrics ports used by the
// query workflow.
package telemetry

import (
	"context"
	"time"
)

// Span names emitted by a run.
const (
	SpanRun     = "opsquery.run"
	SpanNode    = "opsquery.node"
	SpanGateway = "opsquery.gateway"
	SpanTool    = "opsquery.tool"
)

// Attribute keys shared by spans and metrics.
const (
	AttrRunID      = "opsquery.run.id"
	AttrNode       = "opsquery.node"
	AttrStatus     = "opsquery.run.status"
	AttrIterations = "opsquery.run.iterations"
	AttrTool       = "opsquery.tool.name"
	AttrValidation = "opsquery.tool.validation"
	AttrCode       = "opsquery.error.code"
	AttrPurpose    = "opsquery.gateway.purpose"
	AttrProvider   = "opsquery.gateway.provider"
	AttrCallKind   = "opsquery.gateway.kind"
)

// Tracer creates spans.
type Tracer interface {
	// StartSpan starts a new span and returns a context carrying it.
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)
}

// Span represents a unit of work in a trace.
type Span interface {
	End()
	SetAttributes(attrs ...Attribute)
	RecordError(err error)
	SetStatus(code StatusCode, description string)
	AddEvent(name string, attrs ...Attribute)
}

// SpanOption configures a span.
type SpanOption interface {
	ApplySpan(*SpanConfig)
}

// SpanConfig holds span configuration.
type SpanConfig struct {
	Attributes []Attribute
	Kind       SpanKind
}

// WithAttributes sets span attributes at creation.
func WithAttributes(attrs ...Attribute) SpanOption {
	return SpanOptionFunc(func(c *SpanConfig) {
		c.Attributes = append(c.Attributes, attrs...)
	})
}

// WithSpanKind sets the span kind.
func WithSpanKind(kind SpanKind) SpanOption {
	return SpanOptionFunc(func(c *SpanConfig) {
		c.Kind = kind
	})
}

// SpanOptionFunc is a function that implements SpanOption.
type SpanOptionFunc func(*SpanConfig)

// ApplySpan implements SpanOption.
func (f SpanOptionFunc) ApplySpan(c *SpanConfig) { f(c) }

// NewSpanConfig applies opts to an empty configuration.
func NewSpanConfig(opts ...SpanOption) SpanConfig {
	var cfg SpanConfig
	for _, opt := range opts {
		opt.ApplySpan(&cfg)
	}
	return cfg
}

// SpanKind represents the role of a span.
type SpanKind int

const (
	SpanKindInternal SpanKind = iota
	SpanKindServer
	SpanKindClient
)

// StatusCode represents the status of a span.
type StatusCode int

const (
	StatusCodeUnset StatusCode = iota
	StatusCodeOK
	StatusCodeError
)

// Attribute is a key-value pair.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int creates an integer attribute.
func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// ToolCall describes one executed or refused tool call.
type ToolCall struct {
	Tool       string
	Validation string
	// Code is the failure code, empty on success.
	Code     string
	Duration time.Duration
}

// GatewayCall describes one completion call.
type GatewayCall struct {
	Purpose  string
	Provider string
	// Kind is structured, call, text or failure.
	Kind     string
	Duration time.Duration
}

// Recorder receives run measurements.
type Recorder interface {
	RunStarted(ctx context.Context)
	RunFinished(ctx context.Context, status string, iterations int, d time.Duration)
	ToolCalled(ctx context.Context, call ToolCall)
	GatewayCalled(ctx context.Context, call GatewayCall)
}

// NopRecorder discards every measurement.
type NopRecorder struct{}

func (NopRecorder) RunStarted(context.Context) {}
func (NopRecorder) RunFinished(context.Context, string, int, time.Duration) {}
func (NopRecorder) ToolCalled(context.Context, ToolCall) {}
func (NopRecorder) GatewayCalled(context.Context, GatewayCall) {}

// NopTracer creates spans that record nothing.
type NopTracer struct{}

// StartSpan implements Tracer.
func (NopTracer) StartSpan(ctx context.Context, _ string, _ ...SpanOption) (context.Context, Span) {
	return ctx, nopSpan{}
}

type nopSpan struct{}

func (nopSpan) End() {}
func (nopSpan) SetAttributes(...Attribute) {}
func (nopSpan) RecordError(error) {}
func (nopSpan) SetStatus(StatusCode, string) {}
func (nopSpan) AddEvent(string, ...Attribute) {}
