// Package telemetry records run measurements as OpenTelemetry metrics.
package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/felixgeelhaar/opsquery/domain/telemetry"
)

// Instrument names.
const (
	MetricRuns             = "opsquery.runs"
	MetricRunDuration      = "opsquery.run.duration"
	MetricRunIterations    = "opsquery.run.iterations"
	MetricActiveRuns       = "opsquery.runs.active"
	MetricToolCalls        = "opsquery.tool.calls"
	MetricToolDuration     = "opsquery.tool.duration"
	MetricInvalidToolCalls = "opsquery.tool.invalid_calls"
	MetricGatewayCalls     = "opsquery.gateway.calls"
	MetricGatewayDuration  = "opsquery.gateway.duration"
)

// MetricsProvider implements telemetry.Recorder with OpenTelemetry instruments.
type MetricsProvider struct {
	runs             metric.Int64Counter
	runDuration      metric.Float64Histogram
	runIterations    metric.Int64Histogram
	activeRuns       metric.Int64UpDownCounter
	toolCalls        metric.Int64Counter
	toolDuration     metric.Float64Histogram
	invalidToolCalls metric.Int64Counter
	gatewayCalls     metric.Int64Counter
	gatewayDuration  metric.Float64Histogram

	initErr error
}

var _ domain.Recorder = (*MetricsProvider)(nil)

// MetricsConfig configures the metrics provider.
type MetricsConfig struct {
	// MeterName is the instrumentation scope.
	MeterName string
	// MeterVersion is the instrumentation version.
	MeterVersion string
	// MeterProvider supplies the meter. Nil uses the global provider.
	MeterProvider metric.MeterProvider
}

// DefaultMetricsConfig returns a default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterName:    "github.com/felixgeelhaar/opsquery",
		MeterVersion: "1.0.0",
	}
}

// NewMetricsProvider creates a new metrics provider. Instrument creation
// errors are reported by Error; a provider with errors still records.
func NewMetricsProvider(config MetricsConfig) *MetricsProvider {
	if config.MeterName == "" {
		config.MeterName = DefaultMetricsConfig().MeterName
	}
	provider := config.MeterProvider
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(config.MeterName, metric.WithInstrumentationVersion(config.MeterVersion))

	mp := &MetricsProvider{}
	mp.initErr = mp.initInstruments(meter)
	return mp
}

func (mp *MetricsProvider) initInstruments(meter metric.Meter) error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	var err error

	mp.runs, err = meter.Int64Counter(MetricRuns,
		metric.WithDescription("Finished runs by final status"),
		metric.WithUnit("{run}"))
	collect(err)

	mp.runDuration, err = meter.Float64Histogram(MetricRunDuration,
		metric.WithDescription("Wall time of a run"),
		metric.WithUnit("ms"))
	collect(err)

	mp.runIterations, err = meter.Int64Histogram(MetricRunIterations,
		metric.WithDescription("Loop iterations consumed by a run"),
		metric.WithUnit("{iteration}"))
	collect(err)

	mp.activeRuns, err = meter.Int64UpDownCounter(MetricActiveRuns,
		metric.WithDescription("Runs in progress"),
		metric.WithUnit("{run}"))
	collect(err)

	mp.toolCalls, err = meter.Int64Counter(MetricToolCalls,
		metric.WithDescription("Tool calls by tool and validation outcome"),
		metric.WithUnit("{call}"))
	collect(err)

	mp.toolDuration, err = meter.Float64Histogram(MetricToolDuration,
		metric.WithDescription("Tool execution time"),
		metric.WithUnit("ms"))
	collect(err)

	mp.invalidToolCalls, err = meter.Int64Counter(MetricInvalidToolCalls,
		metric.WithDescription("Tool calls refused before execution"),
		metric.WithUnit("{call}"))
	collect(err)

	mp.gatewayCalls, err = meter.Int64Counter(MetricGatewayCalls,
		metric.WithDescription("Completion calls by purpose and outcome"),
		metric.WithUnit("{call}"))
	collect(err)

	mp.gatewayDuration, err = meter.Float64Histogram(MetricGatewayDuration,
		metric.WithDescription("Completion call latency"),
		metric.WithUnit("ms"))
	collect(err)

	return errors.Join(errs...)
}

// Error returns any error from instrument creation.
func (mp *MetricsProvider) Error() error {
	return mp.initErr
}

// RunStarted implements telemetry.Recorder.
func (mp *MetricsProvider) RunStarted(ctx context.Context) {
	if mp.activeRuns != nil {
		mp.activeRuns.Add(ctx, 1)
	}
}

// RunFinished implements telemetry.Recorder.
func (mp *MetricsProvider) RunFinished(ctx context.Context, status string, iterations int, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String(domain.AttrStatus, status))
	if mp.activeRuns != nil {
		mp.activeRuns.Add(ctx, -1)
	}
	if mp.runs != nil {
		mp.runs.Add(ctx, 1, attrs)
	}
	if mp.runDuration != nil {
		mp.runDuration.Record(ctx, milliseconds(d), attrs)
	}
	if mp.runIterations != nil {
		mp.runIterations.Record(ctx, int64(iterations), attrs)
	}
}

// ToolCalled implements telemetry.Recorder.
func (mp *MetricsProvider) ToolCalled(ctx context.Context, call domain.ToolCall) {
	attrs := metric.WithAttributes(
		attribute.String(domain.AttrTool, call.Tool),
		attribute.String(domain.AttrValidation, call.Validation),
		attribute.String(domain.AttrCode, call.Code),
	)
	if mp.toolCalls != nil {
		mp.toolCalls.Add(ctx, 1, attrs)
	}
	if call.Validation != "valid" {
		if mp.invalidToolCalls != nil {
			mp.invalidToolCalls.Add(ctx, 1, metric.WithAttributes(attribute.String(domain.AttrTool, call.Tool)))
		}
		return
	}
	if mp.toolDuration != nil {
		mp.toolDuration.Record(ctx, milliseconds(call.Duration),
			metric.WithAttributes(attribute.String(domain.AttrTool, call.Tool)))
	}
}

// GatewayCalled implements telemetry.Recorder.
func (mp *MetricsProvider) GatewayCalled(ctx context.Context, call domain.GatewayCall) {
	attrs := metric.WithAttributes(
		attribute.String(domain.AttrPurpose, call.Purpose),
		attribute.String(domain.AttrProvider, call.Provider),
		attribute.String(domain.AttrCallKind, call.Kind),
	)
	if mp.gatewayCalls != nil {
		mp.gatewayCalls.Add(ctx, 1, attrs)
	}
	if mp.gatewayDuration != nil {
		mp.gatewayDuration.Record(ctx, milliseconds(call.Duration), attrs)
	}
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
