package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	domain "github.com/felixgeelhaar/opsquery/domain/telemetry"
)

// PrometheusRecorder implements telemetry.Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	runIterations   prometheus.Histogram
	activeRuns      prometheus.Gauge
	toolCallsTotal  *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	gatewayTotal    *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
}

var _ domain.Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder registers the opsquery collectors on reg.
// A nil reg uses the default registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opsquery_runs_total",
			Help: "Finished runs by final status",
		}, []string{"status"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opsquery_run_duration_seconds",
			Help:    "Run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"status"}),
		runIterations: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "opsquery_run_iterations",
			Help:    "Loop iterations consumed by a run",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "opsquery_runs_active",
			Help: "Runs in progress",
		}),
		toolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opsquery_tool_calls_total",
			Help: "Tool calls by tool, validation outcome and failure code",
		}, []string{"tool", "validation", "code"}),
		toolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opsquery_tool_duration_seconds",
			Help:    "Tool execution time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"tool"}),
		gatewayTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opsquery_gateway_calls_total",
			Help: "Completion calls by purpose, provider and outcome",
		}, []string{"purpose", "provider", "kind"}),
		gatewayDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opsquery_gateway_duration_seconds",
			Help:    "Completion call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"purpose"}),
	}
}

// RunStarted implements telemetry.Recorder.
func (p *PrometheusRecorder) RunStarted(context.Context) {
	p.activeRuns.Inc()
}

// RunFinished implements telemetry.Recorder.
func (p *PrometheusRecorder) RunFinished(_ context.Context, status string, iterations int, d time.Duration) {
	p.activeRuns.Dec()
	p.runsTotal.WithLabelValues(status).Inc()
	p.runDuration.WithLabelValues(status).Observe(d.Seconds())
	p.runIterations.Observe(float64(iterations))
}

// ToolCalled implements telemetry.Recorder.
func (p *PrometheusRecorder) ToolCalled(_ context.Context, call domain.ToolCall) {
	p.toolCallsTotal.WithLabelValues(call.Tool, call.Validation, call.Code).Inc()
	if call.Validation == "valid" {
		p.toolDuration.WithLabelValues(call.Tool).Observe(call.Duration.Seconds())
	}
}

// GatewayCalled implements telemetry.Recorder.
func (p *PrometheusRecorder) GatewayCalled(_ context.Context, call domain.GatewayCall) {
	p.gatewayTotal.WithLabelValues(call.Purpose, call.Provider, call.Kind).Inc()
	p.gatewayDuration.WithLabelValues(call.Purpose).Observe(call.Duration.Seconds())
}

// Recorders fans measurements out to several recorders.
type Recorders []domain.Recorder

var _ domain.Recorder = Recorders(nil)

// RunStarted implements telemetry.Recorder.
func (rs Recorders) RunStarted(ctx context.Context) {
	for _, r := range rs {
		r.RunStarted(ctx)
	}
}

// RunFinished implements telemetry.Recorder.
func (rs Recorders) RunFinished(ctx context.Context, status string, iterations int, d time.Duration) {
	for _, r := range rs {
		r.RunFinished(ctx, status, iterations, d)
	}
}

// ToolCalled implements telemetry.Recorder.
func (rs Recorders) ToolCalled(ctx context.Context, call domain.ToolCall) {
	for _, r := range rs {
		r.ToolCalled(ctx, call)
	}
}

// GatewayCalled implements telemetry.Recorder.
func (rs Recorders) GatewayCalled(ctx context.Context, call domain.GatewayCall) {
	for _, r := range rs {
		r.GatewayCalled(ctx, call)
	}
}
