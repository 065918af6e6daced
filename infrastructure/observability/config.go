// Package observability wires OpenTelemetry tracing and the run metrics
// recorders for the opsquery service.
package observability

import (
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	domainconfig "github.com/felixgeelhaar/opsquery/domain/config"
)

// Config configures the observability infrastructure.
type Config struct {
	// ServiceName is the name of the service for telemetry.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// Tracing configures span export.
	Tracing TracingConfig

	// Metrics configures the run recorders.
	Metrics MetricsConfig
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled bool

	// Exporter specifies the span exporter type.
	Exporter ExporterType

	// Endpoint is the OTLP endpoint (e.g., "localhost:4317").
	Endpoint string

	// Insecure disables TLS for the exporter connection.
	Insecure bool

	// SampleRate is the sampling rate (0.0-1.0).
	SampleRate float64

	// Output receives stdout spans. Nil means os.Stderr.
	Output io.Writer

	BatchTimeout       time.Duration
	MaxExportBatchSize int

	// exporter overrides Exporter, mainly for tests.
	exporter sdktrace.SpanExporter
}

// MetricsConfig configures the run recorders.
type MetricsConfig struct {
	Enabled bool

	// Registry receives the Prometheus collectors. Nil creates a new one.
	Registry *prometheus.Registry

	// MeterProvider feeds the OpenTelemetry instruments. Nil uses the
	// global provider.
	MeterProvider metric.MeterProvider
}

// ExporterType specifies the span exporter.
type ExporterType string

const (
	// ExporterOTLP exports to an OTLP gRPC endpoint.
	ExporterOTLP ExporterType = "otlp"

	// ExporterStdout writes spans as JSON.
	ExporterStdout ExporterType = "stdout"

	// ExporterNoop records nothing.
	ExporterNoop ExporterType = "noop"
)

// DefaultConfig returns a configuration with tracing and metrics disabled.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "opsquery",
		ServiceVersion: "dev",
		Tracing: TracingConfig{
			Exporter:           ExporterNoop,
			SampleRate:         1.0,
			BatchTimeout:       5 * time.Second,
			MaxExportBatchSize: 512,
		},
	}
}

// FromSettings maps the service configuration onto provider options.
// Tracing goes to stdout unless an OTLP endpoint is set.
func FromSettings(s domainconfig.ObservabilityConfig) []Option {
	var opts []Option
	if s.ServiceName != "" {
		opts = append(opts, WithServiceName(s.ServiceName))
	}
	if s.TracingEnabled {
		if s.OTLPEndpoint != "" {
			opts = append(opts, WithTracing(ExporterOTLP, s.OTLPEndpoint))
		} else {
			opts = append(opts, WithStdoutTracing(nil))
		}
		if s.Insecure {
			opts = append(opts, WithTracingInsecure())
		}
		opts = append(opts, WithSampleRate(s.SampleRate))
	}
	if s.MetricsEnabled {
		opts = append(opts, WithMetrics(nil))
	}
	return opts
}

// Option configures the observability infrastructure.
type Option func(*Config)

// WithServiceName sets the service name.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithServiceVersion sets the service version.
func WithServiceVersion(version string) Option {
	return func(c *Config) {
		c.ServiceVersion = version
	}
}

// WithTracing enables tracing with the specified exporter.
func WithTracing(exporter ExporterType, endpoint string) Option {
	return func(c *Config) {
		c.Tracing.Enabled = true
		c.Tracing.Exporter = exporter
		c.Tracing.Endpoint = endpoint
	}
}

// WithTracingInsecure disables TLS for tracing.
func WithTracingInsecure() Option {
	return func(c *Config) {
		c.Tracing.Insecure = true
	}
}

// WithSampleRate sets the trace sampling rate.
func WithSampleRate(rate float64) Option {
	return func(c *Config) {
		c.Tracing.SampleRate = rate
	}
}

// WithStdoutTracing writes spans to w, or os.Stderr when w is nil.
func WithStdoutTracing(w io.Writer) Option {
	return func(c *Config) {
		c.Tracing.Enabled = true
		c.Tracing.Exporter = ExporterStdout
		c.Tracing.Output = w
	}
}

// WithSpanExporter enables tracing with a caller-supplied exporter.
func WithSpanExporter(exp sdktrace.SpanExporter) Option {
	return func(c *Config) {
		c.Tracing.Enabled = true
		c.Tracing.exporter = exp
	}
}

// WithMetrics enables the run recorders on reg.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *Config) {
		c.Metrics.Enabled = true
		c.Metrics.Registry = reg
	}
}

// WithMeterProvider sets the provider behind the OpenTelemetry instruments.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Config) {
		c.Metrics.MeterProvider = mp
	}
}

func (c TracingConfig) output() io.Writer {
	if c.Output == nil {
		return os.Stderr
	}
	return c.Output
}
