package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/felixgeelhaar/opsquery/domain/telemetry"
	infratelemetry "github.com/felixgeelhaar/opsquery/infrastructure/telemetry"
)

// Provider owns the tracer and recorders of one process.
type Provider struct {
	config         Config
	tracerProvider *sdktrace.TracerProvider
	tracer         telemetry.Tracer
	recorder       telemetry.Recorder
	registry       *prometheus.Registry
	shutdownFuncs  []func(context.Context) error
}

// New creates a new observability provider.
func New(opts ...Option) (*Provider, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Provider{
		config:   cfg,
		tracer:   telemetry.NopTracer{},
		recorder: telemetry.NopRecorder{},
	}

	if cfg.Tracing.Enabled {
		if err := p.setupTracing(); err != nil {
			return nil, err
		}
	}
	if cfg.Metrics.Enabled {
		if err := p.setupMetrics(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Provider) setupTracing() error {
	ctx := context.Background()

	exporter := p.config.Tracing.exporter
	if exporter == nil {
		switch p.config.Tracing.Exporter {
		case ExporterOTLP:
			opts := []otlptracegrpc.Option{
				otlptracegrpc.WithEndpoint(p.config.Tracing.Endpoint),
			}
			if p.config.Tracing.Insecure {
				opts = append(opts,
					otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
					otlptracegrpc.WithInsecure(),
				)
			}
			exp, err := otlptracegrpc.New(ctx, opts...)
			if err != nil {
				return fmt.Errorf("%w: %v", telemetry.ErrExporterFailed, err)
			}
			exporter = exp

		case ExporterStdout:
			exp, err := stdouttrace.New(stdouttrace.WithWriter(p.config.Tracing.output()))
			if err != nil {
				return fmt.Errorf("%w: %v", telemetry.ErrExporterFailed, err)
			}
			exporter = exp

		case ExporterNoop:
			return nil

		default:
			return fmt.Errorf("%w: unknown exporter %q", telemetry.ErrExporterFailed, p.config.Tracing.Exporter)
		}
	}

	// No merge with resource.Default() to avoid schema URL conflicts.
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(p.config.ServiceName),
		semconv.ServiceVersion(p.config.ServiceVersion),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(p.config.Tracing.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(p.config.Tracing.MaxExportBatchSize),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(p.config.Tracing.SampleRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p.tracerProvider = tp
	p.tracer = otelTracer{tracer: tp.Tracer(p.config.ServiceName)}
	p.shutdownFuncs = append(p.shutdownFuncs, tp.Shutdown)
	return nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

func (p *Provider) setupMetrics() error {
	reg := p.config.Metrics.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	otelMetrics := infratelemetry.NewMetricsProvider(infratelemetry.MetricsConfig{
		MeterName:     "github.com/felixgeelhaar/opsquery",
		MeterVersion:  p.config.ServiceVersion,
		MeterProvider: p.config.Metrics.MeterProvider,
	})
	if err := otelMetrics.Error(); err != nil {
		return fmt.Errorf("creating instruments: %w", err)
	}

	p.registry = reg
	p.recorder = infratelemetry.Recorders{
		infratelemetry.NewPrometheusRecorder(reg),
		otelMetrics,
	}
	return nil
}

// Tracer returns the tracer.
func (p *Provider) Tracer() telemetry.Tracer {
	return p.tracer
}

// Recorder returns the run recorder.
func (p *Provider) Recorder() telemetry.Recorder {
	return p.recorder
}

// MetricsHandler serves the Prometheus registry, or nil when metrics are
// disabled.
func (p *Provider) MetricsHandler() http.Handler {
	if p.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// ForceFlush exports buffered spans without shutting down.
func (p *Provider) ForceFlush(ctx context.Context) error {
	if p.tracerProvider == nil {
		return nil
	}
	return p.tracerProvider.ForceFlush(ctx)
}

// Shutdown flushes pending spans and stops the exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdownFuncs {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", telemetry.ErrShutdownFailed, errors.Join(errs...))
	}
	return nil
}

// NewNoopProvider creates a provider that records nothing.
func NewNoopProvider() *Provider {
	return &Provider{
		config:   DefaultConfig(),
		tracer:   telemetry.NopTracer{},
		recorder: telemetry.NopRecorder{},
	}
}
