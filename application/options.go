package application

import (
	"time"

	"github.com/felixgeelhaar/opsquery/domain/agent"
	"github.com/felixgeelhaar/opsquery/domain/policy"
	"github.com/felixgeelhaar/opsquery/domain/telemetry"
	"github.com/felixgeelhaar/opsquery/domain/tool"
	"github.com/felixgeelhaar/opsquery/infrastructure/gateway"
	"github.com/felixgeelhaar/opsquery/infrastructure/resilience"
)

// Option configures the orchestrator.
type Option func(*Config)

// WithGateway sets the completion gateway.
func WithGateway(g gateway.Gateway) Option {
	return func(c *Config) {
		c.Gateway = g
	}
}

// WithRegistry sets the tool registry.
func WithRegistry(r tool.Registry) Option {
	return func(c *Config) {
		c.Registry = r
	}
}

// WithExecutor sets the resilient tool executor.
func WithExecutor(e *resilience.Executor) Option {
	return func(c *Config) {
		c.Executor = e
	}
}

// WithGatewayGuard bounds every completion call with a timeout and breaker.
func WithGatewayGuard(g resilience.GuardConfig) Option {
	return func(c *Config) {
		c.Guard = &g
	}
}

// WithLoopPolicy sets the loop bounds.
func WithLoopPolicy(p policy.LoopPolicy) Option {
	return func(c *Config) {
		c.Loop = p
	}
}

// WithMaxIterations sets the iteration budget, keeping the other bounds.
func WithMaxIterations(n int) Option {
	return func(c *Config) {
		if c.Loop == (policy.LoopPolicy{}) {
			c.Loop = policy.DefaultLoopPolicy()
		}
		c.Loop.MaxIterations = n
	}
}

// WithFields sets the metadata fields runs may record.
func WithFields(f agent.FieldSet) Option {
	return func(c *Config) {
		c.Fields = f
	}
}

// WithLocation sets the default timezone of a run.
func WithLocation(loc *time.Location) Option {
	return func(c *Config) {
		c.Location = loc
	}
}

// WithClock sets the clock used for timestamps and reference times.
func WithClock(clock func() time.Time) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithIDGenerator sets the run ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(c *Config) {
		c.NewID = fn
	}
}

// WithSampling sets the temperature and token limit sent with every request.
func WithSampling(temperature float64, maxTokens int) Option {
	return func(c *Config) {
		c.Temperature = temperature
		c.MaxTokens = maxTokens
	}
}

// WithTracer sets the tracer.
func WithTracer(t telemetry.Tracer) Option {
	return func(c *Config) {
		c.Tracer = t
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r telemetry.Recorder) Option {
	return func(c *Config) {
		c.Recorder = r
	}
}

// NewOrchestratorWithOptions creates an orchestrator using functional options.
func NewOrchestratorWithOptions(opts ...Option) (*Orchestrator, error) {
	var config Config
	for _, opt := range opts {
		opt(&config)
	}
	return NewOrchestrator(config)
}

// RunOption configures a single run.
type RunOption func(*runConfig)

type runConfig struct {
	observer      func(agent.Turn)
	referenceTime time.Time
	location      *time.Location
}

// WithObserver receives every turn as it is appended.
func WithObserver(fn func(agent.Turn)) RunOption {
	return func(c *runConfig) {
		c.observer = fn
	}
}

// WithReferenceTime anchors relative time expressions. The zero time means
// the moment the run starts.
func WithReferenceTime(t time.Time) RunOption {
	return func(c *runConfig) {
		c.referenceTime = t
	}
}

// WithRunLocation overrides the orchestrator's timezone for one run.
func WithRunLocation(loc *time.Location) RunOption {
	return func(c *runConfig) {
		if loc != nil {
			c.location = loc
		}
	}
}
