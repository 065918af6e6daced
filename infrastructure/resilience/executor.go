// Package resilience provides resilient execution patterns using fortify.
package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/opsquery/domain/tool"
)

// Failure codes the executor assigns when a tool does not report its own.
const (
	FailureTimeout     = "timeout"
	FailureUnavailable = "unavailable"
	FailureExecution   = "execution_error"
)

// Executor provides resilient tool execution with bulkhead, timeout,
// circuit breaker and retry patterns.
// Each tool gets its own circuit breaker.
type Executor struct {
	bulkhead bulkhead.Bulkhead[tool.Result]
	retry    retry.Retry[tool.Result]
	timeout  time.Duration

	mu            sync.Mutex
	breakers      map[string]circuitbreaker.CircuitBreaker[tool.Result]
	breakerConfig circuitbreaker.Config
}

// ExecutorConfig configures the resilient executor.
type ExecutorConfig struct {
	// MaxConcurrent limits concurrent tool executions across runs.
	MaxConcurrent int

	// CircuitBreakerThreshold is the number of consecutive errors before opening.
	CircuitBreakerThreshold int

	// CircuitBreakerTimeout is how long the circuit stays open.
	CircuitBreakerTimeout time.Duration

	// RetryMaxAttempts is the maximum number of attempts for retryable tools.
	RetryMaxAttempts int

	// RetryInitialDelay is the initial delay between retries.
	RetryInitialDelay time.Duration

	// RetryBackoffMultiplier is the exponential backoff multiplier.
	RetryBackoffMultiplier float64

	// DefaultTimeout applies to tools without their own timeout annotation.
	DefaultTimeout time.Duration
}

// DefaultExecutorConfig returns a configuration with sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrent:           10,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		RetryMaxAttempts:        2,
		RetryInitialDelay:       50 * time.Millisecond,
		RetryBackoffMultiplier:  2.0,
		DefaultTimeout:          10 * time.Second,
	}
}

// NewExecutor creates a new resilient executor.
func NewExecutor(config ExecutorConfig) *Executor {
	// Ensure non-negative values for uint32 conversion (G115 fix)
	maxConcurrent := config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	threshold := config.CircuitBreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}
	attempts := config.RetryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	timeout := config.DefaultTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Executor{
		bulkhead: bulkhead.New[tool.Result](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
		}),
		breakers: make(map[string]circuitbreaker.CircuitBreaker[tool.Result]),
		breakerConfig: circuitbreaker.Config{
			MaxRequests: uint32(maxConcurrent), // #nosec G115 -- bounds checked above
			Interval:    config.CircuitBreakerTimeout,
			Timeout:     config.CircuitBreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounds checked above
			},
		},
		retry: retry.New[tool.Result](retry.Config{
			MaxAttempts:        attempts,
			InitialDelay:       config.RetryInitialDelay,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         config.RetryBackoffMultiplier,
			NonRetryableErrors: []error{context.DeadlineExceeded, context.Canceled},
		}),
		timeout: timeout,
	}
}

// NewDefaultExecutor creates an executor with default configuration.
func NewDefaultExecutor() *Executor {
	return NewExecutor(DefaultExecutorConfig())
}

// Timeout returns the deadline applied to a single execution of t.
func (e *Executor) Timeout(t tool.Tool) time.Duration {
	if d := t.Annotations().Timeout; d > 0 {
		return d
	}
	return e.timeout
}

// Execute runs a tool with resilience patterns applied.
// Composition order: Bulkhead → Timeout → Circuit Breaker → Retry (for idempotent)
//
// Every outcome other than cancellation of ctx is reported as a Result;
// timeouts, open circuits and handler errors become typed failures. The
// returned error is non-nil only when ctx itself is done.
func (e *Executor) Execute(ctx context.Context, t tool.Tool, input json.RawMessage) (tool.Result, error) {
	start := time.Now()
	timeout := e.Timeout(t)

	result, err := e.bulkhead.Execute(ctx, func(ctx context.Context) (tool.Result, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return e.breaker(t.Name()).Execute(ctx, func(ctx context.Context) (tool.Result, error) {
			if t.Annotations().CanRetry() {
				return e.retry.Do(ctx, func(ctx context.Context) (tool.Result, error) {
					return run(ctx, t, input)
				})
			}
			return run(ctx, t, input)
		})
	})

	if ctxErr := ctx.Err(); ctxErr != nil {
		return tool.Result{}, ctxErr
	}

	var herr *handlerError
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		result = tool.Fail(FailureTimeout, "%s did not finish within %s", t.Name(), timeout)
	case errors.As(err, &herr):
		result = tool.Fail(FailureExecution, "%v", herr.err)
	default:
		result = tool.Fail(FailureUnavailable, "%s is temporarily unavailable: %v", t.Name(), err)
	}
	if result.Failed() {
		result.Metadata = nil
	}
	result.Duration = time.Since(start)
	return result, nil
}

// handlerError marks errors returned by the tool itself, as opposed to
// rejections by the bulkhead or circuit breaker.
type handlerError struct {
	err error
}

func (e *handlerError) Error() string { return e.err.Error() }
func (e *handlerError) Unwrap() error { return e.err }

func run(ctx context.Context, t tool.Tool, input json.RawMessage) (tool.Result, error) {
	res, err := t.Execute(ctx, input)
	if err != nil {
		return res, &handlerError{err: err}
	}
	return res, nil
}

func (e *Executor) breaker(name string) circuitbreaker.CircuitBreaker[tool.Result] {
	e.mu.Lock()
	defer e.mu.Unlock()
	cb, ok := e.breakers[name]
	if !ok {
		cb = circuitbreaker.New[tool.Result](e.breakerConfig)
		e.breakers[name] = cb
	}
	return cb
}

// CircuitBreakerState returns the current state of the named tool's circuit breaker.
func (e *Executor) CircuitBreakerState(name string) circuitbreaker.State {
	return e.breaker(name).State()
}
