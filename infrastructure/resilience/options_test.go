package resilience

import (
	"testing"
	"time"
)

func TestOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		opt   Option
		check func(ExecutorConfig) bool
	}{
		{name: "max concurrent", opt: WithMaxConcurrent(3), check: func(c ExecutorConfig) bool { return c.MaxConcurrent == 3 }},
		{name: "breaker threshold", opt: WithCircuitBreakerThreshold(7), check: func(c ExecutorConfig) bool { return c.CircuitBreakerThreshold == 7 }},
		{name: "breaker timeout", opt: WithCircuitBreakerTimeout(time.Minute), check: func(c ExecutorConfig) bool { return c.CircuitBreakerTimeout == time.Minute }},
		{name: "retry attempts", opt: WithRetryAttempts(4), check: func(c ExecutorConfig) bool { return c.RetryMaxAttempts == 4 }},
		{name: "retry delay", opt: WithRetryDelay(time.Millisecond), check: func(c ExecutorConfig) bool { return c.RetryInitialDelay == time.Millisecond }},
		{name: "retry multiplier", opt: WithRetryMultiplier(1.5), check: func(c ExecutorConfig) bool { return c.RetryBackoffMultiplier == 1.5 }},
		{name: "timeout", opt: WithTimeout(2 * time.Second), check: func(c ExecutorConfig) bool { return c.DefaultTimeout == 2*time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			base := DefaultExecutorConfig()
			got := base.Apply(tt.opt)
			if !tt.check(got) {
				t.Errorf("Apply() = %+v", got)
			}
			if tt.check(base) {
				t.Error("Apply() modified the receiver")
			}
		})
	}
}

func TestNewExecutorWithOptions(t *testing.T) {
	t.Parallel()

	e := NewExecutorWithOptions(WithTimeout(3 * time.Second))
	if e.timeout != 3*time.Second {
		t.Errorf("timeout = %v, want 3s", e.timeout)
	}
}
