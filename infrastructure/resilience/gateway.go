package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"

	"github.com/felixgeelhaar/opsquery/infrastructure/gateway"
)

// GuardConfig configures a guarded gateway.
type GuardConfig struct {
	// Timeout bounds every completion call.
	Timeout time.Duration

	// BreakerThreshold is the number of consecutive failures before the
	// circuit opens. Zero disables the breaker.
	BreakerThreshold int

	// BreakerTimeout is how long the circuit stays open.
	BreakerTimeout time.Duration
}

// DefaultGuardConfig returns a configuration with sensible defaults.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:          60 * time.Second,
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// GuardedGateway bounds every call of the wrapped gateway with a timeout and
// a circuit breaker. All failures it returns are *gateway.Error.
type GuardedGateway struct {
	next    gateway.Gateway
	timeout time.Duration
	breaker circuitbreaker.CircuitBreaker[gateway.Response]
}

var _ gateway.Gateway = (*GuardedGateway)(nil)

// Guard wraps g with the protections in config.
func Guard(g gateway.Gateway, config GuardConfig) *GuardedGateway {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultGuardConfig().Timeout
	}

	guarded := &GuardedGateway{next: g, timeout: timeout}
	if config.BreakerThreshold > 0 {
		threshold := uint32(config.BreakerThreshold) // #nosec G115 -- checked positive above
		guarded.breaker = circuitbreaker.New[gateway.Response](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    config.BreakerTimeout,
			Timeout:     config.BreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		})
	}
	return guarded
}

// Name returns the wrapped provider name.
func (g *GuardedGateway) Name() string {
	return g.next.Name()
}

// Complete implements gateway.Gateway.
func (g *GuardedGateway) Complete(ctx context.Context, req gateway.Request) (gateway.Response, error) {
	if err := ctx.Err(); err != nil {
		return gateway.Response{}, &gateway.Error{Kind: gateway.ErrTransport, Provider: g.Name(), Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	call := func(ctx context.Context) (gateway.Response, error) {
		return g.next.Complete(ctx, req)
	}

	var resp gateway.Response
	var err error
	if g.breaker != nil {
		resp, err = g.breaker.Execute(ctx, call)
	} else {
		resp, err = call(ctx)
	}
	if err == nil {
		return resp, nil
	}

	var gerr *gateway.Error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return gateway.Response{}, &gateway.Error{Kind: gateway.ErrTimeout, Provider: g.Name(), Err: err}
	case errors.As(err, &gerr):
		return gateway.Response{}, err
	default:
		// Only the breaker produces untyped errors here.
		return gateway.Response{}, &gateway.Error{Kind: gateway.ErrUnavailable, Provider: g.Name(), Err: err}
	}
}

// BreakerState returns the state of the circuit breaker. ok is false when
// the breaker is disabled.
func (g *GuardedGateway) BreakerState() (state circuitbreaker.State, ok bool) {
	if g.breaker == nil {
		return state, false
	}
	return g.breaker.State(), true
}
