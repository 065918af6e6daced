package tool

import (
	"context"
	"time"
)

// Clock carries the run's reference instant and default location to tools,
// so time-relative tools stay deterministic for a given run.
type Clock struct {
	Reference time.Time
	Location  *time.Location
}

type clockKey struct{}

// WithClock returns a context carrying c.
func WithClock(ctx context.Context, c Clock) context.Context {
	return context.WithValue(ctx, clockKey{}, c)
}

// ClockFrom returns the clock carried by ctx.
func ClockFrom(ctx context.Context) (Clock, bool) {
	c, ok := ctx.Value(clockKey{}).(Clock)
	return c, ok
}
