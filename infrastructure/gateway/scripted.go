package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Step is one scripted gateway reply.
type Step struct {
	// Response is returned when Err is nil.
	Response Response

	// Err is returned instead of a response.
	Err error

	// Delay holds the reply back, honoring cancellation.
	Delay time.Duration
}

// Reply is a scripted successful response.
func Reply(resp Response) Step {
	return Step{Response: resp}
}

// Structured is a scripted structured response carrying v as JSON.
func Structured(v any) Step {
	data, err := json.Marshal(v)
	if err != nil {
		return Step{Err: &Error{Kind: ErrMalformed, Provider: "scripted", Err: err}}
	}
	return Step{Response: Response{Kind: KindStructured, Object: data}}
}

// Text is a scripted text response.
func Text(s string) Step {
	return Step{Response: Response{Kind: KindText, Text: s}}
}

// Call is a scripted tool call response with raw JSON arguments.
func Call(id, name, args string) Step {
	return Step{Response: Response{
		Kind:     KindToolCall,
		ToolCall: &ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)},
	}}
}

// Fail is a scripted gateway failure of kind k.
func Fail(k ErrorKind) Step {
	return Step{Err: &Error{Kind: k, Provider: "scripted", Err: fmt.Errorf("scripted %s failure", k)}}
}

// ScriptedGateway replays predefined steps per purpose for deterministic
// testing and dry runs. Each purpose has its own queue; once a queue is
// drained the purpose's fallback is used, if any.
type ScriptedGateway struct {
	mu        sync.Mutex
	steps     map[Purpose][]Step
	fallbacks map[Purpose]Step
	requests  []Request
}

// NewScriptedGateway creates an empty scripted gateway.
func NewScriptedGateway() *ScriptedGateway {
	return &ScriptedGateway{
		steps:     make(map[Purpose][]Step),
		fallbacks: make(map[Purpose]Step),
	}
}

// On queues steps for purpose p.
func (g *ScriptedGateway) On(p Purpose, steps ...Step) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.steps[p] = append(g.steps[p], steps...)
	return g
}

// Always sets the step used for purpose p once its queue is drained.
func (g *ScriptedGateway) Always(p Purpose, step Step) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fallbacks[p] = step
	return g
}

// Name returns the provider name.
func (g *ScriptedGateway) Name() string {
	return "scripted"
}

// Complete returns the next scripted step for the request's purpose.
func (g *ScriptedGateway) Complete(ctx context.Context, req Request) (Response, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	step, ok := g.next(req.Purpose)
	g.mu.Unlock()

	if !ok {
		return Response{}, &Error{Kind: ErrUnavailable, Provider: g.Name(),
			Err: fmt.Errorf("%w for purpose %s", errScriptExhausted, req.Purpose)}
	}

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Response{}, transportError(g.Name(), ctx.Err())
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Response{}, transportError(g.Name(), err)
	}

	if step.Err != nil {
		return Response{}, step.Err
	}
	return step.Response, nil
}

func (g *ScriptedGateway) next(p Purpose) (Step, bool) {
	if queue := g.steps[p]; len(queue) > 0 {
		g.steps[p] = queue[1:]
		return queue[0], true
	}
	step, ok := g.fallbacks[p]
	return step, ok
}

// Requests returns every request received so far.
func (g *ScriptedGateway) Requests() []Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Request, len(g.requests))
	copy(out, g.requests)
	return out
}

// Calls returns how many requests were received for purpose p.
func (g *ScriptedGateway) Calls(p Purpose) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, r := range g.requests {
		if r.Purpose == p {
			n++
		}
	}
	return n
}

// Remaining reports how many queued steps have not been consumed.
func (g *ScriptedGateway) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, q := range g.steps {
		n += len(q)
	}
	return n
}
