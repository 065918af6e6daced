// Package application runs operational queries through the classify, act,
// reflect and finalize nodes.
package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/opsquery/domain/agent"
	"github.com/felixgeelhaar/opsquery/domain/policy"
	"github.com/felixgeelhaar/opsquery/domain/telemetry"
	"github.com/felixgeelhaar/opsquery/domain/tool"
	"github.com/felixgeelhaar/opsquery/infrastructure/gateway"
	"github.com/felixgeelhaar/opsquery/infrastructure/logging"
	"github.com/felixgeelhaar/opsquery/infrastructure/resilience"
	"github.com/felixgeelhaar/opsquery/infrastructure/statemachine"
)

// Orchestrator owns the node graph for query runs. It is safe for
// concurrent use; each Run is sequential and owns its own state.
type Orchestrator struct {
	gateway      gateway.Gateway
	registry     tool.Registry
	declarations []tool.Declaration
	executor     *resilience.Executor
	loop         policy.LoopPolicy
	fields       agent.FieldSet
	location     *time.Location
	clock        func() time.Time
	newID        func() string
	temperature  float64
	maxTokens    int
	tracer       telemetry.Tracer
	recorder     telemetry.Recorder
}

// Config contains configuration for the orchestrator.
type Config struct {
	Gateway  gateway.Gateway
	Registry tool.Registry

	// Executor runs validated tool calls. Nil uses the default executor.
	Executor *resilience.Executor

	// Guard wraps Gateway with a timeout and circuit breaker when set.
	Guard *resilience.GuardConfig

	// Loop bounds the agent loop. Zero uses policy.DefaultLoopPolicy.
	Loop policy.LoopPolicy

	// Fields is the metadata a run may record. Empty uses the default
	// fields plus every field a registered tool declares.
	Fields agent.FieldSet

	// Location resolves relative time expressions. Nil means UTC.
	Location *time.Location

	Clock func() time.Time
	NewID func() string

	Temperature float64
	MaxTokens   int

	Tracer   telemetry.Tracer
	Recorder telemetry.Recorder
}

// NewOrchestrator creates an orchestrator with the given configuration.
func NewOrchestrator(config Config) (*Orchestrator, error) {
	if config.Gateway == nil {
		return nil, ErrNoGateway
	}
	if config.Registry == nil {
		return nil, ErrNoRegistry
	}

	o := &Orchestrator{
		gateway:      config.Gateway,
		registry:     config.Registry,
		declarations: tool.Declarations(config.Registry),
		executor:     config.Executor,
		loop:         config.Loop,
		fields:       config.Fields,
		location:     config.Location,
		clock:        config.Clock,
		newID:        config.NewID,
		temperature:  config.Temperature,
		maxTokens:    config.MaxTokens,
		tracer:       config.Tracer,
		recorder:     config.Recorder,
	}

	if config.Guard != nil {
		o.gateway = resilience.Guard(o.gateway, *config.Guard)
	}
	if o.executor == nil {
		o.executor = resilience.NewDefaultExecutor()
	}
	if o.loop == (policy.LoopPolicy{}) {
		o.loop = policy.DefaultLoopPolicy()
	}
	if err := o.loop.Validate(); err != nil {
		return nil, err
	}
	if o.fields.Len() == 0 {
		names := append(agent.DefaultFields(), tool.MetadataFields(config.Registry)...)
		o.fields = agent.NewFieldSet(names...)
	}
	if o.location == nil {
		o.location = time.UTC
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	if o.tracer == nil {
		o.tracer = telemetry.NopTracer{}
	}
	if o.recorder == nil {
		o.recorder = telemetry.NopRecorder{}
	}
	return o, nil
}

// Fields returns the metadata fields runs may record.
func (o *Orchestrator) Fields() agent.FieldSet { return o.fields }

// Registry returns the tool registry.
func (o *Orchestrator) Registry() tool.Registry { return o.registry }

// Run answers one query. The error is non-nil only for an empty query or
// a broken orchestration invariant; every other outcome, including gateway
// failures and cancellation, is reported in the FinalResult.
func (o *Orchestrator) Run(ctx context.Context, query string, opts ...RunOption) (agent.FinalResult, error) {
	rc := runConfig{location: o.location}
	for _, opt := range opts {
		opt(&rc)
	}

	state, err := agent.NewState(o.newID(), query,
		agent.WithMaxIterations(o.loop.MaxIterations),
		agent.WithFields(o.fields),
		agent.WithReferenceTime(rc.referenceTime),
		agent.WithClock(o.clock),
	)
	if err != nil {
		return agent.FinalResult{}, err
	}

	interp, err := statemachine.New(state)
	if err != nil {
		return agent.FinalResult{}, fmt.Errorf("%w: %v", agent.ErrInvariant, err)
	}

	r := &run{
		o:        o,
		state:    state,
		budget:   o.loop.NewRunBudget(),
		location: rc.location,
		observer: rc.observer,
	}

	ctx, span := o.tracer.StartSpan(ctx, telemetry.SpanRun,
		telemetry.WithAttributes(telemetry.String(telemetry.AttrRunID, state.ID())))
	defer span.End()

	o.recorder.RunStarted(ctx)
	logging.Info().
		Add(logging.RunID(state.ID())).
		Add(logging.Iteration(0, state.MaxIterations())).
		Msg("run started")

	interp.Start()
	defer interp.Stop()

	r.append(agent.Turn{Kind: agent.TurnQuery, Node: agent.NodeClassify, Content: query})
	result, err := r.drive(ctx, interp)
	if err != nil {
		result = r.abort(err)
		span.RecordError(err)
	}

	status := telemetry.StatusCodeOK
	if result.Status == agent.StatusFailed {
		status = telemetry.StatusCodeError
	}
	span.SetAttributes(
		telemetry.String(telemetry.AttrStatus, string(result.Status)),
		telemetry.Int(telemetry.AttrIterations, result.Iterations),
	)
	span.SetStatus(status, string(result.Status))

	o.recorder.RunFinished(ctx, string(result.Status), result.Iterations, state.Duration())
	logging.Info().
		Add(logging.RunID(state.ID())).
		Add(logging.Status(result.Status)).
		Add(logging.Classification(result.Classification)).
		Add(logging.Iteration(result.Iterations, state.MaxIterations())).
		Add(logging.Int("errors", len(result.Errors))).
		Add(logging.Int("invalid_calls", r.invalidCalls())).
		Add(logging.Str("budgets_exhausted", strings.Join(r.budget.Exhausted(), ","))).
		Add(logging.Duration(state.Duration())).
		Msg("run finished")

	return result, err
}

// run is the per-query working set.
type run struct {
	o         *Orchestrator
	state     *agent.State
	budget    *policy.Budget
	location  *time.Location
	observer  func(agent.Turn)
	cancelled bool
}

// invalidCalls totals the refused calls of every tool.
func (r *run) invalidCalls() int {
	prefix := policy.InvalidCallKey("")
	n := 0
	for name, used := range r.budget.Snapshot().Consumed {
		if strings.HasPrefix(name, prefix) {
			n += used
		}
	}
	return n
}

// outcome is what a node reports to the routing function.
type outcome int

const (
	outcomeNone outcome = iota
	// outcomeToolSucceeded marks an act pass whose tool ran without failure.
	outcomeToolSucceeded
)

// route picks the event that leaves node given the run state.
func route(node agent.Node, s *agent.State, out outcome) (statemachine.Event, error) {
	switch node {
	case agent.NodeClassify:
		if s.Classification() == agent.ClassificationInScope && s.IsRunning() {
			return statemachine.EventAccept, nil
		}
		return statemachine.EventReject, nil
	case agent.NodeAct:
		if !s.IsRunning() {
			return statemachine.EventFinish, nil
		}
		if out == outcomeToolSucceeded {
			return statemachine.EventCall, nil
		}
		return statemachine.EventContinue, nil
	case agent.NodeReflect:
		if !s.IsRunning() {
			return statemachine.EventFinish, nil
		}
		return statemachine.EventResume, nil
	case agent.NodeFinalize:
		return statemachine.EventDone, nil
	default:
		return "", fmt.Errorf("%w: no route from node %q", agent.ErrInvariant, node)
	}
}

func (r *run) drive(ctx context.Context, interp *statemachine.Interpreter) (agent.FinalResult, error) {
	var result agent.FinalResult
	for !interp.Done() {
		node := interp.Node()
		nodeCtx, span := r.o.tracer.StartSpan(ctx, telemetry.SpanNode,
			telemetry.WithAttributes(telemetry.String(telemetry.AttrNode, string(node))))
		logging.Debug().
			Add(logging.RunID(r.state.ID())).
			Add(logging.Node(node)).
			Add(logging.Iteration(r.state.Iteration(), r.state.MaxIterations())).
			Msg("node entered")

		var (
			out outcome
			err error
		)
		switch node {
		case agent.NodeClassify:
			r.classify(nodeCtx)
		case agent.NodeAct:
			out, err = r.act(nodeCtx)
		case agent.NodeReflect:
			r.reflect(nodeCtx)
		case agent.NodeFinalize:
			result = r.finalize(nodeCtx)
		}
		span.End()
		if err != nil {
			return result, err
		}

		event, err := route(node, r.state, out)
		if err != nil {
			return result, err
		}
		if err := interp.Send(event); err != nil {
			return result, err
		}
		logging.Debug().
			Add(logging.RunID(r.state.ID())).
			Add(logging.Transition(node, interp.Node())).
			Add(logging.Status(r.state.Status())).
			Msg("node left")
	}
	return result, nil
}

// abort turns an invariant violation into a failed result.
func (r *run) abort(err error) agent.FinalResult {
	r.state.RecordError(agent.RunError{Node: agent.NodeDone, Code: "invariant", Message: err.Error()})
	if !r.state.Status().IsTerminal() {
		_ = r.state.Fail("orchestration invariant violated")
	}
	logging.Error().
		Add(logging.RunID(r.state.ID())).
		Add(logging.ErrorField(err)).
		Msg("run aborted")
	return r.state.Result(agent.StatusFailed, "The run stopped on an internal error.")
}

// append adds a turn and hands it to the observer.
func (r *run) append(t agent.Turn) agent.Turn {
	t = r.state.Append(t)
	if r.observer != nil {
		r.observer(t)
	}
	return t
}

// checkCancelled reports whether ctx is done. The first time it is, the run
// is failed with a cancelled error.
func (r *run) checkCancelled(ctx context.Context, node agent.Node) bool {
	if r.cancelled {
		return true
	}
	if ctx.Err() == nil {
		return false
	}
	r.cancelled = true
	r.state.RecordError(agent.RunError{Node: node, Code: CodeCancelled, Message: ctx.Err().Error()})
	if r.state.IsRunning() {
		_ = r.state.Fail(CodeCancelled)
	}
	r.append(agent.Turn{Kind: agent.TurnNote, Node: node, Content: "run cancelled"})
	logging.Warn().
		Add(logging.RunID(r.state.ID())).
		Add(logging.Node(node)).
		Add(logging.Code(CodeCancelled)).
		Msg("run cancelled")
	return true
}

// complete sends one gateway request for node. Failures are always
// returned as *gateway.Error.
func (r *run) complete(ctx context.Context, node agent.Node, req gateway.Request) (gateway.Response, error) {
	req.Purpose = gateway.Purpose(node)
	req.Temperature = r.o.temperature
	if req.MaxTokens == 0 {
		req.MaxTokens = r.o.maxTokens
	}

	ctx, span := r.o.tracer.StartSpan(ctx, telemetry.SpanGateway,
		telemetry.WithSpanKind(telemetry.SpanKindClient),
		telemetry.WithAttributes(
			telemetry.String(telemetry.AttrPurpose, string(req.Purpose)),
			telemetry.String(telemetry.AttrProvider, r.o.gateway.Name()),
		))
	defer span.End()

	start := time.Now()
	resp, err := r.o.gateway.Complete(ctx, req)
	elapsed := time.Since(start)

	kind := string(resp.Kind)
	if err != nil {
		var gerr *gateway.Error
		if !errors.As(err, &gerr) {
			gerr = &gateway.Error{Kind: gateway.KindOf(err), Provider: r.o.gateway.Name(), Err: err}
		}
		err = gerr
		kind = "failure"
		span.RecordError(err)
		span.SetStatus(telemetry.StatusCodeError, string(gerr.Kind))
	}
	span.SetAttributes(telemetry.String(telemetry.AttrCallKind, kind))

	r.o.recorder.GatewayCalled(ctx, telemetry.GatewayCall{
		Purpose:  string(req.Purpose),
		Provider: r.o.gateway.Name(),
		Kind:     kind,
		Duration: elapsed,
	})
	if err == nil {
		logging.Debug().
			Add(logging.RunID(r.state.ID())).
			Add(logging.Purpose(string(req.Purpose))).
			Add(logging.Provider(r.o.gateway.Name())).
			Add(logging.Str("kind", kind)).
			Add(logging.Tokens(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)).
			Add(logging.Duration(elapsed)).
			Msg("gateway call")
	}
	return resp, err
}

// gatewayFailure records a failed completion call for node.
func (r *run) gatewayFailure(node agent.Node, err error) {
	kind := gateway.KindOf(err)
	r.state.RecordError(agent.RunError{Node: node, Code: string(kind), Message: err.Error()})
	r.append(agent.Turn{Kind: agent.TurnGatewayFailure, Node: node, Content: err.Error()})
	logging.Warn().
		Add(logging.RunID(r.state.ID())).
		Add(logging.Node(node)).
		Add(logging.Code(string(kind))).
		Add(logging.ErrorField(err)).
		Msg("gateway call failed")
}

// enforceBudget forces completion once the last pass has been used.
func (r *run) enforceBudget() {
	if !r.state.IsRunning() || !r.state.BudgetExhausted() {
		return
	}
	_ = r.state.Complete(NoteBudgetExhausted)
	r.append(agent.Turn{Kind: agent.TurnNote, Node: agent.NodeAct, Content: NoteBudgetExhausted})
	logging.Info().
		Add(logging.RunID(r.state.ID())).
		Add(logging.Iteration(r.state.Iteration(), r.state.MaxIterations())).
		Msg(NoteBudgetExhausted)
}
