// Package statemachine enforces the query node graph with statekit.
package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/opsquery/domain/agent"
)

// Event is a routing decision taken after a node finishes.
type Event = statekit.EventType

const (
	EventAccept   Event = "ACCEPT"   // classify -> act
	EventReject   Event = "REJECT"   // classify -> finalize, rejected or cancelled
	EventCall     Event = "CALL"     // act -> reflect, after a successful tool call
	EventContinue Event = "CONTINUE" // act -> act
	EventResume   Event = "RESUME"   // reflect -> act
	EventFinish   Event = "FINISH"   // act or reflect -> finalize
	EventDone     Event = "DONE"     // finalize -> done
)

// Transition is one edge taken by a run.
type Transition struct {
	From  agent.Node `json:"from"`
	To    agent.Node `json:"to"`
	Event Event      `json:"event"`
}

// Context carries run state through the machine.
type Context struct {
	Run     *agent.State
	History []Transition
}

// NewContext creates a new machine context for run.
func NewContext(run *agent.State) *Context {
	return &Context{Run: run}
}

const (
	nodeClassify statekit.StateID = statekit.StateID(agent.NodeClassify)
	nodeAct      statekit.StateID = statekit.StateID(agent.NodeAct)
	nodeReflect  statekit.StateID = statekit.StateID(agent.NodeReflect)
	nodeFinalize statekit.StateID = statekit.StateID(agent.NodeFinalize)
	nodeDone     statekit.StateID = statekit.StateID(agent.NodeDone)
)

// targets lists the node each event leads to.
var targets = map[Event]agent.Node{
	EventAccept:   agent.NodeAct,
	EventReject:   agent.NodeFinalize,
	EventCall:     agent.NodeReflect,
	EventContinue: agent.NodeAct,
	EventResume:   agent.NodeAct,
	EventFinish:   agent.NodeFinalize,
	EventDone:     agent.NodeDone,
}

// NewQueryMachine creates the query statechart:
// classify -> act | finalize; act -> act | reflect | finalize;
// reflect -> act | finalize; finalize -> done.
func NewQueryMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("opsquery").
		WithInitial(nodeClassify).
		WithContext(&Context{}).
		WithAction("record", recordTransition).
		WithGuard("accepted", guardAccepted).
		WithGuard("declined", guardDeclined).
		WithGuard("running", guardRunning).
		WithGuard("settled", guardSettled).
		State(nodeClassify).
			On(EventAccept).Target(nodeAct).Guard("accepted").Do("record").
			On(EventReject).Target(nodeFinalize).Guard("declined").Do("record").
			Done().
		State(nodeAct).
			On(EventContinue).Target(nodeAct).Guard("running").Do("record").
			On(EventCall).Target(nodeReflect).Guard("running").Do("record").
			On(EventFinish).Target(nodeFinalize).Guard("settled").Do("record").
			Done().
		State(nodeReflect).
			On(EventResume).Target(nodeAct).Guard("running").Do("record").
			On(EventFinish).Target(nodeFinalize).Guard("settled").Do("record").
			Done().
		State(nodeFinalize).
			On(EventDone).Target(nodeDone).Do("record").
			Done().
		State(nodeDone).
			Final().
			Done().
		Build()
}

// recordTransition appends the taken edge to the context history.
// Actions receive a pointer to the context, so **Context here.
func recordTransition(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	c := *ctx
	from := agent.NodeClassify
	if n := len(c.History); n > 0 {
		from = c.History[n-1].To
	}
	c.History = append(c.History, Transition{From: from, To: targets[event.Type], Event: event.Type})
}

// guardAccepted admits the loop for an in scope query that is still running.
func guardAccepted(ctx *Context, _ statekit.Event) bool {
	return ctx != nil && ctx.Run != nil &&
		ctx.Run.Classification() == agent.ClassificationInScope && ctx.Run.IsRunning()
}

// guardDeclined sends rejected and cancelled queries straight to the finalizer.
func guardDeclined(ctx *Context, _ statekit.Event) bool {
	return ctx != nil && ctx.Run != nil && !guardAccepted(ctx, statekit.Event{}) && ctx.Run.Status().IsTerminal()
}

func guardRunning(ctx *Context, _ statekit.Event) bool {
	return ctx != nil && ctx.Run != nil && ctx.Run.IsRunning()
}

// guardSettled admits the finalizer only once the run has a terminal status.
func guardSettled(ctx *Context, _ statekit.Event) bool {
	return ctx != nil && ctx.Run != nil && ctx.Run.Status().IsTerminal()
}
