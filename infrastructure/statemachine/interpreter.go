package statemachine

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/opsquery/domain/agent"
)

// ErrIllegalTransition indicates an event the current node does not accept.
// It wraps agent.ErrInvariant.
var ErrIllegalTransition = fmt.Errorf("%w: illegal node transition", agent.ErrInvariant)

// Interpreter wraps the statekit interpreter for one run.
type Interpreter struct {
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewInterpreter creates an interpreter bound to ctx.
func NewInterpreter(machine *statekit.MachineConfig[*Context], ctx *Context) *Interpreter {
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	return &Interpreter{interp: interp, ctx: ctx}
}

// New builds the query machine and an interpreter for run.
func New(run *agent.State) (*Interpreter, error) {
	if run == nil {
		return nil, errors.New("statemachine: nil run")
	}
	machine, err := NewQueryMachine()
	if err != nil {
		return nil, fmt.Errorf("building query machine: %w", err)
	}
	return NewInterpreter(machine, NewContext(run)), nil
}

// Start enters the classify node.
func (i *Interpreter) Start() {
	i.interp.Start()
}

// Stop stops the interpreter.
func (i *Interpreter) Stop() {
	i.interp.Stop()
}

// Node returns the current node.
func (i *Interpreter) Node() agent.Node {
	return agent.Node(i.interp.State().Value)
}

// Send takes the edge named by event. An event the current node refuses,
// or whose guard fails, returns ErrIllegalTransition and leaves the node
// unchanged.
func (i *Interpreter) Send(event Event) error {
	from := i.Node()
	before := len(i.ctx.History)

	i.interp.Send(statekit.Event{Type: event})

	if len(i.ctx.History) == before {
		return fmt.Errorf("%w: %s on %s", ErrIllegalTransition, event, from)
	}
	return nil
}

// Done returns true once the done node is reached.
func (i *Interpreter) Done() bool {
	return i.interp.Done()
}

// Matches checks if the current node is n.
func (i *Interpreter) Matches(n agent.Node) bool {
	return i.interp.Matches(statekit.StateID(n))
}

// History returns the edges taken so far.
func (i *Interpreter) History() []Transition {
	out := make([]Transition, len(i.ctx.History))
	copy(out, i.ctx.History)
	return out
}
