package statemachine

import (
	"errors"
	"testing"

	"github.com/felixgeelhaar/opsquery/domain/agent"
)

func newRun(t *testing.T) *agent.State {
	t.Helper()

	s, err := agent.NewState("run-1", "debug pod of user alice")
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	return s
}

func start(t *testing.T, run *agent.State) *Interpreter {
	t.Helper()

	interp, err := New(run)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	interp.Start()
	t.Cleanup(interp.Stop)
	return interp
}

func TestNewQueryMachine(t *testing.T) {
	t.Parallel()

	machine, err := NewQueryMachine()
	if err != nil {
		t.Fatalf("NewQueryMachine() error = %v", err)
	}
	if machine == nil {
		t.Fatal("NewQueryMachine() returned nil machine")
	}
}

func TestNew_NilRun(t *testing.T) {
	t.Parallel()

	if _, err := New(nil); err == nil {
		t.Error("New(nil) should fail")
	}
}

func TestInterpreter_StartsAtClassify(t *testing.T) {
	t.Parallel()

	interp := start(t, newRun(t))
	if got := interp.Node(); got != agent.NodeClassify {
		t.Errorf("Node() = %s, want classify", got)
	}
	if interp.Done() {
		t.Error("Done() should be false at classify")
	}
}

func TestInterpreter_LegalPath(t *testing.T) {
	t.Parallel()

	run := newRun(t)
	interp := start(t, run)

	if err := run.Classify(agent.ClassificationInScope); err != nil {
		t.Fatal(err)
	}
	steps := []struct {
		event Event
		want  agent.Node
		setup func()
	}{
		{event: EventAccept, want: agent.NodeAct},
		{event: EventContinue, want: agent.NodeAct},
		{event: EventCall, want: agent.NodeReflect},
		{event: EventResume, want: agent.NodeAct},
		{event: EventFinish, want: agent.NodeFinalize, setup: func() { _ = run.Complete("") }},
		{event: EventDone, want: agent.NodeDone},
	}
	for _, step := range steps {
		if step.setup != nil {
			step.setup()
		}
		if err := interp.Send(step.event); err != nil {
			t.Fatalf("Send(%s) error = %v", step.event, err)
		}
		if got := interp.Node(); got != step.want {
			t.Fatalf("after %s Node() = %s, want %s", step.event, got, step.want)
		}
	}
	if !interp.Done() {
		t.Error("Done() should be true after DONE")
	}

	history := interp.History()
	if len(history) != len(steps) {
		t.Fatalf("History() len = %d, want %d", len(history), len(steps))
	}
	first, last := history[0], history[len(history)-1]
	if first.From != agent.NodeClassify || first.To != agent.NodeAct {
		t.Errorf("first transition = %+v", first)
	}
	if last.From != agent.NodeFinalize || last.To != agent.NodeDone {
		t.Errorf("last transition = %+v", last)
	}
}

func TestInterpreter_RejectPath(t *testing.T) {
	t.Parallel()

	run := newRun(t)
	interp := start(t, run)

	if err := run.Classify(agent.ClassificationOutOfScope); err != nil {
		t.Fatal(err)
	}
	if err := interp.Send(EventAccept); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("Send(ACCEPT) on out of scope error = %v, want ErrIllegalTransition", err)
	}
	if err := interp.Send(EventReject); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("Send(REJECT) before the run is rejected error = %v, want ErrIllegalTransition", err)
	}
	if err := run.Reject(); err != nil {
		t.Fatal(err)
	}
	if err := interp.Send(EventReject); err != nil {
		t.Fatalf("Send(REJECT) error = %v", err)
	}
	if !interp.Matches(agent.NodeFinalize) {
		t.Errorf("Node() = %s, want finalize", interp.Node())
	}
}

func TestInterpreter_IllegalTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		path  []Event
		event Event
		want  agent.Node
	}{
		{name: "classify cannot reflect", event: EventCall, want: agent.NodeClassify},
		{name: "classify cannot finish", event: EventFinish, want: agent.NodeClassify},
		{name: "act cannot finish while running", path: []Event{EventAccept}, event: EventFinish, want: agent.NodeAct},
		{name: "act cannot resume", path: []Event{EventAccept}, event: EventResume, want: agent.NodeAct},
		{name: "reflect cannot call", path: []Event{EventAccept, EventCall}, event: EventCall, want: agent.NodeReflect},
		{name: "unknown event", event: Event("JUMP"), want: agent.NodeClassify},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			run := newRun(t)
			interp := start(t, run)
			if err := run.Classify(agent.ClassificationInScope); err != nil {
				t.Fatal(err)
			}
			for _, e := range tt.path {
				if err := interp.Send(e); err != nil {
					t.Fatalf("Send(%s) error = %v", e, err)
				}
			}

			err := interp.Send(tt.event)
			if !errors.Is(err, ErrIllegalTransition) {
				t.Fatalf("Send(%s) error = %v, want ErrIllegalTransition", tt.event, err)
			}
			if !errors.Is(err, agent.ErrInvariant) {
				t.Error("illegal transition should wrap agent.ErrInvariant")
			}
			if got := interp.Node(); got != tt.want {
				t.Errorf("Node() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestInterpreter_CancelledAtClassify(t *testing.T) {
	t.Parallel()

	run := newRun(t)
	interp := start(t, run)
	if err := run.Fail("cancelled"); err != nil {
		t.Fatal(err)
	}
	if err := interp.Send(EventReject); err != nil {
		t.Fatalf("Send(REJECT) on cancelled run error = %v", err)
	}
	if got := interp.Node(); got != agent.NodeFinalize {
		t.Errorf("Node() = %s, want finalize", got)
	}
}

func TestInterpreter_RunningGuard(t *testing.T) {
	t.Parallel()

	run := newRun(t)
	interp := start(t, run)
	if err := run.Classify(agent.ClassificationInScope); err != nil {
		t.Fatal(err)
	}
	if err := interp.Send(EventAccept); err != nil {
		t.Fatal(err)
	}
	if err := run.Fail("invalid call budget"); err != nil {
		t.Fatal(err)
	}
	if err := interp.Send(EventContinue); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Send(CONTINUE) on failed run error = %v, want ErrIllegalTransition", err)
	}
	if err := interp.Send(EventFinish); err != nil {
		t.Errorf("Send(FINISH) on failed run error = %v", err)
	}
}
