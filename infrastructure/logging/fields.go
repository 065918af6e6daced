package logging

import (
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/opsquery/domain/agent"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// RunID adds a run ID field.
func RunID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("run_id", id)
	}
}

// Node adds the decision node a line belongs to.
func Node(n agent.Node) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("node", string(n))
	}
}

// Transition adds from and to node fields.
func Transition(from, to agent.Node) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("from_node", string(from)).Str("to_node", string(to))
	}
}

// Status adds a run status field.
func Status(s agent.Status) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("status", string(s))
	}
}

// Classification adds the classifier verdict.
func Classification(c agent.Classification) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("classification", string(c))
	}
}

// Iteration adds the loop pass counter.
func Iteration(n, limit int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("iteration", n).Int("max_iterations", limit)
	}
}

// ToolName adds a tool name field.
func ToolName(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("tool", name)
	}
}

// Validation adds the outcome of checking a proposed call.
func Validation(v agent.Validation) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("validation", string(v))
	}
}

// Code adds a machine-readable error or failure code.
func Code(code string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("code", code)
	}
}

// Purpose adds the purpose of a completion request.
func Purpose(p string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("purpose", p)
	}
}

// Provider adds the completion provider name.
func Provider(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("provider", name)
	}
}

// Tokens adds token usage.
func Tokens(input, output int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("input_tokens", input).Int("output_tokens", output)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Component adds a component field for categorization.
func Component(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("component", name)
	}
}

// Str adds a string field with custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}

// Int adds an integer field with custom key.
func Int(key string, value int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int(key, value)
	}
}

// Bool adds a boolean field with custom key.
func Bool(key string, value bool) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Bool(key, value)
	}
}
