// Package memory provides in-memory storage implementations.
package memory

import (
	"fmt"
	"sort"

	"github.com/felixgeelhaar/opsquery/domain/tool"
)

// ToolRegistry is an immutable in-memory implementation of tool.Registry.
// It is built once at startup and shared read-only across runs, so it
// needs no locking.
type ToolRegistry struct {
	tools map[string]tool.Tool
	names []string
}

var _ tool.Registry = (*ToolRegistry)(nil)

// NewToolRegistry builds a registry from a fixed tool set.
func NewToolRegistry(tools ...tool.Tool) (*ToolRegistry, error) {
	r := &ToolRegistry{
		tools: make(map[string]tool.Tool, len(tools)),
		names: make([]string, 0, len(tools)),
	}
	for _, t := range tools {
		if t == nil {
			return nil, fmt.Errorf("nil tool: %w", tool.ErrToolNotFound)
		}
		if t.Name() == "" {
			return nil, tool.ErrEmptyName
		}
		if _, exists := r.tools[t.Name()]; exists {
			return nil, fmt.Errorf("%w: %s", tool.ErrToolExists, t.Name())
		}
		r.tools[t.Name()] = t
		r.names = append(r.names, t.Name())
	}
	sort.Strings(r.names)
	return r, nil
}

// MustToolRegistry builds a registry or panics.
func MustToolRegistry(tools ...tool.Tool) *ToolRegistry {
	r, err := NewToolRegistry(tools...)
	if err != nil {
		panic(err)
	}
	return r
}

// Get retrieves a tool by name.
func (r *ToolRegistry) Get(name string) (tool.Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools in name order.
func (r *ToolRegistry) List() []tool.Tool {
	tools := make([]tool.Tool, 0, len(r.names))
	for _, name := range r.names {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Names returns all registered tool names in order.
func (r *ToolRegistry) Names() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// Has checks if a tool is registered.
func (r *ToolRegistry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	return len(r.names)
}
