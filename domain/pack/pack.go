// Package pack provides types for bundling related tools.
package pack

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/opsquery/domain/tool"
)

var (
	// ErrInvalidPack is returned when a pack is invalid.
	ErrInvalidPack = errors.New("invalid pack")

	// ErrDuplicateTool is returned when two tools share a name.
	ErrDuplicateTool = errors.New("duplicate tool name")
)

// Pack is a named collection of related tools.
type Pack struct {
	// Name is the unique identifier for the pack.
	Name string

	// Description explains what the pack provides.
	Description string

	// Version is the semantic version of the pack.
	Version string

	// Tools is the collection of tools in this pack.
	Tools []tool.Tool
}

// ToolNames returns the names of all tools in the pack.
func (p *Pack) ToolNames() []string {
	names := make([]string, len(p.Tools))
	for i, t := range p.Tools {
		names[i] = t.Name()
	}
	return names
}

// GetTool returns a tool by name from the pack.
func (p *Pack) GetTool(name string) (tool.Tool, bool) {
	for _, t := range p.Tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// MetadataFields returns every metadata field the pack's tools may contribute.
func (p *Pack) MetadataFields() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range p.Tools {
		for _, f := range t.MetadataFields() {
			if _, ok := seen[f]; !ok {
				seen[f] = struct{}{}
				out = append(out, f)
			}
		}
	}
	return out
}

// Builder provides a fluent API for constructing packs.
type Builder struct {
	pack *Pack
}

// NewBuilder creates a new pack builder.
func NewBuilder(name string) *Builder {
	return &Builder{
		pack: &Pack{
			Name:  name,
			Tools: make([]tool.Tool, 0),
		},
	}
}

// WithDescription sets the pack description.
func (b *Builder) WithDescription(desc string) *Builder {
	b.pack.Description = desc
	return b
}

// WithVersion sets the pack version.
func (b *Builder) WithVersion(version string) *Builder {
	b.pack.Version = version
	return b
}

// AddTools adds tools to the pack.
func (b *Builder) AddTools(tools ...tool.Tool) *Builder {
	b.pack.Tools = append(b.pack.Tools, tools...)
	return b
}

// Build validates and returns the pack.
func (b *Builder) Build() (*Pack, error) {
	if b.pack.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidPack)
	}
	if _, err := Tools(b.pack); err != nil {
		return nil, err
	}
	return b.pack, nil
}

// MustBuild returns the pack or panics. Intended for static pack definitions.
func (b *Builder) MustBuild() *Pack {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}

// Tools flattens packs into one tool list, rejecting duplicate names.
func Tools(packs ...*Pack) ([]tool.Tool, error) {
	seen := make(map[string]string)
	var out []tool.Tool
	for _, p := range packs {
		for _, t := range p.Tools {
			if t == nil {
				return nil, fmt.Errorf("%w: pack %q contains a nil tool", ErrInvalidPack, p.Name)
			}
			if owner, dup := seen[t.Name()]; dup {
				return nil, fmt.Errorf("%w: %q in packs %q and %q", ErrDuplicateTool, t.Name(), owner, p.Name)
			}
			seen[t.Name()] = p.Name
			out = append(out, t)
		}
	}
	return out, nil
}
