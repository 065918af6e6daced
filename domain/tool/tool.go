package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// Tool represents a registered capability the agent can invoke.
type Tool interface {
	// Name returns the stable string identifier for the tool.
	Name() string

	// Description returns a human-readable description of what the tool does.
	Description() string

	// InputSchema returns the typed input contract.
	InputSchema() Schema

	// MetadataFields returns the metadata fields the tool may contribute.
	MetadataFields() []string

	// Annotations returns the tool's behavioral annotations.
	Annotations() Annotations

	// Execute runs the tool with input that already passed InputSchema.
	// Expected problems are reported as Result.Failure, not as an error.
	Execute(ctx context.Context, input json.RawMessage) (Result, error)
}

// Handler is the function signature for tool execution.
type Handler func(ctx context.Context, input json.RawMessage) (Result, error)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Definition is a concrete implementation of Tool.
type Definition struct {
	name           string
	description    string
	inputSchema    Schema
	metadataFields []string
	annotations    Annotations
	handler        Handler
}

// Name returns the tool name.
func (d *Definition) Name() string {
	return d.name
}

// Description returns the tool description.
func (d *Definition) Description() string {
	return d.description
}

// InputSchema returns the input schema.
func (d *Definition) InputSchema() Schema {
	return d.inputSchema
}

// MetadataFields returns the declared metadata contributions.
func (d *Definition) MetadataFields() []string {
	out := make([]string, len(d.metadataFields))
	copy(out, d.metadataFields)
	return out
}

// Annotations returns the tool annotations.
func (d *Definition) Annotations() Annotations {
	return d.annotations
}

// Execute runs the tool handler.
func (d *Definition) Execute(ctx context.Context, input json.RawMessage) (Result, error) {
	if d.handler == nil {
		return Result{}, ErrNoHandler
	}
	return d.handler(ctx, input)
}

// Builder provides a fluent API for constructing tools.
type Builder struct {
	def *Definition
	err error
}

// NewBuilder creates a new tool builder with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		def: &Definition{
			name:        name,
			inputSchema: EmptySchema(),
			annotations: DefaultAnnotations(),
		},
	}
}

// WithDescription sets the tool description.
func (b *Builder) WithDescription(desc string) *Builder {
	if b.err != nil {
		return b
	}
	b.def.description = desc
	return b
}

// WithInputSchema sets the input schema.
func (b *Builder) WithInputSchema(schema Schema) *Builder {
	if b.err != nil {
		return b
	}
	b.def.inputSchema = schema
	return b
}

// WithFields declares the input schema from field declarations.
func (b *Builder) WithFields(fields ...Field) *Builder {
	if b.err != nil {
		return b
	}
	schema, err := NewSchema(fields...)
	if err != nil {
		b.err = fmt.Errorf("tool %q: %w", b.def.name, err)
		return b
	}
	b.def.inputSchema = schema
	return b
}

// WithMetadataFields declares the metadata fields the tool may contribute.
func (b *Builder) WithMetadataFields(fields ...string) *Builder {
	if b.err != nil {
		return b
	}
	b.def.metadataFields = append(b.def.metadataFields, fields...)
	return b
}

// WithAnnotations sets the tool annotations.
func (b *Builder) WithAnnotations(annotations Annotations) *Builder {
	if b.err != nil {
		return b
	}
	b.def.annotations = annotations
	return b
}

// ReadOnly marks the tool as read-only.
func (b *Builder) ReadOnly() *Builder {
	if b.err != nil {
		return b
	}
	b.def.annotations.ReadOnly = true
	return b
}

// Idempotent marks the tool as idempotent.
func (b *Builder) Idempotent() *Builder {
	if b.err != nil {
		return b
	}
	b.def.annotations.Idempotent = true
	return b
}

// WithTimeout bounds a single execution of the tool.
func (b *Builder) WithTimeout(d time.Duration) *Builder {
	if b.err != nil {
		return b
	}
	b.def.annotations.Timeout = d
	return b
}

// WithHandler sets the tool handler function.
func (b *Builder) WithHandler(handler Handler) *Builder {
	if b.err != nil {
		return b
	}
	b.def.handler = handler
	return b
}

// WithTags adds tags to the tool.
func (b *Builder) WithTags(tags ...string) *Builder {
	if b.err != nil {
		return b
	}
	b.def.annotations.Tags = append(b.def.annotations.Tags, tags...)
	return b
}

// Build constructs the tool definition.
func (b *Builder) Build() (Tool, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.def.name == "" {
		return nil, ErrEmptyName
	}
	if !namePattern.MatchString(b.def.name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, b.def.name)
	}
	if b.def.handler == nil {
		return nil, fmt.Errorf("tool %q: %w", b.def.name, ErrNoHandler)
	}
	return b.def, nil
}

// MustBuild constructs the tool definition or panics on error.
func (b *Builder) MustBuild() Tool {
	tool, err := b.Build()
	if err != nil {
		panic(err)
	}
	return tool
}
