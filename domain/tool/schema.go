package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// FieldType is the JSON type of an input field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
)

func (t FieldType) valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject:
		return true
	default:
		return false
	}
}

// Field declares one named input of a tool.
type Field struct {
	Name        string
	Type        FieldType
	Required    bool
	Description string
	// Enum restricts string fields to a fixed set of values.
	Enum []string
	// Items is the element type of array fields.
	Items FieldType
}

// Schema is the typed input contract of a tool: named fields marked
// required or optional. Unknown fields are rejected.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema creates a schema from field declarations.
func NewSchema(fields ...Field) (Schema, error) {
	s := Schema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if f.Name == "" {
			return Schema{}, fmt.Errorf("%w: field without name", ErrInvalidSchema)
		}
		if !f.Type.valid() {
			return Schema{}, fmt.Errorf("%w: field %q has type %q", ErrInvalidSchema, f.Name, f.Type)
		}
		if f.Items != "" && (f.Type != TypeArray || !f.Items.valid()) {
			return Schema{}, fmt.Errorf("%w: field %q has invalid items", ErrInvalidSchema, f.Name)
		}
		if len(f.Enum) > 0 && f.Type != TypeString {
			return Schema{}, fmt.Errorf("%w: enum on non-string field %q", ErrInvalidSchema, f.Name)
		}
		if _, dup := s.index[f.Name]; dup {
			return Schema{}, fmt.Errorf("%w: duplicate field %q", ErrInvalidSchema, f.Name)
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// MustSchema creates a schema or panics. Intended for static tool definitions.
func MustSchema(fields ...Field) Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// EmptySchema returns a schema for a tool without inputs.
func EmptySchema() Schema {
	return Schema{index: map[string]int{}}
}

// Fields returns the declared fields in order.
func (s Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field returns a declared field by name.
func (s Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// IsEmpty returns true if the schema declares no fields.
func (s Schema) IsEmpty() bool {
	return len(s.fields) == 0
}

// Required returns the names of required fields.
func (s Schema) Required() []string {
	var out []string
	for _, f := range s.fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// Properties returns the JSON Schema "properties" object.
func (s Schema) Properties() map[string]any {
	props := make(map[string]any, len(s.fields))
	for _, f := range s.fields {
		p := map[string]any{"type": string(f.Type)}
		if f.Description != "" {
			p["description"] = f.Description
		}
		if len(f.Enum) > 0 {
			p["enum"] = f.Enum
		}
		if f.Type == TypeArray && f.Items != "" {
			p["items"] = map[string]any{"type": string(f.Items)}
		}
		props[f.Name] = p
	}
	return props
}

// JSONSchema renders the schema as a JSON Schema object.
func (s Schema) JSONSchema() json.RawMessage {
	doc := map[string]any{
		"type":                 "object",
		"properties":           s.Properties(),
		"additionalProperties": false,
	}
	if req := s.Required(); len(req) > 0 {
		doc["required"] = req
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return raw
}

// MarshalJSON implements json.Marshaler.
func (s Schema) MarshalJSON() ([]byte, error) {
	return s.JSONSchema(), nil
}

// Validate checks input against the schema. It returns nil or a
// *ValidationError listing every problem found.
func (s Schema) Validate(input json.RawMessage) error {
	issues := s.Check(input)
	if len(issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: issues}
}

// Check returns the validation issues for input, nil if it is valid.
func (s Schema) Check(input json.RawMessage) []Issue {
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	if !json.Valid(trimmed) {
		return []Issue{{Code: IssueMalformedJSON, Message: "arguments are not valid JSON"}}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return []Issue{{Code: IssueNotObject, Message: fmt.Sprintf("arguments must be a JSON object, got %s", kindOf(trimmed))}}
	}

	var issues []Issue
	for _, f := range s.fields {
		raw, present := obj[f.Name]
		if !present || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			if f.Required {
				issues = append(issues, Issue{
					Field:   f.Name,
					Code:    IssueMissingRequired,
					Message: fmt.Sprintf("required field %q is missing", f.Name),
				})
			}
			continue
		}
		issues = append(issues, checkField(f, raw)...)
	}

	var unknown []string
	for name := range obj {
		if _, ok := s.index[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		issues = append(issues, Issue{
			Field:   name,
			Code:    IssueUnknownField,
			Message: fmt.Sprintf("field %q is not accepted by this tool", name),
		})
	}
	return issues
}

func checkField(f Field, raw json.RawMessage) []Issue {
	got := kindOf(raw)
	if !typeMatches(f.Type, raw, got) {
		return []Issue{{
			Field:   f.Name,
			Code:    IssueTypeMismatch,
			Message: fmt.Sprintf("expected %s, got %s", f.Type, got),
		}}
	}

	switch {
	case len(f.Enum) > 0:
		var v string
		_ = json.Unmarshal(raw, &v)
		for _, allowed := range f.Enum {
			if v == allowed {
				return nil
			}
		}
		return []Issue{{
			Field:   f.Name,
			Code:    IssueNotInEnum,
			Message: fmt.Sprintf("value %q is not one of %v", v, f.Enum),
		}}
	case f.Type == TypeArray && f.Items != "":
		var items []json.RawMessage
		_ = json.Unmarshal(raw, &items)
		for i, item := range items {
			if k := kindOf(item); !typeMatches(f.Items, item, k) {
				return []Issue{{
					Field:   fmt.Sprintf("%s[%d]", f.Name, i),
					Code:    IssueTypeMismatch,
					Message: fmt.Sprintf("expected %s, got %s", f.Items, k),
				}}
			}
		}
	}
	return nil
}

func typeMatches(want FieldType, raw json.RawMessage, got string) bool {
	switch want {
	case TypeInteger:
		if got != "number" {
			return false
		}
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return false
		}
		return n == math.Trunc(n)
	default:
		return string(want) == got
	}
}

// kindOf returns the JSON type name of a raw value.
func kindOf(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "empty"
	}
	switch trimmed[0] {
	case '"':
		return "string"
	case '{':
		return "object"
	case '[':
		return "array"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}
