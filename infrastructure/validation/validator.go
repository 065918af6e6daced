// Package validation checks request bodies against per-field rules.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule names reported in violations.
const (
	RuleJSON          = "json"
	RuleRequired      = "required"
	RuleMaxLength     = "max_length"
	RuleMinLength     = "min_length"
	RuleUTF8          = "utf8"
	RuleControlChars  = "no_control_chars"
	RulePattern       = "pattern"
	RuleAllowedValues = "allowed_values"
)

// ErrInvalid is matched by every Errors value.
var ErrInvalid = errors.New("validation failed")

// Rule defines a validation rule.
type Rule interface {
	// Name returns the rule name.
	Name() string

	// Validate validates a value against the rule.
	Validate(value any) error
}

// Violation is one failed rule.
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Errors lists violations in field declaration order.
type Errors []Violation

func (e Errors) Error() string {
	parts := make([]string, len(e))
	for i, v := range e {
		if v.Field == "" {
			parts[i] = v.Message
			continue
		}
		parts[i] = fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is reports whether target is ErrInvalid.
func (e Errors) Is(target error) bool {
	return target == ErrInvalid
}

// Has reports whether a violation of rule exists.
func (e Errors) Has(rule string) bool {
	for _, v := range e {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

// Schema holds the rules of a request body. Fields are checked in the
// order they were first given a rule; a field stops at its first violation.
type Schema struct {
	order []string
	rules map[string][]Rule
}

// NewSchema creates a new validation schema.
func NewSchema() *Schema {
	return &Schema{
		rules: make(map[string][]Rule),
	}
}

// AddRule adds validation rules for a field.
func (s *Schema) AddRule(field string, rules ...Rule) *Schema {
	if _, ok := s.rules[field]; !ok {
		s.order = append(s.order, field)
	}
	s.rules[field] = append(s.rules[field], rules...)
	return s
}

// Validate checks a JSON object body. It returns Errors or nil.
func (s *Schema) Validate(input json.RawMessage) error {
	var data map[string]any
	if err := json.Unmarshal(input, &data); err != nil {
		return Errors{{Rule: RuleJSON, Message: fmt.Sprintf("invalid JSON body: %v", err)}}
	}
	if data == nil {
		return Errors{{Rule: RuleJSON, Message: "body must be a JSON object"}}
	}
	return s.ValidateValues(data)
}

// ValidateValues checks already decoded values. It returns Errors or nil.
func (s *Schema) ValidateValues(data map[string]any) error {
	var errs Errors
	for _, field := range s.order {
		value, exists := data[field]
		for _, rule := range s.rules[field] {
			// only the required rule sees missing fields
			if !exists {
				if _, ok := rule.(*RequiredRule); !ok {
					continue
				}
			}
			if err := rule.Validate(value); err != nil {
				errs = append(errs, Violation{Field: field, Rule: rule.Name(), Message: err.Error()})
				break
			}
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// RequiredRule validates that a field is present and not blank.
type RequiredRule struct{}

func (r *RequiredRule) Name() string { return RuleRequired }

func (r *RequiredRule) Validate(value any) error {
	if value == nil {
		return errors.New("field is required")
	}
	if str, ok := value.(string); ok && strings.TrimSpace(str) == "" {
		return errors.New("field cannot be empty")
	}
	return nil
}

// Required creates a required rule.
func Required() Rule {
	return &RequiredRule{}
}

// StringRule rejects values that are not strings.
type StringRule struct{}

func (r *StringRule) Name() string { return "string" }

func (r *StringRule) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("must be a string, got %T", value)
	}
	return nil
}

// String creates a string type rule.
func String() Rule {
	return &StringRule{}
}

// MaxLengthRule validates that a string does not exceed max runes.
type MaxLengthRule struct {
	max int
}

func (r *MaxLengthRule) Name() string { return RuleMaxLength }

func (r *MaxLengthRule) Validate(value any) error {
	str, ok := value.(string)
	if !ok {
		return nil
	}
	if utf8.RuneCountInString(str) > r.max {
		return fmt.Errorf("exceeds maximum length of %d", r.max)
	}
	return nil
}

// MaxLength creates a max length rule.
func MaxLength(max int) Rule {
	return &MaxLengthRule{max: max}
}

// MinLengthRule validates that a string has at least min runes.
type MinLengthRule struct {
	min int
}

func (r *MinLengthRule) Name() string { return RuleMinLength }

func (r *MinLengthRule) Validate(value any) error {
	str, ok := value.(string)
	if !ok {
		return nil
	}
	if utf8.RuneCountInString(str) < r.min {
		return fmt.Errorf("must be at least %d characters", r.min)
	}
	return nil
}

// MinLength creates a min length rule.
func MinLength(min int) Rule {
	return &MinLengthRule{min: min}
}

// UTF8Rule validates that a string is valid UTF-8 without replacement
// characters left by a lossy decode.
type UTF8Rule struct{}

func (r *UTF8Rule) Name() string { return RuleUTF8 }

func (r *UTF8Rule) Validate(value any) error {
	str, ok := value.(string)
	if !ok {
		return nil
	}
	if !utf8.ValidString(str) || strings.ContainsRune(str, utf8.RuneError) {
		return errors.New("must be valid UTF-8")
	}
	return nil
}

// UTF8 creates a UTF-8 rule.
func UTF8() Rule {
	return &UTF8Rule{}
}

// ControlCharsRule rejects control characters other than tab and newlines.
type ControlCharsRule struct{}

func (r *ControlCharsRule) Name() string { return RuleControlChars }

func (r *ControlCharsRule) Validate(value any) error {
	str, ok := value.(string)
	if !ok {
		return nil
	}
	for _, c := range str {
		if unicode.IsControl(c) && c != '\t' && c != '\n' && c != '\r' {
			return fmt.Errorf("contains control character %U", c)
		}
	}
	return nil
}

// NoControlChars creates a control character rule.
func NoControlChars() Rule {
	return &ControlCharsRule{}
}

// PatternRule validates that a string matches a regex pattern.
type PatternRule struct {
	pattern *regexp.Regexp
}

func (r *PatternRule) Name() string { return RulePattern }

func (r *PatternRule) Validate(value any) error {
	str, ok := value.(string)
	if !ok {
		return nil
	}
	if !r.pattern.MatchString(str) {
		return fmt.Errorf("does not match %s", r.pattern)
	}
	return nil
}

// Pattern creates a pattern rule. It panics if pattern does not compile.
func Pattern(pattern string) Rule {
	return &PatternRule{pattern: regexp.MustCompile(pattern)}
}

// AllowedValuesRule validates that a string is one of a fixed set.
type AllowedValuesRule struct {
	values []string
}

func (r *AllowedValuesRule) Name() string { return RuleAllowedValues }

func (r *AllowedValuesRule) Validate(value any) error {
	str, ok := value.(string)
	if !ok {
		return nil
	}
	for _, v := range r.values {
		if str == v {
			return nil
		}
	}
	return fmt.Errorf("must be one of: %s", strings.Join(r.values, ", "))
}

// AllowedValues creates an allowed values rule.
func AllowedValues(values ...string) Rule {
	return &AllowedValuesRule{values: values}
}

// CustomRule allows custom validation logic.
type CustomRule struct {
	name     string
	validate func(value any) error
}

func (r *CustomRule) Name() string { return r.name }

func (r *CustomRule) Validate(value any) error {
	return r.validate(value)
}

// Custom creates a custom validation rule.
func Custom(name string, validate func(value any) error) Rule {
	return &CustomRule{name: name, validate: validate}
}
