// Package tool provides the domain model for agent tools.
package tool

import "time"

// Annotations describe tool behavior for execution policy.
type Annotations struct {
	// ReadOnly indicates the tool has no side effects.
	ReadOnly bool `json:"read_only"`

	// Idempotent indicates multiple calls with same input yield same result.
	Idempotent bool `json:"idempotent"`

	// Timeout bounds a single execution (0 = executor default).
	Timeout time.Duration `json:"timeout,omitempty"`

	// Tags are arbitrary labels for categorization.
	Tags []string `json:"tags,omitempty"`
}

// DefaultAnnotations returns annotations with safe defaults.
func DefaultAnnotations() Annotations {
	return Annotations{}
}

// PureAnnotations returns annotations for a deterministic, side-effect free tool.
func PureAnnotations() Annotations {
	return Annotations{
		ReadOnly:   true,
		Idempotent: true,
	}
}

// CanRetry returns true if the tool can be safely retried on failure.
func (a Annotations) CanRetry() bool {
	return a.Idempotent || a.ReadOnly
}

// HasTag reports whether the tool carries tag.
func (a Annotations) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
