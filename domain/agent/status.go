// Package agent provides the core domain model for a single query run.
package agent

// Status represents the lifecycle status of a run.
type Status string

const (
	StatusRunning   Status = "running"   // Classifier or loop still working
	StatusCompleted Status = "completed" // Loop finished, finalizer may summarize
	StatusFailed    Status = "failed"    // Aborted by policy, cancellation or a failed finalize
	StatusRejected  Status = "rejected"  // Classifier said out of scope
)

// IsTerminal returns true once the status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRejected
}

// IsValid returns true if the status is a recognized status.
func (s Status) IsValid() bool {
	switch s {
	case StatusRunning, StatusCompleted, StatusFailed, StatusRejected:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Classification is the verdict of the query classifier.
type Classification string

const (
	ClassificationUnclassified Classification = "unclassified"
	ClassificationInScope      Classification = "in_scope"
	ClassificationOutOfScope   Classification = "out_of_scope"
)

// IsDecided returns true if the classifier has produced a verdict.
func (c Classification) IsDecided() bool {
	return c == ClassificationInScope || c == ClassificationOutOfScope
}

// String returns the string representation of the classification.
func (c Classification) String() string {
	return string(c)
}
