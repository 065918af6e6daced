package agent

// FinalResult is the single value returned to the caller for a run.
type FinalResult struct {
	RunID          string         `json:"run_id"`
	Query          string         `json:"query"`
	Status         Status         `json:"status"`
	Classification Classification `json:"classification"`
	Summary        string         `json:"summary"`
	Metadata       Metadata       `json:"metadata"`
	Errors         []RunError     `json:"errors,omitempty"`
	Notes          []string       `json:"notes,omitempty"`
	Iterations     int            `json:"iterations"`
	DurationMS     int64          `json:"duration_ms"`
}

// HasErrors returns true if any error was recorded during the run.
func (r FinalResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// ErrorsAt returns the errors recorded by a node.
func (r FinalResult) ErrorsAt(node Node) []RunError {
	var out []RunError
	for _, e := range r.Errors {
		if e.Node == node {
			out = append(out, e)
		}
	}
	return out
}
