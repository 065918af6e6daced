package policy

import "fmt"

const (
	// DefaultMaxIterations bounds agent loop passes.
	DefaultMaxIterations = 10

	// DefaultMaxInvalidCallsPerTool bounds refused calls to one tool name.
	DefaultMaxInvalidCallsPerTool = 2
)

const invalidCallPrefix = "invalid_calls:"

// InvalidCallKey is the budget name counting refused calls to tool.
func InvalidCallKey(tool string) string {
	return invalidCallPrefix + tool
}

// LoopPolicy bounds the self-correcting agent loop.
type LoopPolicy struct {
	// MaxIterations is the number of loop passes before forced completion.
	MaxIterations int
	// MaxInvalidCallsPerTool is how many refused calls one tool name may
	// accumulate; the next one aborts the run.
	MaxInvalidCallsPerTool int
}

// DefaultLoopPolicy returns the default bounds.
func DefaultLoopPolicy() LoopPolicy {
	return LoopPolicy{
		MaxIterations:          DefaultMaxIterations,
		MaxInvalidCallsPerTool: DefaultMaxInvalidCallsPerTool,
	}
}

// Validate checks the policy bounds.
func (p LoopPolicy) Validate() error {
	if p.MaxIterations < 1 {
		return fmt.Errorf("%w: max_iterations must be positive, got %d", ErrInvalidPolicy, p.MaxIterations)
	}
	if p.MaxInvalidCallsPerTool < 0 {
		return fmt.Errorf("%w: max_invalid_calls_per_tool must be non-negative, got %d", ErrInvalidPolicy, p.MaxInvalidCallsPerTool)
	}
	return nil
}

// NewRunBudget returns a fresh budget for one run.
func (p LoopPolicy) NewRunBudget() *Budget {
	return UnlimitedBudget().WithPrefixLimit(invalidCallPrefix, p.MaxInvalidCallsPerTool)
}
