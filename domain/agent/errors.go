package agent

import "errors"

// Domain errors for a query run.
var (
	// ErrEmptyQuery indicates a run was requested for an empty query.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrInvalidBudget indicates a non-positive iteration budget.
	ErrInvalidBudget = errors.New("max iterations must be positive")

	// ErrAlreadyClassified indicates the classification was already set.
	ErrAlreadyClassified = errors.New("query already classified")

	// ErrInvalidClassification indicates an undecided verdict was supplied.
	ErrInvalidClassification = errors.New("invalid classification")

	// ErrStatusTerminal indicates a status change was attempted on a finished run.
	ErrStatusTerminal = errors.New("run status already terminal")

	// ErrNotRejectable indicates a reject was attempted on an in-scope query.
	ErrNotRejectable = errors.New("only out of scope queries can be rejected")

	// ErrIterationBudget indicates the loop tried to pass the iteration cap.
	ErrIterationBudget = errors.New("iteration budget exhausted")

	// ErrInvariant indicates an internal orchestration invariant was broken.
	ErrInvariant = errors.New("orchestration invariant violated")
)
