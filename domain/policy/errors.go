package policy

import "errors"

var (
	// ErrBudgetExceeded is returned by Budget.Consume once a limit would be passed.
	ErrBudgetExceeded = errors.New("budget exhausted")

	// ErrInvalidPolicy is returned for loop bounds no run could honor.
	ErrInvalidPolicy = errors.New("invalid loop policy")
)
