package config

import "errors"

// Loader and validator errors. Returned errors wrap one of these, so a
// missing file can be told apart from a malformed one.
var (
	ErrConfigNotFound     = errors.New("config file not found")
	ErrInvalidFormat      = errors.New("config file is malformed")
	ErrUnsupportedFormat  = errors.New("config file extension not supported")
	ErrValidationFailed   = errors.New("config validation failed")
	ErrEnvExpansionFailed = errors.New("environment override is invalid")
	ErrMissingEnvVar      = errors.New("config references an unset environment variable")
)
