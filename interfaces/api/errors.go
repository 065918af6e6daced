package api

import "errors"

// ErrNoRunner indicates the server was built without a runner.
var ErrNoRunner = errors.New("runner is required")

// Error codes of failed API requests.
const (
	codeInvalidRequest = "invalid_request"
	codeQueryTooLong   = "query_too_long"
	codeRateLimited    = "rate_limited"
	codeNotFound       = "not_found"
	codeInternal       = "internal"
	codeStreaming      = "streaming_unsupported"
)
