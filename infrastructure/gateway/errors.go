package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies gateway failures.
type ErrorKind string

const (
	// ErrTransport indicates the request could not be delivered.
	ErrTransport ErrorKind = "transport"

	// ErrMalformed indicates the response could not be interpreted.
	ErrMalformed ErrorKind = "malformed"

	// ErrTimeout indicates the call exceeded its deadline.
	ErrTimeout ErrorKind = "timeout"

	// ErrAPI indicates the provider rejected the request.
	ErrAPI ErrorKind = "api"

	// ErrUnavailable indicates the provider is overloaded or the circuit is open.
	ErrUnavailable ErrorKind = "unavailable"
)

// ErrUnknownProvider is returned by New for an unsupported provider name.
var ErrUnknownProvider = errors.New("unknown gateway provider")

var (
	errNotStructured   = errors.New("response is not structured")
	errNoChoices       = errors.New("no choices in response")
	errScriptExhausted = errors.New("script exhausted")
)

// Error is a typed gateway failure.
type Error struct {
	Kind     ErrorKind
	Provider string
	Status   int
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := "gateway " + string(e.Kind)
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a gateway failure. Untyped errors are
// reported as transport failures.
func KindOf(err error) ErrorKind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrTransport
}

// IsKind reports whether err is a gateway failure of kind k.
func IsKind(err error, k ErrorKind) bool {
	return err != nil && KindOf(err) == k
}

// transportError classifies an error returned while sending a request.
func transportError(provider string, err error) *Error {
	var te interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &te) && te.Timeout()) {
		return &Error{Kind: ErrTimeout, Provider: provider, Err: err}
	}
	return &Error{Kind: ErrTransport, Provider: provider, Err: err}
}

// statusOverloaded is returned by Anthropic when the API is saturated.
const statusOverloaded = 529

// statusError classifies a non-success HTTP status.
func statusError(provider string, status int, err error) *Error {
	kind := ErrAPI
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout, statusOverloaded:
		kind = ErrUnavailable
	}
	return &Error{Kind: kind, Provider: provider, Status: status, Err: err}
}
