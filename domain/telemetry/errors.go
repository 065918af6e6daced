package telemetry

import "errors"

var (
	// ErrExporterFailed wraps span exporter construction errors.
	ErrExporterFailed = errors.New("span exporter unavailable")

	// ErrShutdownFailed wraps errors flushing spans and metrics on exit.
	ErrShutdownFailed = errors.New("telemetry shutdown incomplete")
)
