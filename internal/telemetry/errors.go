package telemetry

import "errors"

// Domain errors for the telemetry package.
var (
	// ErrInvalidReading is returned when a sample is missing its primary
	// metric or the metric cannot be read as a number.
	ErrInvalidReading = errors.New("telemetry: invalid reading")

	// ErrStreamNotFound is returned when a stream name is not configured.
	ErrStreamNotFound = errors.New("telemetry: stream not found")

	// ErrInvalidSchema is returned when a stream definition is unusable.
	ErrInvalidSchema = errors.New("telemetry: invalid schema")
)
