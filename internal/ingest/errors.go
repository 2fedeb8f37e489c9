package ingest

import "errors"

// Domain errors for the ingest package.
var (
	// ErrInvalidTopic is returned for topics outside fleet/telemetry/{stream}/{device_id}.
	ErrInvalidTopic = errors.New("ingest: invalid topic")

	// ErrInvalidPayload is returned when a payload is not a JSON object.
	ErrInvalidPayload = errors.New("ingest: invalid payload")
)
