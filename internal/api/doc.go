// Package api implements the HTTP REST API and WebSocket server for the
// fleet telemetry service.
//
// This package provides:
//   - Stream endpoints: ingest, latest value, history, freshness, clear
//   - Device endpoints: list, scan, detail, readings, register, commands
//   - Network topology, fleet analytics and the audit trail
//   - WebSocket hub broadcasting every stored reading as reading.ingested
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Errors
//
// Domain errors are mapped with errors.Is to a JSON body of the form
// {"status": 404, "code": "not_found", "message": "..."}. Validation
// failures are 400 validation_error, unknown streams and devices are 404
// not_found, duplicate registrations are 409 conflict and everything else,
// including recovered panics, is 500 internal_error.
//
// # Graceful Degradation
//
// MQTT, InfluxDB and the database are optional. Without them the service
// still ingests over HTTP and answers every query; only their sections of
// /health and /metrics are omitted.
package api
