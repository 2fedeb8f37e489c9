// Package query implements the read side of Fleet Telemetry Core.
//
// Engine combines the device registry and the telemetry streams to answer
// range scans, device detail requests, per-device reading lookups and fleet
// analytics. Scans model network latency: the engine waits for the
// configured scan delay before touching the registry, and holds no lock
// while it waits, so concurrent ingest and queries proceed unhindered.
// A cancelled context aborts the wait and returns no partial result.
package query
