// Package telemetry provides the Reading Store for Fleet Telemetry Core.
//
// A Store buffers one telemetry stream (for example soil readings) for the
// lifetime of the process. It keeps two views of the stream:
//
//   - the latest-value cache: exactly one reading, replaced on every ingest
//   - the history buffer: a fixed-capacity ring of past readings, oldest first
//
// Both views are updated inside one critical section, so no caller can see a
// history that was already rotated paired with a cache that was not yet
// replaced, or a history longer than its capacity.
//
// # Streams
//
// Streams groups the named stores configured for the service. Each stream is
// described by a Schema naming its primary (defining) metric and its optional
// numeric fields:
//
//	streams, err := telemetry.NewStreams([]telemetry.Spec{
//	    {Schema: telemetry.Schema{Name: "soil", Primary: "soil_moisture",
//	        Fields: []string{"temperature", "humidity"}}},
//	}, telemetry.Options{Capacity: 100})
//
//	soil, _ := streams.Get("soil")
//	reading, err := soil.Ingest(telemetry.Sample{"soil_moisture": 41.5, "device_id": "sm-01"})
//
// # Freshness
//
// Health is computed on demand from the wall clock and the cache. The package
// runs no timers or background goroutines.
//
// # Thread Safety
//
// Store and Streams are safe for concurrent use. Ring is not; Store guards it.
package telemetry
