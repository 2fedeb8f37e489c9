package query

import (
	"time"

	"github.com/nerrad567/fleet-telemetry-core/internal/device"
	"github.com/nerrad567/fleet-telemetry-core/internal/geo"
	"github.com/nerrad567/fleet-telemetry-core/internal/telemetry"
)

// ScanRequest asks for devices within Range km of a point.
// Lat and Lng must be given together; without them the stored distances
// from the last origin are used. A zero Range selects the default.
type ScanRequest struct {
	Lat   *float64 `json:"lat,omitempty"`
	Lng   *float64 `json:"lng,omitempty"`
	Range float64  `json:"range,omitempty"`
}

// ScanResult is the outcome of a range scan.
type ScanResult struct {
	Devices    []device.Device `json:"devices"`
	Count      int             `json:"count"`
	Range      float64         `json:"range"`
	Origin     geo.Point       `json:"origin"`
	ScannedAt  time.Time       `json:"scanned_at"`
	DurationMS int64           `json:"duration_ms"`
}

// HistoryPoint is one hourly sample of a synthesised device series.
type HistoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Signal    int       `json:"signal"`
	Battery   float64   `json:"battery"`
}

// DeviceDetail is a device with its recent signal and battery series.
type DeviceDetail struct {
	Device  device.Device  `json:"device"`
	History []HistoryPoint `json:"history"`
}

// StreamSummary describes one telemetry stream in an analytics snapshot.
type StreamSummary struct {
	telemetry.Stats
	Health telemetry.Health  `json:"health"`
	Latest telemetry.Reading `json:"latest"`
}

// Analytics is an aggregate snapshot of the fleet and its streams.
type Analytics struct {
	Devices     device.Stats    `json:"devices"`
	Streams     []StreamSummary `json:"streams"`
	GeneratedAt time.Time       `json:"generated_at"`
}
