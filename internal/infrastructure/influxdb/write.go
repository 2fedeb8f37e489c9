package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/fleet-telemetry-core/internal/telemetry"
)

// MeasurementReadings is the measurement every telemetry reading is written to.
const MeasurementReadings = "readings"

// ReadingPoint converts a stored reading into an InfluxDB point tagged with
// its stream and device. Metrics become fields. A reading without a
// timestamp is stamped with now.
func ReadingPoint(stream string, r telemetry.Reading, now time.Time) *write.Point {
	fields := make(map[string]any, len(r.Metrics))
	for name, v := range r.Metrics {
		fields[name] = v
	}

	ts := now
	if r.Timestamp != nil {
		ts = *r.Timestamp
	}

	return write.NewPoint(
		MeasurementReadings,
		map[string]string{
			"stream":    stream,
			"device_id": r.Device(),
		},
		fields,
		ts,
	)
}

// WriteReading queues one reading for the next batch. It is a no-op when
// the client is disconnected or the reading carries no metrics.
func (c *Client) WriteReading(stream string, r telemetry.Reading) {
	if !c.IsConnected() || len(r.Metrics) == 0 {
		return
	}
	c.writeAPI.WritePoint(ReadingPoint(stream, r, time.Now()))
}

// ReadingStored implements telemetry.Observer so the client can be
// subscribed to the streams directly.
func (c *Client) ReadingStored(stream string, r telemetry.Reading) {
	c.WriteReading(stream, r)
}
