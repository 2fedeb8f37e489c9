package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// UnknownDevice is the device id stamped on readings that arrive without one.
const UnknownDevice = "unknown"

// Reserved sample keys that are never treated as metrics.
const (
	keyDeviceID  = "device_id"
	keyTimestamp = "timestamp"
)

// Sample is a decoded reading payload as supplied by a caller.
//
// Values are whatever the decoder produced: float64 and json.Number from JSON,
// strings from form-style sources, nil for explicit nulls.
type Sample map[string]any

// Schema describes the metrics carried by one stream.
type Schema struct {
	// Name identifies the stream (for example "soil").
	Name string `json:"name" yaml:"name"`

	// Primary is the defining metric. A sample without it is rejected.
	Primary string `json:"primary" yaml:"primary"`

	// Fields are optional numeric metrics defaulted to 0 when absent.
	Fields []string `json:"fields" yaml:"fields"`
}

// Metrics returns every metric name in the schema, primary first.
func (s Schema) Metrics() []string {
	out := make([]string, 0, len(s.Fields)+1)
	out = append(out, s.Primary)
	return append(out, s.Fields...)
}

// Validate checks that the schema can be used to build a store.
func (s Schema) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSchema)
	}
	if strings.TrimSpace(s.Primary) == "" {
		return fmt.Errorf("%w: stream %q: primary metric is required", ErrInvalidSchema, s.Name)
	}

	seen := make(map[string]bool, len(s.Fields)+1)
	for _, m := range s.Metrics() {
		switch {
		case m == "":
			return fmt.Errorf("%w: stream %q: empty field name", ErrInvalidSchema, s.Name)
		case m == keyDeviceID || m == keyTimestamp:
			return fmt.Errorf("%w: stream %q: field %q is reserved", ErrInvalidSchema, s.Name, m)
		case seen[m]:
			return fmt.Errorf("%w: stream %q: duplicate field %q", ErrInvalidSchema, s.Name, m)
		}
		seen[m] = true
	}
	return nil
}

// Reading is one normalised, timestamped telemetry sample.
//
// DeviceID and Timestamp are nil only in the zero-value reading returned
// before a stream has received anything. Metrics always holds every metric
// named by the stream's schema.
type Reading struct {
	DeviceID  *string
	Metrics   map[string]float64
	Timestamp *time.Time
}

// Device returns the device id, or "" for the zero-value reading.
func (r Reading) Device() string {
	if r.DeviceID == nil {
		return ""
	}
	return *r.DeviceID
}

// IsZero reports whether r is the placeholder returned before any ingest.
func (r Reading) IsZero() bool {
	return r.Timestamp == nil
}

// Clone returns a deep copy of r.
func (r Reading) Clone() Reading {
	out := Reading{Metrics: make(map[string]float64, len(r.Metrics))}
	for k, v := range r.Metrics {
		out.Metrics[k] = v
	}
	if r.DeviceID != nil {
		id := *r.DeviceID
		out.DeviceID = &id
	}
	if r.Timestamp != nil {
		ts := *r.Timestamp
		out.Timestamp = &ts
	}
	return out
}

// MarshalJSON flattens metrics into the top-level object next to device_id
// and timestamp:
//
//	{"device_id":"sm-01","humidity":61,"soil_moisture":41.5,"temperature":0,"timestamp":"..."}
func (r Reading) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(r.Metrics)+2)
	for k, v := range r.Metrics {
		obj[k] = v
	}
	obj[keyDeviceID] = r.DeviceID
	obj[keyTimestamp] = r.Timestamp
	return json.Marshal(obj)
}

// zeroReading returns the placeholder for a stream with no readings.
func zeroReading(schema Schema) Reading {
	r := Reading{Metrics: make(map[string]float64, len(schema.Fields)+1)}
	for _, m := range schema.Metrics() {
		r.Metrics[m] = 0
	}
	return r
}

// normalise validates a sample against the schema and builds a reading
// without a timestamp. The sample is not modified.
func normalise(schema Schema, sample Sample) (Reading, error) {
	raw, present := sample[schema.Primary]
	if !present || raw == nil {
		return Reading{}, fmt.Errorf("%w: %s is required", ErrInvalidReading, schema.Primary)
	}
	primary, ok := toFloat(raw)
	if !ok {
		return Reading{}, fmt.Errorf("%w: %s must be numeric", ErrInvalidReading, schema.Primary)
	}

	r := Reading{Metrics: make(map[string]float64, len(schema.Fields)+1)}
	r.Metrics[schema.Primary] = primary
	for _, f := range schema.Fields {
		v, _ := toFloat(sample[f])
		r.Metrics[f] = v
	}

	id := UnknownDevice
	if s, ok := sample[keyDeviceID].(string); ok && strings.TrimSpace(s) != "" {
		id = s
	}
	r.DeviceID = &id

	return r, nil
}

// toFloat coerces a decoded value to a finite float64.
// Booleans, text and non-finite numbers are not numeric.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
