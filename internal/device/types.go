package device

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/fleet-telemetry-core/internal/geo"
)

// Device attribute defaults.
const (
	// DefaultSignal is the signal assigned to newly registered devices (dBm).
	DefaultSignal = -60

	// DefaultBattery is the battery level assigned to newly registered devices.
	DefaultBattery = 100.0

	// LowBatteryThreshold is the level below which a device counts as low battery.
	LowBatteryThreshold = 20.0
)

// Device represents one field device known to the registry.
type Device struct {
	// Identity
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Type DeviceType `json:"type"`

	// Frequency is the radio frequency in MHz, if the device reports one.
	Frequency *float64 `json:"frequency,omitempty"`

	// Position and derived radio figures, relative to the registry origin
	// or the origin of the last scan.
	Location geo.Point `json:"location"`
	Distance float64   `json:"distance"`
	Signal   int       `json:"signal"`

	// Battery is a percentage in [0, 100].
	Battery float64 `json:"battery"`

	LastSeen time.Time `json:"last_seen"`
	Status   Status    `json:"status"`

	CreatedAt time.Time `json:"created_at"`
}

// DeepCopy creates a complete independent copy of the Device.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	if d.Frequency != nil {
		f := *d.Frequency
		cpy.Frequency = &f
	}
	return &cpy
}

// DeviceType classifies a device. The registry accepts any non-empty type;
// the constants below are the types used by the built-in catalog.
type DeviceType string

// Known device types.
const (
	DeviceTypeWildlifeTracker DeviceType = "wildlife_tracker"
	DeviceTypeSoilSensor      DeviceType = "soil_sensor"
	DeviceTypeClimateSensor   DeviceType = "climate_sensor"
	DeviceTypeIoTNode         DeviceType = "iot_node"
)

// Status is the lifecycle state of a device.
type Status string

// Device statuses.
const (
	StatusActive     Status = "active"
	StatusRegistered Status = "registered"
	StatusInactive   Status = "inactive"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusRegistered, StatusInactive:
		return true
	}
	return false
}

// Filter narrows List results. Zero-value fields do not filter.
type Filter struct {
	// MaxDistance keeps devices at most this many km from the origin.
	MaxDistance *float64

	// Type keeps devices of exactly this type.
	Type DeviceType

	// Status keeps devices with exactly this status.
	Status Status
}

// Matches reports whether d passes every set predicate.
func (f Filter) Matches(d *Device) bool {
	if f.MaxDistance != nil && d.Distance > *f.MaxDistance {
		return false
	}
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	return true
}

// RegisterRequest holds the caller-supplied fields of a new device.
type RegisterRequest struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      DeviceType `json:"type"`
	Frequency *float64   `json:"frequency,omitempty"`
	Location  *geo.Point `json:"location,omitempty"`
}

// Validate checks that every required field is present.
// The returned error wraps ErrInvalidDevice and names all missing fields.
func (r RegisterRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(r.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(string(r.Type)) == "" {
		missing = append(missing, "type")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrInvalidDevice, strings.Join(missing, ", "))
	}
	return nil
}

// Stats summarises the registry contents.
type Stats struct {
	Total          int                `json:"total"`
	ByStatus       map[Status]int     `json:"by_status"`
	ByType         map[DeviceType]int `json:"by_type"`
	ActivePercent  float64            `json:"active_percent"`
	AverageBattery float64            `json:"average_battery"`
	AverageSignal  float64            `json:"average_signal"`
	LowBattery     int                `json:"low_battery"`
}
