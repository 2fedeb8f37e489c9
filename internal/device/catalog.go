package device

import "github.com/nerrad567/fleet-telemetry-core/internal/geo"

// CatalogEntry is a statically configured device.
// Catalog devices are loaded with status "active".
type CatalogEntry struct {
	ID        string     `yaml:"id"`
	Name      string     `yaml:"name"`
	Type      DeviceType `yaml:"type"`
	Frequency *float64   `yaml:"frequency"`
	Location  geo.Point  `yaml:"location"`
	Battery   float64    `yaml:"battery"`
}

// DefaultCatalog returns the built-in field deployment around the default
// origin.
func DefaultCatalog() []CatalogEntry {
	vhf := 151.5
	uhf := 433.92
	lora := 868.0

	return []CatalogEntry{
		{ID: "wt-001", Name: "Leopard Collar 01", Type: DeviceTypeWildlifeTracker, Frequency: &uhf,
			Location: geo.Point{Lat: 18.5304, Lng: 73.8467}, Battery: 87},
		{ID: "wt-002", Name: "Deer Collar 07", Type: DeviceTypeWildlifeTracker, Frequency: &uhf,
			Location: geo.Point{Lat: 18.5704, Lng: 73.9067}, Battery: 64},
		{ID: "wt-003", Name: "Hornbill Tag 03", Type: DeviceTypeWildlifeTracker, Frequency: &vhf,
			Location: geo.Point{Lat: 18.7204, Lng: 73.9867}, Battery: 15},
		{ID: "sm-001", Name: "North Field Soil Probe", Type: DeviceTypeSoilSensor,
			Location: geo.Point{Lat: 18.5214, Lng: 73.8577}, Battery: 92},
		{ID: "sm-002", Name: "Orchard Soil Probe", Type: DeviceTypeSoilSensor,
			Location: geo.Point{Lat: 18.4904, Lng: 73.8267}, Battery: 71},
		{ID: "cs-001", Name: "Ridge Weather Station", Type: DeviceTypeClimateSensor,
			Location: geo.Point{Lat: 18.6004, Lng: 73.7567}, Battery: 45},
		{ID: "rn-001", Name: "Relay Node A", Type: DeviceTypeIoTNode, Frequency: &lora,
			Location: geo.Point{Lat: 18.4504, Lng: 73.8867}, Battery: 78},
	}
}
