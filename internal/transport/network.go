package transport

import (
	"github.com/nerrad567/fleet-telemetry-core/internal/device"
	"github.com/nerrad567/fleet-telemetry-core/internal/geo"
)

// GatewayStatusOnline is reported for every configured gateway.
const GatewayStatusOnline = "online"

// Gateway is a radio gateway of the field network.
type Gateway struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Location geo.Point `json:"location"`
	RadiusKM float64   `json:"radius_km"`
	Signal   int       `json:"signal_strength"`
}

// DefaultGateways returns the built-in topology around the default origin.
func DefaultGateways() []Gateway {
	return []Gateway{
		{ID: "gw-central", Name: "Central Mast", Location: geo.Point{Lat: 18.5204, Lng: 73.8567}, RadiusKM: 8, Signal: -58},
		{ID: "gw-north", Name: "North Ridge Relay", Location: geo.Point{Lat: 18.6204, Lng: 73.8567}, RadiusKM: 12, Signal: -66},
		{ID: "gw-east", Name: "East Valley Relay", Location: geo.Point{Lat: 18.6804, Lng: 73.9867}, RadiusKM: 10, Signal: -71},
	}
}

// GatewayStatus is one gateway with the devices attached to it.
type GatewayStatus struct {
	Gateway
	Status           string `json:"status"`
	ConnectedDevices int    `json:"connected_devices"`
}

// NetworkStatus is the topology snapshot.
type NetworkStatus struct {
	Gateways         []GatewayStatus `json:"gateways"`
	TotalDevices     int             `json:"total_devices"`
	ConnectedDevices int             `json:"connected_devices"`
	CoveragePercent  float64         `json:"coverage_percent"`
}

// NetworkStatus derives the topology from the registry. A device is
// attached to the nearest gateway whose radius covers it, ties going to the
// one listed first. Coverage is the share of devices attached to any
// gateway, to one decimal place.
//
// The snapshot carries no timestamps, so repeated calls without an
// intervening mutation return identical results.
func (t *Transport) NetworkStatus() NetworkStatus {
	devices := t.registry.List(device.Filter{})

	status := NetworkStatus{
		Gateways:     make([]GatewayStatus, len(t.opts.Gateways)),
		TotalDevices: len(devices),
	}
	for i, gw := range t.opts.Gateways {
		status.Gateways[i] = GatewayStatus{Gateway: gw, Status: GatewayStatusOnline}
	}

	for i := range devices {
		idx := nearestGateway(t.opts.Gateways, devices[i].Location)
		if idx < 0 {
			continue
		}
		status.Gateways[idx].ConnectedDevices++
		status.ConnectedDevices++
	}

	if status.TotalDevices > 0 {
		status.CoveragePercent = geo.Round1(float64(status.ConnectedDevices) / float64(status.TotalDevices) * 100)
	}
	return status
}

// nearestGateway returns the index of the closest gateway whose radius
// covers p, or -1 if none does.
func nearestGateway(gateways []Gateway, p geo.Point) int {
	best := -1
	var bestDist float64
	for i, gw := range gateways {
		d := geo.Distance(gw.Location, p)
		if d > gw.RadiusKM {
			continue
		}
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
