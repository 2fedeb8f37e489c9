package geo

import "math"

// Model constants.
const (
	// KmPerDegree scales a distance in degrees to kilometres.
	KmPerDegree = 111.0

	// BaseSignalDBm is the simulated signal at zero distance.
	BaseSignalDBm = -50

	// SignalLossPerKm is the simulated loss in dBm per kilometre.
	SignalLossPerKm = 5.0
)

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Distance returns the planar distance between a and b in kilometres,
// rounded to one decimal place.
func Distance(a, b Point) float64 {
	dLat := a.Lat - b.Lat
	dLng := a.Lng - b.Lng
	return Round1(math.Sqrt(dLat*dLat+dLng*dLng) * KmPerDegree)
}

// SignalAt returns the simulated signal strength in dBm for a device at the
// given distance in kilometres. Larger distances always give a weaker signal.
func SignalAt(distanceKm float64) int {
	return BaseSignalDBm - int(math.Round(distanceKm*SignalLossPerKm))
}

// Round1 rounds v to one decimal place, halves away from zero.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
