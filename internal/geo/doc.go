// Package geo holds the planar distance and simulated signal model used by
// the device registry, scans and the network status report.
//
// Distances are a flat-earth approximation: the Euclidean distance between
// two lat/lng pairs in degrees, scaled by 111 km per degree and rounded to one
// decimal place. At the city-radius scale the fleet operates in this is close
// enough, and every component must use the same formula so that list, scan
// and network status output agree with each other.
//
// Signal strength is not measured. It is derived from distance as
// -50 dBm at the origin, losing 5 dBm per kilometre (rounded to an integer).
package geo
