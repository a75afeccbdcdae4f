// Package geo holds the great-circle math used for base proximity.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371 * 1000.0

// Point is a longitude/latitude pair in degrees, in GeoJSON axis order.
type Point struct {
	Lon float64
	Lat float64
}

// DistanceMeters returns the haversine distance between two coordinates.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)
	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(radians(lat1))*math.Cos(radians(lat2))*sinLon*sinLon
	// Rounding can push a just past 1 for near-antipodal points.
	a = math.Min(1, a)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Distance is DistanceMeters for two Points.
func Distance(a, b Point) float64 {
	return DistanceMeters(a.Lat, a.Lon, b.Lat, b.Lon)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
