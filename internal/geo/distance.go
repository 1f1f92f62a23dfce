// Package geo holds the great-circle math shared by the detector and the
// suggestion engine.
package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusMeters is the mean Earth radius used by Distance.
const EarthRadiusMeters = 6371000.0

// Distance returns the Haversine distance in meters between two points
// given in decimal degrees.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRad(lat1)
	phi2 := toRad(lat2)
	dPhi := toRad(lat2 - lat1)
	dLambda := toRad(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// Within reports whether the point lies inside the circle. A point exactly
// on the boundary is inside.
func Within(lat, lng, centerLat, centerLng, radiusMeters float64) bool {
	return Distance(lat, lng, centerLat, centerLng) <= radiusMeters
}

func ValidLatitude(lat float64) bool {
	return !math.IsNaN(lat) && lat >= -90 && lat <= 90
}

func ValidLongitude(lng float64) bool {
	return !math.IsNaN(lng) && lng >= -180 && lng <= 180
}

// Point converts degrees to an orb point (lon, lat order, as GeoJSON wants).
func Point(lat, lng float64) orb.Point {
	return orb.Point{lng, lat}
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
