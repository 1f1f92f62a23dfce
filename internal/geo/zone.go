package geo

import "github.com/motionfleet/fleetzones/internal/models"

// Contains reports whether the zone covers the point.
func Contains(z *models.Geofence, lat, lng float64) bool {
	return Within(lat, lng, z.CenterLat, z.CenterLng, z.RadiusMeters)
}

// Valid reports whether the zone has a positive radius and an in-range
// center.
func Valid(z *models.Geofence) bool {
	return z != nil && z.RadiusMeters > 0 && ValidLatitude(z.CenterLat) && ValidLongitude(z.CenterLng)
}
