package geo

import (
	"math"
	"testing"

	"github.com/motionfleet/fleetzones/internal/models"
	"github.com/stretchr/testify/require"
)

func TestDistance_SamePointIsZero(t *testing.T) {
	require.Equal(t, 0.0, Distance(12.9716, 77.5946, 12.9716, 77.5946))
}

func TestDistance_KnownValues(t *testing.T) {
	// один градус по меридиану ≈ 111.195 км при R = 6371 км
	d := Distance(0, 0, 1, 0)
	require.InDelta(t, 111194.93, d, 1)

	// Bangalore scenario: ~1.3 km between the zone center and the exit sample
	d = Distance(12.9716, 77.5946, 12.98, 77.60)
	require.InDelta(t, 1100, d, 300)
	require.Greater(t, d, 500.0)
}

func TestDistance_Symmetric(t *testing.T) {
	a := Distance(-6.2088, 106.8456, -7.0, 107.0)
	b := Distance(-7.0, 107.0, -6.2088, 106.8456)
	require.InDelta(t, a, b, 1e-6)
}

func TestWithin_BoundaryIsInside(t *testing.T) {
	d := Distance(10.001, 10.001, 10, 10)
	require.True(t, Within(10.001, 10.001, 10, 10, d))
	require.False(t, Within(10.001, 10.001, 10, 10, math.Nextafter(d, 0)))
}

func TestWithin_MatchesDistanceComparison(t *testing.T) {
	points := [][2]float64{
		{12.9716, 77.5946}, {12.98, 77.60}, {12.975, 77.597}, {-33.86, 151.21}, {0, 0},
	}
	radii := []float64{1, 50, 500, 1500, 10000}
	for _, p := range points {
		for _, r := range radii {
			want := Distance(p[0], p[1], 12.9716, 77.5946) <= r
			require.Equal(t, want, Within(p[0], p[1], 12.9716, 77.5946, r))
		}
	}
}

func TestContains(t *testing.T) {
	z := &models.Geofence{CenterLat: 12.9716, CenterLng: 77.5946, RadiusMeters: 500}
	require.True(t, Contains(z, 12.9716, 77.5946))
	require.False(t, Contains(z, 12.98, 77.60))
}

func TestValidRanges(t *testing.T) {
	require.True(t, ValidLatitude(-90))
	require.True(t, ValidLatitude(90))
	require.False(t, ValidLatitude(90.0001))
	require.False(t, ValidLatitude(math.NaN()))
	require.True(t, ValidLongitude(-180))
	require.False(t, ValidLongitude(180.5))
}

func TestPoint_LonLatOrder(t *testing.T) {
	p := Point(12.5, 77.25)
	require.Equal(t, 77.25, p.Lon())
	require.Equal(t, 12.5, p.Lat())
}

func TestValidZone(t *testing.T) {
	require.True(t, Valid(&models.Geofence{CenterLat: 12.97, CenterLng: 77.59, RadiusMeters: 1}))
	require.False(t, Valid(&models.Geofence{CenterLat: 12.97, CenterLng: 77.59}))
	require.False(t, Valid(&models.Geofence{CenterLat: 91, CenterLng: 77.59, RadiusMeters: 10}))
	require.False(t, Valid(&models.Geofence{CenterLat: 12.97, CenterLng: -181, RadiusMeters: 10}))
	require.False(t, Valid(nil))
}
