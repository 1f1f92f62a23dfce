package suggestions

import (
	"math"
	"sort"

	"github.com/motionfleet/fleetzones/internal/models"
)

type cellKey struct {
	lat, lng int64
}

type cell struct {
	key         cellKey
	centerLat   float64
	centerLng   float64
	points      int
	speedSum    float64
	impressions float64
}

// cluster is a cell that passed the support threshold.
type cluster struct {
	key         cellKey
	centerLat   float64
	centerLng   float64
	points      int
	avgSpeed    float64
	impressions int64
}

// bucket assigns every sample to its grid cell by floor division.
func bucket(samples []*models.PositionSample, size float64, scorer Scorer) map[cellKey]*cell {
	cells := make(map[cellKey]*cell)
	for _, p := range samples {
		k := cellKey{
			lat: int64(math.Floor(p.Latitude / size)),
			lng: int64(math.Floor(p.Longitude / size)),
		}
		c, ok := cells[k]
		if !ok {
			c = &cell{
				key:       k,
				centerLat: float64(k.lat)*size + size/2,
				centerLng: float64(k.lng)*size + size/2,
			}
			cells[k] = c
		}
		c.points++
		if p.Speed != nil {
			c.speedSum += *p.Speed
		}
		c.impressions += scorer.Impressions(p.Speed)
	}
	return cells
}

// significant drops sparse cells and ranks the rest by impressions.
func significant(cells map[cellKey]*cell, minPoints int) []cluster {
	out := make([]cluster, 0, len(cells))
	for _, c := range cells {
		if c.points < minPoints {
			continue
		}
		out = append(out, cluster{
			key:         c.key,
			centerLat:   c.centerLat,
			centerLng:   c.centerLng,
			points:      c.points,
			avgSpeed:    c.speedSum / float64(c.points),
			impressions: int64(math.Round(c.impressions)),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.impressions != b.impressions {
			return a.impressions > b.impressions
		}
		if a.points != b.points {
			return a.points > b.points
		}
		if a.key.lat != b.key.lat {
			return a.key.lat < b.key.lat
		}
		return a.key.lng < b.key.lng
	})
	return out
}
