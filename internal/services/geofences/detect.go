package geofences

import (
	"github.com/motionfleet/fleetzones/internal/geo"
	"github.com/motionfleet/fleetzones/internal/models"
)

// Detect compares the observation against every zone and returns the
// transitions to persist: enter on outside→inside, exit on inside→outside.
// A zone with no history counts as "was outside". Order follows zones.
func Detect(zones []*models.Geofence, states map[string]models.EventType, lat, lng float64) []models.Transition {
	out := make([]models.Transition, 0)
	for _, z := range zones {
		wasInside := states[z.ID] == models.EventTypeEnter
		isInside := geo.Contains(z, lat, lng)
		if wasInside == isInside {
			continue
		}

		typ := models.EventTypeEnter
		if wasInside {
			typ = models.EventTypeExit
		}
		out = append(out, models.Transition{
			Event: models.GeofenceEvent{
				GeofenceID: z.ID,
				EventType:  typ,
				Latitude:   lat,
				Longitude:  lng,
			},
			WasInside: wasInside,
		})
	}
	return out
}
