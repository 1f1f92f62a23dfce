package pggeofence

import (
	"context"

	"github.com/motionfleet/fleetzones/internal/models"
	"github.com/pkg/errors"
)

func (s *Storage) ListActiveZones(ctx context.Context, campaignID string) ([]*models.Geofence, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, campaign_id, name, center_lat, center_lng, radius_meters, is_active
FROM geofences
WHERE campaign_id = $1 AND is_active
ORDER BY created_at, id
`, campaignID)
	if err != nil {
		return nil, errors.Wrap(err, "select zones")
	}
	defer rows.Close()

	out := []*models.Geofence{}
	for rows.Next() {
		var z models.Geofence
		if err := rows.Scan(&z.ID, &z.CampaignID, &z.Name, &z.CenterLat, &z.CenterLng, &z.RadiusMeters, &z.IsActive); err != nil {
			return nil, errors.Wrap(err, "scan zone")
		}
		out = append(out, &z)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
