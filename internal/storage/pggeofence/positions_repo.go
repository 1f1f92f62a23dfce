package pggeofence

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/motionfleet/fleetzones/internal/models"
	"github.com/pkg/errors"
)

// InsertPosition appends a sample. A zero Timestamp means "now" on the
// database side; ID and Timestamp are filled from the inserted row.
func (s *Storage) InsertPosition(ctx context.Context, p *models.PositionSample) error {
	return insertPosition(ctx, s.db, p)
}

func insertPosition(ctx context.Context, q querier, p *models.PositionSample) error {
	var ts *time.Time
	if !p.Timestamp.IsZero() {
		t := p.Timestamp.UTC()
		ts = &t
	}
	err := q.QueryRow(ctx, `
INSERT INTO gps_tracking (vehicle_id, latitude, longitude, speed, heading, accuracy, timestamp)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
RETURNING id, timestamp
`, p.VehicleID, p.Latitude, p.Longitude, p.Speed, p.Heading, p.Accuracy, ts).Scan(&p.ID, &p.Timestamp)
	if err != nil {
		return errors.Wrap(err, "insert position")
	}
	return nil
}

func (s *Storage) ListPositionsSince(ctx context.Context, vehicleIDs []string, since time.Time) ([]*models.PositionSample, error) {
	if len(vehicleIDs) == 0 {
		return []*models.PositionSample{}, nil
	}

	rows, err := s.db.Query(ctx, `
SELECT id, vehicle_id, latitude, longitude, speed, heading, accuracy, timestamp
FROM gps_tracking
WHERE vehicle_id = ANY($1::uuid[])
  AND timestamp >= $2
ORDER BY timestamp DESC
`, vehicleIDs, since.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "select positions")
	}
	return scanPositions(rows)
}

// LatestCampaignPositions returns the newest sample of every vehicle in the
// campaign, for the live map.
func (s *Storage) LatestCampaignPositions(ctx context.Context, campaignID string) ([]*models.PositionSample, error) {
	rows, err := s.db.Query(ctx, `
SELECT DISTINCT ON (g.vehicle_id)
  g.id, g.vehicle_id, g.latitude, g.longitude, g.speed, g.heading, g.accuracy, g.timestamp
FROM gps_tracking g
JOIN vehicles v ON v.id = g.vehicle_id
WHERE v.campaign_id = $1
ORDER BY g.vehicle_id, g.timestamp DESC
`, campaignID)
	if err != nil {
		return nil, errors.Wrap(err, "select latest positions")
	}
	return scanPositions(rows)
}

func scanPositions(rows pgx.Rows) ([]*models.PositionSample, error) {
	defer rows.Close()

	out := []*models.PositionSample{}
	for rows.Next() {
		var p models.PositionSample
		if err := rows.Scan(
			&p.ID, &p.VehicleID, &p.Latitude, &p.Longitude,
			&p.Speed, &p.Heading, &p.Accuracy, &p.Timestamp,
		); err != nil {
			return nil, errors.Wrap(err, "scan position")
		}
		out = append(out, &p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
