package pggeofence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/motionfleet/fleetzones/internal/models"
	"github.com/pkg/errors"
)

// GetVehicleCampaign returns the vehicle's campaign id, nil when the vehicle
// is not assigned. Unknown vehicles yield models.ErrNotFound.
func (s *Storage) GetVehicleCampaign(ctx context.Context, vehicleID string) (*string, error) {
	var campaignID *string
	err := s.db.QueryRow(ctx, `SELECT campaign_id FROM vehicles WHERE id = $1`, vehicleID).Scan(&campaignID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select vehicle")
	}
	return campaignID, nil
}

func (s *Storage) ListCampaignVehicleIDs(ctx context.Context, campaignID string) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM vehicles WHERE campaign_id = $1 ORDER BY id`, campaignID)
	if err != nil {
		return nil, errors.Wrap(err, "select campaign vehicles")
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan vehicle id")
		}
		out = append(out, id)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) ListActiveCampaignIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM campaigns WHERE status = $1 ORDER BY created_at`, models.CampaignStatusActive)
	if err != nil {
		return nil, errors.Wrap(err, "select active campaigns")
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan campaign id")
		}
		out = append(out, id)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
