package memgeofence

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/motionfleet/fleetzones/internal/models"
)

func (s *Storage) InsertPosition(_ context.Context, p *models.PositionSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vehicles[p.VehicleID]; !ok {
		return models.ErrNotFound
	}
	s.insertPositionLocked(p)
	return nil
}

func (s *Storage) insertPositionLocked(p *models.PositionSample) {
	p.ID = uuid.NewString()
	if p.Timestamp.IsZero() {
		p.Timestamp = s.now()
	}
	s.positions = append(s.positions, *p)
}

// ListPositionsSince returns samples of the given vehicles at or after since,
// newest first.
func (s *Storage) ListPositionsSince(_ context.Context, vehicleIDs []string, since time.Time) ([]*models.PositionSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]struct{}, len(vehicleIDs))
	for _, id := range vehicleIDs {
		want[id] = struct{}{}
	}
	out := []*models.PositionSample{}
	for i := len(s.positions) - 1; i >= 0; i-- {
		p := s.positions[i]
		if _, ok := want[p.VehicleID]; !ok || p.Timestamp.Before(since) {
			continue
		}
		out = append(out, &p)
	}
	sortPositionsDesc(out)
	return out, nil
}

func (s *Storage) LatestCampaignPositions(_ context.Context, campaignID string) ([]*models.PositionSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := make(map[string]models.PositionSample)
	for _, p := range s.positions {
		v, ok := s.vehicles[p.VehicleID]
		if !ok || v.CampaignID == nil || *v.CampaignID != campaignID {
			continue
		}
		if cur, ok := latest[p.VehicleID]; !ok || !p.Timestamp.Before(cur.Timestamp) {
			latest[p.VehicleID] = p
		}
	}
	out := make([]*models.PositionSample, 0, len(latest))
	for _, p := range latest {
		p := p
		out = append(out, &p)
	}
	sortPositionsDesc(out)
	return out, nil
}

func sortPositionsDesc(ps []*models.PositionSample) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Timestamp.Equal(ps[j].Timestamp) {
			return ps[i].VehicleID < ps[j].VehicleID
		}
		return ps[i].Timestamp.After(ps[j].Timestamp)
	})
}
