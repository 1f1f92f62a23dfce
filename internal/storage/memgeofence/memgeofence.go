// Package memgeofence is a process-local row store used for development and
// tests. It mirrors pggeofence, including the conditional insert of
// transitions.
package memgeofence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/motionfleet/fleetzones/internal/models"
)

type Storage struct {
	mu sync.Mutex

	campaigns map[string]models.Campaign
	vehicles  map[string]models.Vehicle
	zones     []models.Geofence
	positions []models.PositionSample
	events    []models.GeofenceEvent

	now func() time.Time
}

func New() *Storage {
	return &Storage{
		campaigns: make(map[string]models.Campaign),
		vehicles:  make(map[string]models.Vehicle),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock подменяет источник времени (для тестов).
func (s *Storage) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Storage) AddCampaign(c models.Campaign) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = models.CampaignStatusActive
	}
	s.campaigns[c.ID] = c
	return c.ID
}

func (s *Storage) AddVehicle(v models.Vehicle) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	s.vehicles[v.ID] = v
	return v.ID
}

func (s *Storage) AddZone(z models.Geofence) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if z.ID == "" {
		z.ID = uuid.NewString()
	}
	s.zones = append(s.zones, z)
	return z.ID
}

func (s *Storage) Ping(context.Context) error { return nil }

func (s *Storage) Close() {}

func (s *Storage) GetVehicleCampaign(_ context.Context, vehicleID string) (*string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[vehicleID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if v.CampaignID == nil {
		return nil, nil
	}
	id := *v.CampaignID
	return &id, nil
}

func (s *Storage) ListCampaignVehicleIDs(_ context.Context, campaignID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []string{}
	for id, v := range s.vehicles {
		if v.CampaignID != nil && *v.CampaignID == campaignID {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Storage) ListActiveCampaignIDs(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []string{}
	for id, c := range s.campaigns {
		if c.Status == models.CampaignStatusActive {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Storage) ListActiveZones(_ context.Context, campaignID string) ([]*models.Geofence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Geofence{}
	for i := range s.zones {
		if s.zones[i].CampaignID == campaignID && s.zones[i].IsActive {
			z := s.zones[i]
			out = append(out, &z)
		}
	}
	return out, nil
}
