package memgeofence

import (
	"context"

	"github.com/google/uuid"
	"github.com/motionfleet/fleetzones/internal/models"
)

func (s *Storage) LatestZoneStates(_ context.Context, vehicleID string, zoneIDs []string) (map[string]models.EventType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestZoneStatesLocked(vehicleID, zoneIDs), nil
}

// events хранятся в порядке вставки, поэтому последнее совпадение и есть текущее состояние.
func (s *Storage) latestZoneStatesLocked(vehicleID string, zoneIDs []string) map[string]models.EventType {
	want := make(map[string]struct{}, len(zoneIDs))
	for _, id := range zoneIDs {
		want[id] = struct{}{}
	}
	out := make(map[string]models.EventType, len(zoneIDs))
	for _, e := range s.events {
		if e.VehicleID != vehicleID {
			continue
		}
		if _, ok := want[e.GeofenceID]; ok {
			out[e.GeofenceID] = e.EventType
		}
	}
	return out
}

// AppendTransitions has the same contract as the Postgres store: the batch is
// applied atomically and a transition is skipped when the zone's current
// state differs from the one it was computed against.
func (s *Storage) AppendTransitions(ctx context.Context, vehicleID string, ts []models.Transition) ([]*models.GeofenceEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged, err := s.stageTransitionsLocked(vehicleID, ts)
	if err != nil {
		return nil, err
	}
	return s.commitEventsLocked(staged), nil
}

// InsertPositionAndTransitions stores the sample together with its
// transitions; on any error nothing is written.
func (s *Storage) InsertPositionAndTransitions(ctx context.Context, p *models.PositionSample, ts []models.Transition) ([]*models.GeofenceEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vehicles[p.VehicleID]; !ok {
		return nil, models.ErrNotFound
	}
	staged, err := s.stageTransitionsLocked(p.VehicleID, ts)
	if err != nil {
		return nil, err
	}
	s.insertPositionLocked(p)
	return s.commitEventsLocked(staged), nil
}

func (s *Storage) stageTransitionsLocked(vehicleID string, ts []models.Transition) ([]models.GeofenceEvent, error) {
	zoneIDs := make([]string, 0, len(ts))
	known := make(map[string]struct{}, len(s.zones))
	for _, z := range s.zones {
		known[z.ID] = struct{}{}
	}
	for _, t := range ts {
		if _, ok := known[t.Event.GeofenceID]; !ok {
			return nil, models.ErrNotFound
		}
		zoneIDs = append(zoneIDs, t.Event.GeofenceID)
	}
	current := s.latestZoneStatesLocked(vehicleID, zoneIDs)

	staged := make([]models.GeofenceEvent, 0, len(ts))
	for _, t := range ts {
		inside := current[t.Event.GeofenceID] == models.EventTypeEnter
		if inside != t.WasInside {
			continue
		}
		e := t.Event
		e.ID = uuid.NewString()
		e.VehicleID = vehicleID
		e.Timestamp = s.now()
		current[e.GeofenceID] = e.EventType
		staged = append(staged, e)
	}
	return staged, nil
}

func (s *Storage) commitEventsLocked(staged []models.GeofenceEvent) []*models.GeofenceEvent {
	s.events = append(s.events, staged...)
	out := make([]*models.GeofenceEvent, 0, len(staged))
	for i := range staged {
		e := staged[i]
		out = append(out, &e)
	}
	return out
}

func (s *Storage) ListVehicleEvents(_ context.Context, vehicleID string, limit int) ([]*models.GeofenceEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.GeofenceEvent{}
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if s.events[i].VehicleID == vehicleID {
			e := s.events[i]
			out = append(out, &e)
		}
	}
	return out, nil
}
