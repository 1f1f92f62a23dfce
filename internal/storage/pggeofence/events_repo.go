package pggeofence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/motionfleet/fleetzones/internal/models"
	"github.com/pkg/errors"
)

// LatestZoneStates returns, for each zone that has any history with the
// vehicle, the type of the most recent event.
func (s *Storage) LatestZoneStates(ctx context.Context, vehicleID string, zoneIDs []string) (map[string]models.EventType, error) {
	return latestZoneStates(ctx, s.db, vehicleID, zoneIDs)
}

func latestZoneStates(ctx context.Context, q querier, vehicleID string, zoneIDs []string) (map[string]models.EventType, error) {
	out := make(map[string]models.EventType, len(zoneIDs))
	if len(zoneIDs) == 0 {
		return out, nil
	}

	rows, err := q.Query(ctx, `
SELECT DISTINCT ON (geofence_id) geofence_id, event_type
FROM geofence_events
WHERE vehicle_id = $1
  AND geofence_id = ANY($2::uuid[])
ORDER BY geofence_id, timestamp DESC, seq DESC
`, vehicleID, zoneIDs)
	if err != nil {
		return nil, errors.Wrap(err, "select zone states")
	}
	defer rows.Close()

	for rows.Next() {
		var zoneID string
		var typ string
		if err := rows.Scan(&zoneID, &typ); err != nil {
			return nil, errors.Wrap(err, "scan zone state")
		}
		out[zoneID] = models.EventType(typ)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// AppendTransitions inserts the batch atomically. Under a per-vehicle
// advisory lock it re-reads the current state of every zone and skips
// transitions whose expected prior state no longer holds, so concurrent
// samples for one vehicle can never produce two consecutive events of the
// same type. Only inserted rows are returned.
func (s *Storage) AppendTransitions(ctx context.Context, vehicleID string, ts []models.Transition) ([]*models.GeofenceEvent, error) {
	if len(ts) == 0 {
		return []*models.GeofenceEvent{}, nil
	}
	return s.inVehicleTx(ctx, vehicleID, func(tx pgx.Tx) ([]*models.GeofenceEvent, error) {
		return appendTransitions(ctx, tx, vehicleID, ts)
	})
}

// InsertPositionAndTransitions stores the sample and the transitions it caused
// in one transaction: either both land or neither does. Transition rules are
// those of AppendTransitions.
func (s *Storage) InsertPositionAndTransitions(ctx context.Context, p *models.PositionSample, ts []models.Transition) ([]*models.GeofenceEvent, error) {
	return s.inVehicleTx(ctx, p.VehicleID, func(tx pgx.Tx) ([]*models.GeofenceEvent, error) {
		if err := insertPosition(ctx, tx, p); err != nil {
			return nil, err
		}
		return appendTransitions(ctx, tx, p.VehicleID, ts)
	})
}

// inVehicleTx runs fn in a transaction holding the vehicle's advisory lock.
func (s *Storage) inVehicleTx(ctx context.Context, vehicleID string, fn func(tx pgx.Tx) ([]*models.GeofenceEvent, error)) ([]*models.GeofenceEvent, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, vehicleID); err != nil {
		return nil, errors.Wrap(err, "lock vehicle")
	}

	out, err := fn(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return out, nil
}

// appendTransitions expects the vehicle lock to be held by tx.
func appendTransitions(ctx context.Context, tx pgx.Tx, vehicleID string, ts []models.Transition) ([]*models.GeofenceEvent, error) {
	out := make([]*models.GeofenceEvent, 0, len(ts))
	if len(ts) == 0 {
		return out, nil
	}

	zoneIDs := make([]string, 0, len(ts))
	for _, t := range ts {
		zoneIDs = append(zoneIDs, t.Event.GeofenceID)
	}
	current, err := latestZoneStates(ctx, tx, vehicleID, zoneIDs)
	if err != nil {
		return nil, err
	}

	for _, t := range ts {
		inside := current[t.Event.GeofenceID] == models.EventTypeEnter
		if inside != t.WasInside {
			// Состояние уже поменял параллельный вызов: пропускаем.
			continue
		}

		e := t.Event
		e.VehicleID = vehicleID
		err := tx.QueryRow(ctx, `
INSERT INTO geofence_events (geofence_id, vehicle_id, event_type, latitude, longitude)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, timestamp
`, e.GeofenceID, vehicleID, string(e.EventType), e.Latitude, e.Longitude).Scan(&e.ID, &e.Timestamp)
		if err != nil {
			return nil, errors.Wrap(err, "insert geofence event")
		}
		current[e.GeofenceID] = e.EventType
		out = append(out, &e)
	}
	return out, nil
}

func (s *Storage) ListVehicleEvents(ctx context.Context, vehicleID string, limit int) ([]*models.GeofenceEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.Query(ctx, `
SELECT id, geofence_id, vehicle_id, event_type, latitude, longitude, timestamp
FROM geofence_events
WHERE vehicle_id = $1
ORDER BY timestamp DESC, seq DESC
LIMIT $2
`, vehicleID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	out := []*models.GeofenceEvent{}
	for rows.Next() {
		var e models.GeofenceEvent
		var typ string
		if err := rows.Scan(&e.ID, &e.GeofenceID, &e.VehicleID, &typ, &e.Latitude, &e.Longitude, &e.Timestamp); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		e.EventType = models.EventType(typ)
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
