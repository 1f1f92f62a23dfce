package models

import "time"

type EventType string

const (
	EventTypeEnter EventType = "enter"
	EventTypeExit  EventType = "exit"
)

const (
	CampaignStatusActive = "active"
)

type Campaign struct {
	ID     string
	Status string
}

type Vehicle struct {
	ID         string
	CampaignID *string
	IsActive   bool
}

// Geofence: круговая зона кампании. Радиус в метрах, центр в градусах.
type Geofence struct {
	ID           string
	CampaignID   string
	Name         string
	CenterLat    float64
	CenterLng    float64
	RadiusMeters float64
	IsActive     bool
}

type PositionSample struct {
	ID        string
	VehicleID string
	Latitude  float64
	Longitude float64
	Speed     *float64
	Heading   *float64
	Accuracy  *float64
	Timestamp time.Time
}

type GeofenceEvent struct {
	ID         string
	GeofenceID string
	VehicleID  string
	EventType  EventType
	Latitude   float64
	Longitude  float64
	Timestamp  time.Time
}

// Transition is an event the detector wants to persist together with the
// membership it observed before deciding. The store inserts it only if that
// membership is still current.
type Transition struct {
	Event     GeofenceEvent
	WasInside bool
}
