package messages

import "time"

type GeofenceTransition struct {
	EventID    string    `json:"event_id"`
	GeofenceID string    `json:"geofence_id"`
	VehicleID  string    `json:"vehicle_id"`
	CampaignID string    `json:"campaign_id"`
	EventType  string    `json:"event_type"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Timestamp  time.Time `json:"timestamp"`
}
