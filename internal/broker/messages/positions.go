package messages

import "time"

// PositionRecorded is consumed from the positions topic. Key = vehicle id.
type PositionRecorded struct {
	VehicleID string     `json:"vehicle_id"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Speed     *float64   `json:"speed,omitempty"`
	Heading   *float64   `json:"heading,omitempty"`
	Accuracy  *float64   `json:"accuracy,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}
