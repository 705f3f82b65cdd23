package models

import "time"

// Gate status events published on the status topic.
const (
	StatusDoorOpened = "door_opened"
	StatusDoorClosed = "door_closed"
)

// Online states tracked by the dashboard registry.
const (
	OnlineStatusOnline  = "online"
	OnlineStatusOffline = "offline"
)

// StatusUpdate reports an actuation event back to the dashboard, optionally
// carrying the detections that triggered it.
type StatusUpdate struct {
	GateID           string    `json:"gate_id"`
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	DetectionContext []string  `json:"detection_context,omitempty"`
}

// Heartbeat is the periodic liveness signal each gate publishes so the
// dashboard can mark it online or offline.
type Heartbeat struct {
	GateID    string    `json:"gate_id"`
	Timestamp time.Time `json:"timestamp"`
}

// GateSummary is the dashboard's view of a discovered gate.
type GateSummary struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`        // last reported gate state: "open", "closed" or "unknown"
	OnlineStatus string    `json:"online_status"` // "online" or "offline"
	LastSeen     time.Time `json:"last_seen"`
}
