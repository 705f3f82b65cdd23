package models

import "time"

// Command actions accepted over the command topic. The listener ignores
// anything else so newer dashboards can ship commands older gates do not
// understand yet.
const (
	ActionOpenDoor    = "OPEN_DOOR"
	ActionCloseDoor   = "CLOSE_DOOR"
	ActionStartStream = "START_STREAM"
	ActionStopStream  = "STOP_STREAM"
)

// Command is a remote control instruction delivered to a gate. Only Action
// is required on the wire; ID, GateID and Timestamp are filled in by
// whichever side first handles the message.
type Command struct {
	ID        string    `json:"id,omitempty"`
	Action    string    `json:"action"`
	GateID    string    `json:"gate_id,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}
