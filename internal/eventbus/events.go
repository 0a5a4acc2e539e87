package eventbus

import "time"

// Type names a stream of events.
type Type string

const (
	TypePlayback Type = "playback" // a play/pause command was issued
	TypeAlert    Type = "alert"    // an alert fired
	TypeStatus   Type = "status"   // the visible status changed
)

// Types lists every event type.
var Types = []Type{TypePlayback, TypeAlert, TypeStatus}

// Event is one message on the bus.
type Event struct {
	Type      Type        `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// PlaybackData is the payload of TypePlayback.
type PlaybackData struct {
	Command string `json:"command"`         // "play" or "pause"
	Reason  string `json:"reason"`          // e.g. "looking_away", "pinch"
	Backend string `json:"backend"`         // player backend name
	Error   string `json:"error,omitempty"` // actuation failure, if any
}

// AlertData is the payload of TypeAlert.
type AlertData struct {
	Alert   string `json:"alert"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// StatusData is the payload of TypeStatus.
type StatusData struct {
	Monitoring      bool   `json:"monitoring"`
	InputMode       string `json:"input_mode"`
	StrictMode      bool   `json:"strict_mode"`
	Playing         bool   `json:"playing"`
	SubjectDetected bool   `json:"subject_detected"`
	Distance        string `json:"distance,omitempty"`
	Drowsiness      string `json:"drowsiness,omitempty"`
	Gesture         string `json:"gesture,omitempty"`
	BlinkCount      int    `json:"blink_count"`
	AwayTicks       int    `json:"away_ticks"`
}
