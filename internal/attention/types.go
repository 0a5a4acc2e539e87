// Package attention is the per-frame attention and drowsiness state engine.
// It consumes landmark snapshots with a caller-supplied timestamp and returns
// playback commands, statuses and alerts. It performs no I/O and reads no
// clock.
package attention

import (
	"time"

	"github.com/tiroq/focusflow/internal/config"
	"github.com/tiroq/focusflow/internal/geometry"
)

// Command is a playback instruction for the actuator.
type Command string

const (
	CommandNone  Command = "none"
	CommandPlay  Command = "play"
	CommandPause Command = "pause"
)

// DistanceStatus classifies viewing distance. Empty when not evaluated
// (gesture mode).
type DistanceStatus string

const (
	DistanceTooClose  DistanceStatus = "too_close"
	DistanceTooFar    DistanceStatus = "too_far"
	DistanceJustRight DistanceStatus = "just_right"
	DistanceNoFace    DistanceStatus = "no_face_detected"
)

// DrowsinessStatus is the display status of the drowsiness monitor, in
// precedence order HighBlinkRate > Drowsy > Alert.
type DrowsinessStatus string

const (
	DrowsinessAlert         DrowsinessStatus = "alert"
	DrowsinessDrowsy        DrowsinessStatus = "drowsy"
	DrowsinessHighBlinkRate DrowsinessStatus = "high_blink_rate"
	DrowsinessNoFace        DrowsinessStatus = "no_face_detected"
)

// GestureStatus describes the hand in gesture mode.
type GestureStatus string

const (
	GesturePinch  GestureStatus = "pinch"
	GestureOpen   GestureStatus = "open"
	GestureNoHand GestureStatus = "no_hand_detected"
)

// Alert is a one-shot notification fired on a tick.
type Alert string

const (
	AlertTooClose        Alert = "too_close"
	AlertDrowsy          Alert = "drowsy"
	AlertHighBlinkRate   Alert = "high_blink_rate"
	AlertRefocusReminder Alert = "refocus_reminder"
)

// Output is the result of one tick.
type Output struct {
	At              time.Time        `json:"at"`
	Mode            config.InputMode `json:"mode"`
	Command         Command          `json:"command"`
	Distance        DistanceStatus   `json:"distance,omitempty"`
	Drowsiness      DrowsinessStatus `json:"drowsiness,omitempty"`
	Gesture         GestureStatus    `json:"gesture,omitempty"`
	Alerts          []Alert          `json:"alerts,omitempty"`
	SubjectDetected bool             `json:"subject_detected"`
	Playing         bool             `json:"playing"`
	BlinkCount      int              `json:"blink_count"`
	AwayTicks       int              `json:"away_ticks"`

	Measurements *geometry.Measurements `json:"measurements,omitempty"`
	Pinch        *float64               `json:"pinch,omitempty"`
}

// Has reports whether alert a fired on this tick.
func (o Output) Has(a Alert) bool {
	for _, fired := range o.Alerts {
		if fired == a {
			return true
		}
	}
	return false
}

// State is a read-only copy of the engine's temporal state.
type State struct {
	Playing            bool      `json:"playing"`
	EyesClosed         bool      `json:"eyes_closed"`
	BlinkCount         int       `json:"blink_count"`
	AwayTicks          int       `json:"away_ticks"`
	DrowsinessDetected bool      `json:"drowsiness_detected"`
	LastDrowsyAlert    time.Time `json:"last_drowsy_alert,omitempty"`
	HighBlinkRate      bool      `json:"high_blink_rate"`
	ClosePopupShown    bool      `json:"close_popup_shown"`
	LastGestureCommand time.Time `json:"last_gesture_command,omitempty"`
}
