package attention

import (
	"fmt"
	"time"

	"github.com/tiroq/focusflow/internal/config"
	"github.com/tiroq/focusflow/internal/geometry"
	"github.com/tiroq/focusflow/internal/landmark"
)

// Engine owns the classifiers and all temporal state. It is not safe for
// concurrent use; callers serialize Evaluate, Reset and UpdateConfig.
type Engine struct {
	cfg config.EngineConfig

	playing bool
	seen    bool
	lastNow time.Time

	gaze       gazeClassifier
	distance   distanceClassifier
	drowsiness drowsinessMonitor
	gesture    gestureClassifier
}

// New creates an engine in its initial state (playing, all timers zero).
func New(cfg config.EngineConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg}
	e.Reset()
	return e, nil
}

// Reset returns all temporal state to its initial values. The
// configuration is kept.
func (e *Engine) Reset() {
	e.playing = true
	e.seen = false
	e.lastNow = time.Time{}
	e.gaze = gazeClassifier{}
	e.distance = distanceClassifier{}
	e.drowsiness = drowsinessMonitor{}
	e.gesture = gestureClassifier{}
}

// UpdateConfig swaps the configuration. An invalid configuration is
// rejected and the active one stays in effect.
func (e *Engine) UpdateConfig(cfg config.EngineConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("engine config rejected: %w", err)
	}
	e.cfg = cfg
	return nil
}

// Config returns the active configuration.
func (e *Engine) Config() config.EngineConfig {
	return e.cfg
}

// SetStrictMode toggles away-tick counting and refocus reminders.
func (e *Engine) SetStrictMode(strict bool) {
	e.cfg.StrictMode = strict
}

// SetInputMode switches between face and gesture evaluation. Temporal state
// is kept so switching back resumes where it left off.
func (e *Engine) SetInputMode(mode config.InputMode) error {
	cfg := e.cfg
	cfg.InputMode = mode
	return e.UpdateConfig(cfg)
}

// Playing reports the engine's view of the player.
func (e *Engine) Playing() bool {
	return e.playing
}

// State returns a copy of the temporal state.
func (e *Engine) State() State {
	return State{
		Playing:            e.playing,
		EyesClosed:         e.drowsiness.eyesClosed,
		BlinkCount:         e.drowsiness.count(),
		AwayTicks:          e.gaze.awayTicks,
		DrowsinessDetected: e.drowsiness.detected,
		LastDrowsyAlert:    e.drowsiness.lastAlert,
		HighBlinkRate:      e.drowsiness.highRate,
		ClosePopupShown:    e.distance.popupShown,
		LastGestureCommand: e.gesture.lastCommand,
	}
}

// Evaluate runs one tick. now must not go backwards; an earlier timestamp
// is treated as the last one seen. Evaluate never fails: missing or
// degenerate input is reported through the statuses.
func (e *Engine) Evaluate(snap landmark.Snapshot, now time.Time) Output {
	if e.seen && now.Before(e.lastNow) {
		now = e.lastNow
	}
	e.seen = true
	e.lastNow = now

	out := Output{
		At:      now,
		Mode:    e.cfg.InputMode,
		Command: CommandNone,
	}

	if e.cfg.InputMode == config.ModeGesture {
		e.evaluateGesture(snap.Hand, now, &out)
	} else {
		e.evaluateFace(snap.Face, now, &out)
	}

	out.Playing = e.playing
	out.BlinkCount = e.drowsiness.count()
	out.AwayTicks = e.gaze.awayTicks
	return out
}

func (e *Engine) evaluateFace(face *landmark.Face, now time.Time, out *Output) {
	m, err := geometry.Extract(face)
	if err != nil {
		out.Distance = DistanceNoFace
		out.Drowsiness = DrowsinessNoFace
		return
	}
	out.SubjectDetected = true
	out.Measurements = &m

	status, alerts := e.drowsiness.observe(m, e.cfg, now)
	out.Drowsiness = status
	out.Alerts = append(out.Alerts, alerts...)

	if m.DistanceAvailable {
		dist, alert := e.distance.classify(m.NormalizedDistance, e.cfg)
		out.Distance = dist
		if alert {
			out.Alerts = append(out.Alerts, AlertTooClose)
		}
	} else {
		out.Distance = DistanceNoFace
	}

	away := lookingAway(m, e.cfg)
	if e.gaze.observe(away, e.cfg) {
		out.Alerts = append(out.Alerts, AlertRefocusReminder)
	}
	out.Command = e.transition(!away)
}

func (e *Engine) evaluateGesture(hand *landmark.Hand, now time.Time, out *Output) {
	pinch, err := geometry.PinchDistance(hand)
	if err != nil {
		out.Gesture = GestureNoHand
		return
	}
	out.SubjectDetected = true
	out.Pinch = &pinch

	play := wantPlay(pinch, e.cfg)
	if play {
		out.Gesture = GestureOpen
	} else {
		out.Gesture = GesturePinch
	}

	if e.gesture.holding(now, e.cfg) {
		return
	}
	out.Command = e.transition(play)
	if out.Command != CommandNone {
		e.gesture.commandIssued(now)
	}
}

// transition moves the playback flag toward play and returns the command
// for the change, or CommandNone if the player is already there.
func (e *Engine) transition(play bool) Command {
	if play == e.playing {
		return CommandNone
	}
	e.playing = play
	if play {
		return CommandPlay
	}
	return CommandPause
}
