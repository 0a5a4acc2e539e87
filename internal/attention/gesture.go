package attention

import (
	"time"

	"github.com/tiroq/focusflow/internal/config"
)

// gestureClassifier maps the thumb-index pinch onto playback. After each
// command it holds off for a real-time window so jitter around the
// threshold cannot toggle playback every frame.
type gestureClassifier struct {
	commanded   bool
	lastCommand time.Time
}

// holding reports whether now falls inside the hold-off after the last
// command.
func (g *gestureClassifier) holding(now time.Time, cfg config.EngineConfig) bool {
	return g.commanded && now.Sub(g.lastCommand) < cfg.GestureHoldOff()
}

// wantPlay is true when the fingers are apart.
func wantPlay(pinch float64, cfg config.EngineConfig) bool {
	return pinch >= cfg.PinchThreshold
}

func (g *gestureClassifier) commandIssued(now time.Time) {
	g.commanded = true
	g.lastCommand = now
}
