package attention

import (
	"math"

	"github.com/tiroq/focusflow/internal/config"
	"github.com/tiroq/focusflow/internal/geometry"
)

// lookingAway reports whether the head points off screen.
func lookingAway(m geometry.Measurements, cfg config.EngineConfig) bool {
	return math.Abs(m.NormHTilt) > cfg.LookThreshold ||
		math.Abs(m.NormVTilt) > cfg.LookThreshold ||
		math.Abs(m.NoseDisplacement) > cfg.SideLookThreshold
}

// gazeClassifier counts consecutive away ticks in strict mode.
type gazeClassifier struct {
	awayTicks int
}

// observe records one face tick and reports whether a refocus reminder is
// due. The counter only advances in strict mode and resets whenever the
// user looks back or the reminder fires.
func (g *gazeClassifier) observe(away bool, cfg config.EngineConfig) (refocus bool) {
	if !away {
		g.awayTicks = 0
		return false
	}
	if !cfg.StrictMode {
		return false
	}

	g.awayTicks++
	if float64(g.awayTicks) > cfg.AwayAlertThreshold {
		g.awayTicks = 0
		return true
	}
	return false
}
