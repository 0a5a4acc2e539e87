package attention

import "github.com/tiroq/focusflow/internal/config"

// distanceClassifier debounces the too-close popup so it fires once per
// close episode.
type distanceClassifier struct {
	popupShown bool
}

// classify maps a normalized distance onto a status. alert is true on the
// first tick of a too-close run. Any tick at or below the close threshold
// ends the run.
func (d *distanceClassifier) classify(dist float64, cfg config.EngineConfig) (status DistanceStatus, alert bool) {
	switch {
	case dist > cfg.CloseThreshold:
		if !d.popupShown {
			d.popupShown = true
			alert = true
		}
		return DistanceTooClose, alert
	case dist < cfg.FarThreshold:
		d.popupShown = false
		return DistanceTooFar, false
	default:
		d.popupShown = false
		return DistanceJustRight, false
	}
}
