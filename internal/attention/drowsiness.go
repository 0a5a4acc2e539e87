package attention

import (
	"time"

	"github.com/tiroq/focusflow/internal/config"
	"github.com/tiroq/focusflow/internal/geometry"
)

// BlinkWindow is the span over which blinks are counted for the blink rate.
const BlinkWindow = 60 * time.Second

// drowsinessMonitor tracks eyelid transitions, the blink window and head
// posture, and throttles drowsy alerts.
type drowsinessMonitor struct {
	eyesClosed bool
	blinkStart time.Time
	blinks     []time.Time // ascending

	detected  bool
	alerted   bool
	lastAlert time.Time

	highRate bool
}

// observe evaluates one face tick.
func (d *drowsinessMonitor) observe(m geometry.Measurements, cfg config.EngineConfig, now time.Time) (DrowsinessStatus, []Alert) {
	var alerts []Alert

	if m.EAR < cfg.BlinkThreshold {
		if !d.eyesClosed {
			d.eyesClosed = true
			d.blinkStart = now
			d.blinks = append(d.blinks, now)
		}
	} else if d.eyesClosed {
		d.eyesClosed = false
		if now.Sub(d.blinkStart) > cfg.DrowsyBlinkDuration() {
			d.detected = true
		}
	}

	d.prune(now)

	if m.HeadTiltAvailable && m.HeadTilt > cfg.HeadTiltThreshold {
		d.detected = true
	}

	fired := false
	if d.detected && (!d.alerted || now.Sub(d.lastAlert) > cfg.DrowsyAlertCooldown()) {
		alerts = append(alerts, AlertDrowsy)
		d.alerted = true
		d.lastAlert = now
		d.detected = false
		fired = true
	}

	high := float64(len(d.blinks)) > cfg.BlinksPerMinuteThreshold
	if high && !d.highRate {
		alerts = append(alerts, AlertHighBlinkRate)
	}
	d.highRate = high

	switch {
	case high:
		return DrowsinessHighBlinkRate, alerts
	case fired || d.detected:
		return DrowsinessDrowsy, alerts
	default:
		return DrowsinessAlert, alerts
	}
}

// prune drops blinks older than BlinkWindow. A blink exactly BlinkWindow
// old still counts.
func (d *drowsinessMonitor) prune(now time.Time) {
	cut := 0
	for cut < len(d.blinks) && now.Sub(d.blinks[cut]) > BlinkWindow {
		cut++
	}
	if cut > 0 {
		d.blinks = append(d.blinks[:0], d.blinks[cut:]...)
	}
}

// count returns the number of blinks in the window as of the last prune.
func (d *drowsinessMonitor) count() int {
	return len(d.blinks)
}
