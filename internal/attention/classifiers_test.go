package attention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tiroq/focusflow/internal/config"
	"github.com/tiroq/focusflow/internal/geometry"
)

func TestDistanceClassifier_scenario(t *testing.T) {
	cfg := config.DefaultEngineConfig() // close 0.0001, far 0
	var d distanceClassifier

	dists := []float64{0.00005, 0.00005, 0.00015, 0.00015, 0.00005}
	want := []DistanceStatus{DistanceJustRight, DistanceJustRight, DistanceTooClose, DistanceTooClose, DistanceJustRight}
	wantAlert := []bool{false, false, true, false, false}

	for i, dist := range dists {
		status, alert := d.classify(dist, cfg)
		assert.Equal(t, want[i], status, "tick %d", i+1)
		assert.Equal(t, wantAlert[i], alert, "tick %d", i+1)
	}
}

func TestDistanceClassifier_boundaries(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.FarThreshold = 0.00002

	tests := []struct {
		dist float64
		want DistanceStatus
	}{
		{0.0001, DistanceJustRight}, // equal to close
		{0.00002, DistanceJustRight}, // equal to far
		{0.00001, DistanceTooFar},
		{0.0, DistanceTooFar},
		{0.00011, DistanceTooClose},
	}

	for _, tt := range tests {
		var d distanceClassifier
		status, _ := d.classify(tt.dist, cfg)
		assert.Equal(t, tt.want, status, "dist=%v", tt.dist)
	}
}

func TestDistanceClassifier_tooFarDefaultUnreachable(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	var d distanceClassifier
	status, _ := d.classify(0, cfg)
	assert.Equal(t, DistanceJustRight, status)
}

func TestDistanceClassifier_tooFarRearmsPopup(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.FarThreshold = 0.00002
	var d distanceClassifier

	_, alert := d.classify(0.001, cfg)
	assert.True(t, alert)
	status, _ := d.classify(0.00001, cfg)
	assert.Equal(t, DistanceTooFar, status)
	_, alert = d.classify(0.001, cfg)
	assert.True(t, alert)
}

func TestGazeClassifier(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.StrictMode = true
	cfg.AwayAlertThreshold = 2
	var g gazeClassifier

	assert.False(t, g.observe(true, cfg))
	assert.False(t, g.observe(true, cfg))
	assert.True(t, g.observe(true, cfg))
	assert.Equal(t, 0, g.awayTicks)

	g.observe(true, cfg)
	g.observe(false, cfg)
	assert.Equal(t, 0, g.awayTicks)
}

func TestLookingAway(t *testing.T) {
	cfg := config.DefaultEngineConfig()

	tests := []struct {
		name string
		m    geometry.Measurements
		want bool
	}{
		{"centred", geometry.Measurements{NormVTilt: -0.08}, false},
		{"horizontal tilt", geometry.Measurements{NormHTilt: 0.13}, true},
		{"vertical tilt", geometry.Measurements{NormVTilt: -0.2}, true},
		{"side look", geometry.Measurements{NoseDisplacement: -0.011}, true},
		{"at side-look threshold", geometry.Measurements{NoseDisplacement: 0.01}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lookingAway(tt.m, cfg))
		})
	}
}

// Scenario A on bare measurements.
func TestDrowsinessMonitor_longBlink(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.DrowsyAlertCooldownSecs = 0
	var d drowsinessMonitor

	ears := []float64{0.6, 0.6, 0.4, 0.4, 0.4, 0.6}
	for i, ear := range ears {
		now := t0.Add(time.Duration(i) * 200 * time.Millisecond)
		// Hold the alert back so the detected flag stays observable.
		d.alerted, d.lastAlert = true, now
		d.observe(geometry.Measurements{EAR: ear}, cfg, now)

		switch i + 1 {
		case 3:
			assert.True(t, d.eyesClosed)
			assert.Equal(t, now, d.blinkStart)
		case 6:
			assert.False(t, d.eyesClosed)
			assert.True(t, d.detected, "0.6 s blink exceeds 0.5 s")
		default:
			assert.False(t, d.detected)
		}
	}
}

// The firing tick reports drowsy even though the flag is consumed; the next
// tick reads alert again.
func TestDrowsinessMonitor_firingTickReadsDrowsy(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	var d drowsinessMonitor

	d.observe(geometry.Measurements{EAR: 0.4}, cfg, t0)
	status, alerts := d.observe(geometry.Measurements{EAR: 0.6}, cfg, t0.Add(time.Second))
	assert.Equal(t, []Alert{AlertDrowsy}, alerts)
	assert.False(t, d.detected)
	assert.Equal(t, DrowsinessDrowsy, status)

	status, alerts = d.observe(geometry.Measurements{EAR: 0.6}, cfg, t0.Add(1100*time.Millisecond))
	assert.Empty(t, alerts)
	assert.Equal(t, DrowsinessAlert, status)
}

func TestDrowsinessMonitor_shortBlinkIsNotDrowsy(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	var d drowsinessMonitor

	d.observe(geometry.Measurements{EAR: 0.4}, cfg, t0)
	status, alerts := d.observe(geometry.Measurements{EAR: 0.6}, cfg, t0.Add(500*time.Millisecond))
	assert.False(t, d.detected, "exactly the drowsy duration is not longer than it")
	assert.Empty(t, alerts)
	assert.Equal(t, DrowsinessAlert, status)
}

func TestDrowsinessMonitor_blinkWindow(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	var d drowsinessMonitor

	blink := func(at time.Time) {
		d.observe(geometry.Measurements{EAR: 0.1}, cfg, at)
		d.observe(geometry.Measurements{EAR: 0.9}, cfg, at.Add(100*time.Millisecond))
	}
	blink(t0)
	blink(t0.Add(30 * time.Second))
	blink(t0.Add(45 * time.Second))

	tests := []struct {
		after time.Duration
		want  int
	}{
		{59 * time.Second, 3},
		{60 * time.Second, 3}, // exactly 60 s old still counts
		{60*time.Second + time.Millisecond, 2},
		{90 * time.Second, 2},
		{105*time.Second + time.Millisecond, 0},
	}

	for _, tt := range tests {
		d.observe(geometry.Measurements{EAR: 0.9}, cfg, t0.Add(tt.after))
		assert.Equal(t, tt.want, d.count(), "after %v", tt.after)
	}
}

func TestDrowsinessMonitor_statusPrecedence(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.BlinksPerMinuteThreshold = 0
	cfg.HeadTiltThreshold = 0.1

	var d drowsinessMonitor
	status, alerts := d.observe(geometry.Measurements{EAR: 0.1, HeadTilt: 0.5, HeadTiltAvailable: true}, cfg, t0)
	assert.Equal(t, DrowsinessHighBlinkRate, status)
	assert.ElementsMatch(t, []Alert{AlertDrowsy, AlertHighBlinkRate}, alerts)
}
