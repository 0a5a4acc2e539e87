package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tiroq/focusflow/internal/config"
	"github.com/tiroq/focusflow/internal/diaglog"
	"github.com/tiroq/focusflow/internal/eventbus"
	"github.com/tiroq/focusflow/internal/ipc"
	"github.com/tiroq/focusflow/internal/log"
)

const playerTimeout = 5 * time.Second

func contextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}

// Start begins a monitoring session: the engine is reset and a new session
// id is assigned. Starting a running monitor does nothing.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.monitoring {
		m.mu.Unlock()
		return
	}
	m.engine.Reset()
	m.monitoring = true
	m.sessionID = uuid.NewString()
	m.ticks = 0
	m.subject = false
	m.lastError = ""
	session := m.sessionID
	mode := m.cfg.Engine.InputMode
	m.mu.Unlock()

	log.Info("monitoring started", "session_id", session, "mode", mode)
	m.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentMonitor,
		Event:     diaglog.EventSessionStart,
		SessionID: session,
		Payload:   map[string]interface{}{"mode": string(mode)},
	})
	m.statusChanged()
}

// Stop ends the session. The player is left as it is.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.monitoring {
		m.mu.Unlock()
		return
	}
	m.monitoring = false
	session, ticks := m.sessionID, m.ticks
	m.mu.Unlock()

	log.Info("monitoring stopped", "session_id", session, "ticks", ticks)
	m.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentMonitor,
		Event:     diaglog.EventSessionStop,
		SessionID: session,
		Payload:   map[string]interface{}{"ticks": ticks},
	})
	m.statusChanged()
}

// Toggle starts or stops monitoring.
func (m *Monitor) Toggle() {
	if m.Monitoring() {
		m.Stop()
	} else {
		m.Start()
	}
}

// Monitoring reports whether a session is running.
func (m *Monitor) Monitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.monitoring
}

// ToggleStrict flips strict mode and returns the new value.
func (m *Monitor) ToggleStrict() bool {
	m.mu.Lock()
	strict := !m.cfg.Engine.StrictMode
	m.cfg.Engine.StrictMode = strict
	m.engine.SetStrictMode(strict)
	session := m.sessionID
	m.mu.Unlock()

	log.Info("strict mode changed", "strict", strict)
	m.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentMonitor,
		Event:     diaglog.EventModeChange,
		SessionID: session,
		Payload:   map[string]interface{}{"strict_mode": strict},
	})
	m.statusChanged()
	return strict
}

// ToggleMode switches between face and gesture input and returns the new
// mode.
func (m *Monitor) ToggleMode() config.InputMode {
	m.mu.Lock()
	mode := config.ModeGesture
	if m.cfg.Engine.InputMode == config.ModeGesture {
		mode = config.ModeFace
	}
	// Both modes are valid, so this cannot fail.
	_ = m.engine.SetInputMode(mode)
	m.cfg.Engine.InputMode = mode
	session := m.sessionID
	m.mu.Unlock()

	log.Info("input mode changed", "mode", mode)
	m.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentMonitor,
		Event:     diaglog.EventModeChange,
		SessionID: session,
		Payload:   map[string]interface{}{"input_mode": string(mode)},
	})
	m.statusChanged()
	return mode
}

// Reset clears the engine's temporal state without ending the session.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.engine.Reset()
	m.subject = false
	session := m.sessionID
	m.mu.Unlock()

	log.Info("engine reset", "session_id", session)
	m.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentMonitor,
		Event:     diaglog.EventEngineReset,
		SessionID: session,
	})
	m.statusChanged()
}

// UpdateConfig applies cfg. An invalid configuration is rejected and the
// running one stays in effect.
func (m *Monitor) UpdateConfig(cfg *config.Config) error {
	err := cfg.Validate()
	m.mu.Lock()
	if err == nil {
		err = m.engine.UpdateConfig(cfg.Engine)
	}
	if err == nil {
		m.cfg = *cfg
	}
	session := m.sessionID
	m.mu.Unlock()

	if err != nil {
		log.Warn("config rejected", "error", err)
		m.diag.Log(diaglog.LogEntry{
			Component: diaglog.ComponentConfig,
			Event:     diaglog.EventConfigRejected,
			SessionID: session,
			Reason:    err.Error(),
		})
		return err
	}

	log.Info("config applied", "mode", cfg.Engine.InputMode, "strict", cfg.Engine.StrictMode)
	m.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentConfig,
		Event:     diaglog.EventConfigReload,
		SessionID: session,
		Payload:   configPayload(cfg),
	})
	m.statusChanged()
	return nil
}

func configPayload(cfg *config.Config) map[string]interface{} {
	return map[string]interface{}{
		"input_mode":      string(cfg.Engine.InputMode),
		"strict_mode":     cfg.Engine.StrictMode,
		"look_threshold":  cfg.Engine.LookThreshold,
		"close_threshold": cfg.Engine.CloseThreshold,
		"blink_threshold": cfg.Engine.BlinkThreshold,
		"pinch_threshold": cfg.Engine.PinchThreshold,
		"player_backend":  cfg.Player.Backend,
		"interval_ms":     cfg.Sampling.IntervalMS,
	}
}

// Execute runs a control command. CmdQuit returns ErrQuit.
func (m *Monitor) Execute(cmd ipc.Command) error {
	switch cmd {
	case ipc.CmdStart:
		m.Start()
	case ipc.CmdStop:
		m.Stop()
	case ipc.CmdToggle:
		m.Toggle()
	case ipc.CmdStrict:
		m.ToggleStrict()
	case ipc.CmdMode:
		m.ToggleMode()
	case ipc.CmdReset:
		m.Reset()
	case ipc.CmdQuit:
		return ErrQuit
	default:
		return fmt.Errorf("%w: %q", ipc.ErrUnknownCommand, cmd)
	}
	return nil
}

// statusChanged publishes and persists the status after a control change.
func (m *Monitor) statusChanged() {
	now := m.now()
	m.mu.Lock()
	status := m.statusDataLocked()
	m.lastStatus = status
	snapshot := m.snapshotLocked(now)
	m.lastWrite = now
	session := m.sessionID
	m.mu.Unlock()

	m.publish(eventbus.TypeStatus, session, now, status)
	m.writeStatus(snapshot)
}
