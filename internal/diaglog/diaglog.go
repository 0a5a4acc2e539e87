// Package diaglog provides structured NDJSON diagnostic logging for
// focusflow. Activated by FOCUSFLOW_DEBUG=true. When the env var is absent,
// all Log calls are no-ops and no file is created.
package diaglog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// ── Component labels ────────────────────────────────────────────────────────

const (
	ComponentEngine     = "attention-engine"
	ComponentMonitor    = "monitor"
	ComponentPlayer     = "player"
	ComponentIngest     = "landmark-ingest"
	ComponentConfig     = "config-watcher"
	ComponentPublisher  = "publisher"
	ComponentCore       = "focusflow-core"
	ComponentDiagExport = "diag-export"
)

// ── Event names ─────────────────────────────────────────────────────────────

const (
	EventStartup          = "startup"
	EventShutdown         = "shutdown"
	EventSessionStart     = "session_start"
	EventSessionStop      = "session_stop"
	EventEngineReset      = "engine_reset"
	EventPlaybackCommand  = "playback_command"
	EventAlert            = "alert"
	EventStatusChange     = "status_change"
	EventSubjectLost      = "subject_lost"
	EventSubjectFound     = "subject_found"
	EventModeChange       = "mode_change"
	EventConfigReload     = "config_reload"
	EventConfigRejected   = "config_rejected"
	EventPlayerConnect    = "player_connect"
	EventPlayerDisconnect = "player_disconnect"
	EventPlayerReconnect  = "player_reconnect_attempt"
	EventPlayerError      = "player_error"
	EventIngestConnect    = "ingest_connect"
	EventIngestDisconnect = "ingest_disconnect"
	EventIngestRejected   = "ingest_rejected"
	EventPublishFailed    = "publish_failed"
)

// ── LogEntry ─────────────────────────────────────────────────────────────────

// LogEntry is one structured event record written as a single JSON line.
type LogEntry struct {
	Timestamp string      `json:"ts"`                   // RFC3339Nano
	Component string      `json:"component"`            // see Component* constants
	Event     string      `json:"event"`                // see Event* constants
	SessionID string      `json:"session_id,omitempty"` // monitoring session
	Reason    string      `json:"reason,omitempty"`
	Payload   interface{} `json:"payload,omitempty"` // redacted before write
}

// ── Logger ───────────────────────────────────────────────────────────────────

// Logger writes LogEntry values to a rolling NDJSON file. When debug mode is
// disabled every Log call is a no-op.
type Logger struct {
	rw      *rollingWriter
	enabled bool
}

// New opens (or creates) the NDJSON log file at path, rolling it as opts
// says. If debug mode is disabled, path is ignored and a no-op logger is
// returned.
func New(path string, opts Options) (*Logger, error) {
	if !IsDebugEnabled() {
		return &Logger{enabled: false}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	rw, err := newRollingWriter(path, opts, nil)
	if err != nil {
		return nil, err
	}
	return &Logger{rw: rw, enabled: true}, nil
}

// Log serialises entry to JSON, appends a newline, and writes to the rolling
// file. Sensitive payload fields are redacted before serialisation.
func (l *Logger) Log(entry LogEntry) {
	if l == nil || !l.enabled {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if entry.Payload != nil {
		entry.Payload = Redact(entry.Payload)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	_, _ = l.rw.Write(data)
}

// Enabled reports whether entries are actually written.
func (l *Logger) Enabled() bool {
	return l != nil && l.enabled
}

// Close flushes and closes the underlying file. Safe on nil/disabled logger.
func (l *Logger) Close() error {
	if l == nil || !l.enabled || l.rw == nil {
		return nil
	}
	return l.rw.close()
}

// IsDebugEnabled reports whether FOCUSFLOW_DEBUG is set to "true".
func IsDebugEnabled() bool {
	return os.Getenv("FOCUSFLOW_DEBUG") == "true"
}

// DefaultPath returns ~/.cache/focusflow/diag.ndjson.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "focusflow", "diag.ndjson")
}

// NewNoOp returns a logger where every Log call is a no-op. Use as a safe
// fallback when New fails (e.g., disk full, permissions error).
func NewNoOp() *Logger {
	return &Logger{enabled: false}
}
