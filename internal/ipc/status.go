package ipc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// StatusSnapshot represents the daemon state at a point in time. Engine
// enums are carried as their string values so readers need not import the
// engine.
type StatusSnapshot struct {
	Monitoring      bool      `json:"monitoring"`                 // Sampling loop evaluating ticks
	SessionID       string    `json:"session_id,omitempty"`       // Current monitoring session
	InputMode       string    `json:"input_mode"`                 // face or gesture
	StrictMode      bool      `json:"strict_mode"`                // Refocus reminders enabled
	Playing         bool      `json:"playing"`                    // Engine's view of the player
	SubjectDetected bool      `json:"subject_detected"`           // Face/hand present on last tick
	Distance        string    `json:"distance,omitempty"`         // Last distance status
	Drowsiness      string    `json:"drowsiness,omitempty"`       // Last drowsiness status
	Gesture         string    `json:"gesture,omitempty"`          // Last gesture status
	BlinkCount      int       `json:"blink_count"`                // Blinks in the last minute
	AwayTicks       int       `json:"away_ticks"`                 // Consecutive away ticks (strict mode)
	LastCommand     string    `json:"last_command,omitempty"`     // Last play/pause sent
	LastAlert       string    `json:"last_alert,omitempty"`       // Last alert fired
	LastAlertAt     time.Time `json:"last_alert_at,omitempty"`    // When it fired
	LastError       string    `json:"last_error,omitempty"`       // Last error message
	PlayerConnected bool      `json:"player_connected"`           // Actuator reachable
	Ticks           uint64    `json:"ticks"`                      // Ticks evaluated this session
	Timestamp       time.Time `json:"timestamp"`                  // Snapshot time
}

// StatusPath returns the status file path.
func StatusPath() string {
	return filepath.Join(Dir(), "status.json")
}

// WriteStatus persists StatusSnapshot to ~/.cache/focusflow/status.json using atomic write
func WriteStatus(status *StatusSnapshot) error {
	if err := os.MkdirAll(Dir(), 0755); err != nil {
		return err
	}
	return atomicWriteJSON(StatusPath(), status)
}

// ReadStatus loads StatusSnapshot from ~/.cache/focusflow/status.json
func ReadStatus() (*StatusSnapshot, error) {
	data, err := os.ReadFile(StatusPath())
	if err != nil {
		return nil, err
	}

	var status StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}

	return &status, nil
}

// atomicWriteJSON writes data to a file atomically using temp file + rename
func atomicWriteJSON(path string, data interface{}) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "status-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	// Ensure cleanup on error
	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return err
	}

	// Sync to disk before rename
	if err := tmpFile.Sync(); err != nil {
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}
	tmpFile = nil // Prevent defer cleanup

	return os.Rename(tmpPath, path)
}
