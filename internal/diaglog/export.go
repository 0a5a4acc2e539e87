package diaglog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/tiroq/focusflow/internal/config"
)

// Version is set by the binaries before exporting.
var Version = "dev"

// maxLineSize bounds a single NDJSON entry when reading the log back.
const maxLineSize = 1024 * 1024

// DiagBundle is the first line of an export.
type DiagBundle struct {
	ExportedAt string               `json:"exported_at"`
	Version    string               `json:"focusflow_version"`
	GoVersion  string               `json:"go_version"`
	OS         string               `json:"os"`
	Arch       string               `json:"arch"`
	LogFiles   []string             `json:"log_files"` // oldest first
	EntryCount int                  `json:"entry_count"`
	Sessions   []string             `json:"sessions"` // in order of first appearance
	Engine     *config.EngineConfig `json:"engine,omitempty"`
}

// Export concatenates the rolled backups of logPath and logPath itself,
// oldest first, into dest/focusflow-diag-<ts>.ndjson behind a DiagBundle
// header. engine, when set, records the thresholds in effect. It returns
// the written path and the number of log lines included.
func Export(logPath, dest string, engine *config.EngineConfig) (path string, lines int, err error) {
	if _, err := os.Stat(logPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", 0, fmt.Errorf("log file not found at %s: %w", logPath, os.ErrNotExist)
		}
		return "", 0, fmt.Errorf("log file unreadable: %w", err)
	}
	files := append(Backups(logPath), logPath)

	var (
		entries  [][]byte
		sessions []string
		seen     = make(map[string]bool)
	)
	for _, name := range files {
		fileLines, err := readLines(name)
		if err != nil {
			return "", 0, fmt.Errorf("log file %s unreadable: %w", name, err)
		}
		for _, line := range fileLines {
			var e struct {
				SessionID string `json:"session_id"`
			}
			if json.Unmarshal(line, &e) == nil && e.SessionID != "" && !seen[e.SessionID] {
				seen[e.SessionID] = true
				sessions = append(sessions, e.SessionID)
			}
		}
		entries = append(entries, fileLines...)
	}

	now := time.Now().UTC()
	outPath := filepath.Join(dest, "focusflow-diag-"+now.Format("20060102T150405")+".ndjson")
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", 0, fmt.Errorf("output file could not be created: %w", err)
	}
	defer func() { _ = out.Close() }()

	if sessions == nil {
		sessions = []string{}
	}
	header, err := json.Marshal(DiagBundle{
		ExportedAt: now.Format(time.RFC3339),
		Version:    Version,
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		LogFiles:   files,
		EntryCount: len(entries),
		Sessions:   sessions,
		Engine:     engine,
	})
	if err != nil {
		return "", 0, err
	}

	w := bufio.NewWriter(out)
	if _, err := w.Write(append(header, '\n')); err != nil {
		return "", 0, err
	}
	for _, line := range entries {
		if _, err := w.Write(append(line, '\n')); err != nil {
			return "", 0, err
		}
	}
	if err := w.Flush(); err != nil {
		return "", 0, err
	}
	return outPath, len(entries), nil
}

func readLines(name string) ([][]byte, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var lines [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), scanner.Bytes()...))
	}
	return lines, scanner.Err()
}
