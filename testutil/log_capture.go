// Package testutil holds helpers shared by focusflow tests.
package testutil

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/tiroq/focusflow/internal/log"
)

// LogCapture records everything written through internal/log.
type LogCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// CaptureLogs redirects the global logger to a buffer at debug level until
// the test ends.
func CaptureLogs(t *testing.T) *LogCapture {
	t.Helper()
	t.Setenv("GO_ENV", "")
	lc := &LogCapture{}
	log.InitWriter(lc, "debug")
	t.Cleanup(func() { log.Init("error") })
	return lc
}

// Write implements io.Writer.
func (lc *LogCapture) Write(p []byte) (int, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.Write(p)
}

// String returns all captured output.
func (lc *LogCapture) String() string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.String()
}

// Reset clears the buffer.
func (lc *LogCapture) Reset() {
	lc.mu.Lock()
	lc.buf.Reset()
	lc.mu.Unlock()
}

// Contains reports whether the output contains substr.
func (lc *LogCapture) Contains(substr string) bool {
	return strings.Contains(lc.String(), substr)
}

// Count returns how many times substr appears.
func (lc *LogCapture) Count(substr string) int {
	return strings.Count(lc.String(), substr)
}

// Lines returns the captured records, one per line.
func (lc *LogCapture) Lines() []string {
	content := strings.TrimSpace(lc.String())
	if content == "" {
		return []string{}
	}
	return strings.Split(content, "\n")
}

// LinesWith returns the records containing every one of substrs.
func (lc *LogCapture) LinesWith(substrs ...string) []string {
	var out []string
	for _, line := range lc.Lines() {
		match := true
		for _, s := range substrs {
			if !strings.Contains(line, s) {
				match = false
				break
			}
		}
		if match {
			out = append(out, line)
		}
	}
	return out
}
