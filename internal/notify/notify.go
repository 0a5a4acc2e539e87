// Package notify presents engine alerts to the user as desktop
// notifications.
package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/tiroq/focusflow/internal/attention"
	"github.com/tiroq/focusflow/internal/log"
)

// Notifier shows one notification.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
	Name() string
}

// Message returns the title and text shown for alert a.
func Message(a attention.Alert) (title, message string) {
	switch a {
	case attention.AlertTooClose:
		return "Too Close", "You are too close to the screen. Please move back!"
	case attention.AlertDrowsy:
		return "Drowsiness Alert", "You appear to be drowsy! Consider taking a break."
	case attention.AlertHighBlinkRate:
		return "High Blink Rate", "You are blinking a lot. Rest your eyes for a moment."
	case attention.AlertRefocusReminder:
		return "Refocus", "You've been looking away for too long. Time to refocus!"
	default:
		return "FocusFlow", string(a)
	}
}

// Alert shows the notification for a.
func Alert(ctx context.Context, n Notifier, a attention.Alert) error {
	title, message := Message(a)
	return n.Notify(ctx, title, message)
}

type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Command shows notifications by running a platform tool.
type Command struct {
	tool string
	run  runner
}

// Notify implements Notifier.
func (c *Command) Notify(ctx context.Context, title, message string) error {
	var args []string
	switch c.tool {
	case "osascript":
		script := fmt.Sprintf(`display notification "%s" with title "FocusFlow" subtitle "%s"`,
			escapeAppleScript(message), escapeAppleScript(title))
		args = []string{"-e", script}
	case "notify-send":
		args = []string{"--app-name=FocusFlow", "--urgency=normal", title, message}
	default:
		return fmt.Errorf("unsupported notification tool %q", c.tool)
	}

	if out, err := c.run(ctx, c.tool, args...); err != nil {
		return fmt.Errorf("%s: %w (output: %s)", c.tool, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Name implements Notifier.
func (c *Command) Name() string { return c.tool }

// Log writes notifications to the log only.
type Log struct{}

// Notify implements Notifier.
func (Log) Notify(_ context.Context, title, message string) error {
	log.Warn("alert", "title", title, "message", message)
	return nil
}

// Name implements Notifier.
func (Log) Name() string { return "log" }

// NewDesktop picks osascript on macOS and notify-send on Linux, falling
// back to Log when the tool is not installed.
func NewDesktop() Notifier {
	return newDesktop(runtime.GOOS, exec.LookPath, execRunner)
}

func newDesktop(goos string, lookPath func(string) (string, error), run runner) Notifier {
	var tool string
	switch goos {
	case "darwin":
		tool = "osascript"
	case "linux", "freebsd", "openbsd":
		tool = "notify-send"
	default:
		return Log{}
	}
	if _, err := lookPath(tool); err != nil {
		log.Debug("notification tool not found, alerts go to the log", "tool", tool)
		return Log{}
	}
	return &Command{tool: tool, run: run}
}

// escapeAppleScript escapes s for use inside an AppleScript string literal.
func escapeAppleScript(s string) string {
	var b strings.Builder
	for _, ch := range s {
		switch ch {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}
