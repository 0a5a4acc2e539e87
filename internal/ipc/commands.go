package ipc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnknownCommand is returned for command text the daemon does not know.
var ErrUnknownCommand = errors.New("unknown command")

// Command represents user commands from focusflow-ctl or the web API to the
// daemon
type Command string

const (
	CmdStart  Command = "start"  // Start monitoring (new session)
	CmdStop   Command = "stop"   // Stop monitoring
	CmdToggle Command = "toggle" // Toggle monitoring
	CmdStrict Command = "strict" // Toggle strict mode
	CmdMode   Command = "mode"   // Switch between face and gesture input
	CmdReset  Command = "reset"  // Reset engine temporal state
	CmdQuit   Command = "quit"   // Shutdown daemon
)

// Commands lists every known command.
var Commands = []Command{CmdStart, CmdStop, CmdToggle, CmdStrict, CmdMode, CmdReset, CmdQuit}

// ParseCommand validates command text.
func ParseCommand(s string) (Command, error) {
	cmd := Command(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Commands {
		if cmd == known {
			return cmd, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// Dir returns ~/.cache/focusflow.
func Dir() string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "focusflow")
}

// CommandPath returns the command file path.
func CommandPath() string {
	return filepath.Join(Dir(), "cmd.txt")
}

// WriteCommand writes a command to ~/.cache/focusflow/cmd.txt
func WriteCommand(cmd Command) error {
	if _, err := ParseCommand(string(cmd)); err != nil {
		return err
	}
	if err := os.MkdirAll(Dir(), 0755); err != nil {
		return err
	}
	return os.WriteFile(CommandPath(), []byte(string(cmd)), 0644)
}

// ReadCommand reads and clears ~/.cache/focusflow/cmd.txt
// Returns empty string if no command or file doesn't exist. Unknown text is
// cleared and reported as ErrUnknownCommand.
func ReadCommand() (Command, error) {
	cmdPath := CommandPath()

	data, err := os.ReadFile(cmdPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil // No command pending
		}
		return "", err
	}

	// Clear the file immediately to prevent re-execution
	if err := os.WriteFile(cmdPath, []byte(""), 0644); err != nil {
		return "", err
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", nil
	}
	return ParseCommand(text)
}
