// Package pidfile keeps a single focusflow daemon per user.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning is returned by New when the file names a live process.
var ErrAlreadyRunning = errors.New("another instance is already running")

// PIDFile is a claimed PID file.
type PIDFile struct {
	path string
	pid  int
}

// New claims path for the current process. A file left behind by a dead
// process is replaced.
func New(path string) (*PIDFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create PID directory: %w", err)
	}

	if existing, err := Read(path); err == nil {
		if Running(existing) {
			return nil, fmt.Errorf("%w (PID %d)", ErrAlreadyRunning, existing)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("failed to remove stale PID file: %w", err)
		}
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("failed to write PID file: %w", err)
	}
	return &PIDFile{path: path, pid: pid}, nil
}

// Remove deletes the file if it still holds our PID.
func (p *PIDFile) Remove() error {
	if p == nil {
		return nil
	}
	if pid, err := Read(p.path); err == nil && pid == p.pid {
		return os.Remove(p.path)
	}
	return nil
}

// Read returns the PID stored at path.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file %s: %w", path, err)
	}
	return pid, nil
}

// Running reports whether a process with pid exists.
func Running(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes without delivering anything.
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Path returns ~/.cache/focusflow/<name>.pid.
func Path(name string) string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "focusflow", name+".pid")
}
