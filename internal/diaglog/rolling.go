package diaglog

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tiroq/focusflow/internal/config"
)

// Options controls when the diagnostic file rolls over.
type Options struct {
	MaxSize int64         // bytes; 0 means unbounded
	MaxAge  time.Duration // 0 disables age-based rolling
	Backups int           // rolled files kept as <path>.1 (newest) .. <path>.N
}

// DefaultOptions matches config.Default().Diag.
func DefaultOptions() Options {
	return OptionsFrom(config.Default().Diag)
}

// OptionsFrom converts the diag section of the daemon config.
func OptionsFrom(c config.DiagConfig) Options {
	return Options{MaxSize: c.MaxSize(), MaxAge: c.MaxAge(), Backups: c.Backups}
}

func backupName(path string, n int) string {
	return fmt.Sprintf("%s.%d", path, n)
}

// Backups returns the rolled files that exist next to path, oldest first.
func Backups(path string) []string {
	var names []string
	for n := 1; ; n++ {
		name := backupName(path, n)
		if _, err := os.Stat(name); err != nil {
			break
		}
		names = append(names, name)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return names
}

// rollingWriter appends to path and rolls it before a write that would
// pass MaxSize, or once the file is older than MaxAge. With no backups the
// file is truncated in place.
type rollingWriter struct {
	mu      sync.Mutex
	path    string
	opts    Options
	now     func() time.Time
	f       *os.File
	size    int64
	started time.Time
}

func newRollingWriter(path string, opts Options, now func() time.Time) (*rollingWriter, error) {
	if now == nil {
		now = time.Now
	}
	rw := &rollingWriter{path: path, opts: opts, now: now}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

// open (re)opens path for appending. An existing non-empty file is aged
// from its last modification.
func (rw *rollingWriter) open() error {
	f, err := os.OpenFile(rw.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	rw.f = f
	rw.size = info.Size()
	rw.started = rw.now()
	if rw.size > 0 {
		rw.started = info.ModTime()
	}
	return nil
}

func (rw *rollingWriter) due(n int) bool {
	if rw.size == 0 {
		return false
	}
	if rw.opts.MaxSize > 0 && rw.size+int64(n) > rw.opts.MaxSize {
		return true
	}
	return rw.opts.MaxAge > 0 && rw.now().Sub(rw.started) >= rw.opts.MaxAge
}

func (rw *rollingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.due(len(p)) {
		if err := rw.roll(); err != nil {
			return 0, err
		}
	}

	n, err := rw.f.Write(p)
	rw.size += int64(n)
	if err != nil {
		return n, err
	}
	_ = rw.f.Sync()
	return n, nil
}

func (rw *rollingWriter) roll() error {
	if rw.opts.Backups <= 0 {
		if err := rw.f.Truncate(0); err != nil {
			return err
		}
		if _, err := rw.f.Seek(0, 0); err != nil {
			return err
		}
		rw.size = 0
		rw.started = rw.now()
		return nil
	}

	if err := rw.f.Close(); err != nil {
		return err
	}
	_ = os.Remove(backupName(rw.path, rw.opts.Backups))
	for n := rw.opts.Backups - 1; n >= 1; n-- {
		err := os.Rename(backupName(rw.path, n), backupName(rw.path, n+1))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			_ = rw.open()
			return err
		}
	}
	if err := os.Rename(rw.path, backupName(rw.path, 1)); err != nil {
		_ = rw.open()
		return err
	}
	return rw.open()
}

func (rw *rollingWriter) close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	_ = rw.f.Sync()
	return rw.f.Close()
}
