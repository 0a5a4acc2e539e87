package player

import (
	"context"
	"sync"

	"github.com/tiroq/focusflow/internal/attention"
	"github.com/tiroq/focusflow/internal/log"
)

// Log is a controller with no media behind it. It logs every command and
// remembers them, which makes it the default for dry runs and tests.
type Log struct {
	mu       sync.Mutex
	playing  bool
	commands []attention.Command
}

// NewLog returns a paused log controller.
func NewLog() *Log {
	return &Log{}
}

func (l *Log) Play(ctx context.Context) error {
	l.record(attention.CommandPlay, true)
	return nil
}

func (l *Log) Pause(ctx context.Context) error {
	l.record(attention.CommandPause, false)
	return nil
}

func (l *Log) record(cmd attention.Command, playing bool) {
	l.mu.Lock()
	l.playing = playing
	l.commands = append(l.commands, cmd)
	l.mu.Unlock()
	log.Info("playback command", "command", cmd, "backend", "log")
}

// Connected is always true.
func (l *Log) Connected() bool { return true }

// Name implements Controller.
func (l *Log) Name() string { return "log" }

// Close implements Controller.
func (l *Log) Close() error { return nil }

// Playing reports the last command received.
func (l *Log) Playing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.playing
}

// Commands returns every command received so far.
func (l *Log) Commands() []attention.Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]attention.Command(nil), l.commands...)
}
