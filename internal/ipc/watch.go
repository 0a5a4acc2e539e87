package ipc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tiroq/focusflow/internal/log"
)

const (
	// writeSettle gives the writer time to finish before the file is read.
	writeSettle  = 50 * time.Millisecond
	pollInterval = time.Second
)

// WatchCommands calls handle for every command written to the command file
// until ctx is cancelled. It uses fsnotify and backs it with a 1s poll, and
// falls back to polling alone if fsnotify is unavailable. A command left
// in the file before the watcher started is handled once up front.
func WatchCommands(ctx context.Context, handle func(Command)) error {
	if err := os.MkdirAll(Dir(), 0755); err != nil {
		return err
	}
	cmdPath := CommandPath()
	dispatch(handle)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("fsnotify not available, falling back to polling", "error", err)
		return pollCommands(ctx, cmdPath, handle)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			log.Warn("failed to close command watcher", "error", err)
		}
	}()

	if err := watcher.Add(filepath.Dir(cmdPath)); err != nil {
		log.Warn("failed to watch command directory, falling back to polling", "error", err)
		return pollCommands(ctx, cmdPath, handle)
	}

	log.Debug("command watcher started", "path", cmdPath, "backend", "fsnotify")

	pollTicker := time.NewTicker(pollInterval)
	defer pollTicker.Stop()
	lastCheck := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				log.Warn("fsnotify watcher closed, switching to polling")
				return pollCommands(ctx, cmdPath, handle)
			}
			if filepath.Clean(event.Name) != cmdPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			time.Sleep(writeSettle)
			dispatch(handle)
			lastCheck = time.Now()

		case <-pollTicker.C:
			// Safety net for missed events.
			if info, err := os.Stat(cmdPath); err == nil && info.ModTime().After(lastCheck) {
				time.Sleep(writeSettle)
				dispatch(handle)
				lastCheck = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				log.Warn("fsnotify error channel closed, switching to polling")
				return pollCommands(ctx, cmdPath, handle)
			}
			log.Warn("command watcher error", "error", err)
		}
	}
}

func pollCommands(ctx context.Context, cmdPath string, handle func(Command)) error {
	log.Debug("command watcher started", "path", cmdPath, "backend", "poll")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	lastCheck := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			info, err := os.Stat(cmdPath)
			if err != nil {
				continue // File doesn't exist yet, keep polling
			}
			if info.ModTime().After(lastCheck) {
				time.Sleep(writeSettle)
				dispatch(handle)
				lastCheck = time.Now()
			}
		}
	}
}

func dispatch(handle func(Command)) {
	cmd, err := ReadCommand()
	if err != nil {
		if errors.Is(err, ErrUnknownCommand) {
			log.Warn("ignoring command", "error", err)
		} else {
			log.Error("failed to read command", "error", err)
		}
		return
	}
	if cmd != "" {
		handle(cmd)
	}
}
