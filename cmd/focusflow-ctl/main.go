// Command focusflow-ctl controls a running focusflow-core daemon through the
// command file and reads its status file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tiroq/focusflow/internal/config"
	"github.com/tiroq/focusflow/internal/diaglog"
	"github.com/tiroq/focusflow/internal/ipc"
	"github.com/tiroq/focusflow/internal/pidfile"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

const usage = `usage: focusflow-ctl <command>

commands:
  start     start monitoring (new session)
  stop      stop monitoring
  toggle    toggle monitoring
  strict    toggle strict mode
  mode      switch between face and gesture input
  reset     reset the engine's temporal state
  quit      shut the daemon down
  status    print the daemon status (--json for raw output)
  watch     print the status every time it changes
  diag      export the diagnostic log bundle
  version   print the version
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	switch args[0] {
	case "status":
		asJSON := len(args) > 1 && args[1] == "--json"
		return printStatus(stdout, stderr, asJSON)
	case "watch":
		return watch(stdout, stderr)
	case "diag":
		return exportDiag(stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, "focusflow-ctl", Version)
		return 0
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	}

	cmd, err := ipc.ParseCommand(args[0])
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		fmt.Fprint(stderr, usage)
		return 2
	}
	if !daemonRunning() {
		fmt.Fprintln(stderr, "warning: focusflow-core does not appear to be running; the command runs once it starts")
	}
	if err := ipc.WriteCommand(cmd); err != nil {
		fmt.Fprintln(stderr, "error: failed to send command:", err)
		return 1
	}
	fmt.Fprintf(stdout, "sent %s\n", cmd)
	return 0
}

func daemonRunning() bool {
	pid, err := pidfile.Read(pidfile.Path("focusflow-core"))
	return err == nil && pidfile.Running(pid)
}

func printStatus(stdout, stderr io.Writer, asJSON bool) int {
	st, err := ipc.ReadStatus()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(stderr, "no status yet: is focusflow-core running?")
			return 1
		}
		fmt.Fprintln(stderr, "error: failed to read status:", err)
		return 1
	}

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(st); err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
		return 0
	}
	writeStatus(stdout, st, time.Now())
	return 0
}

// watch prints a status line whenever the daemon rewrites its status file.
func watch(stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer watcher.Close()

	if err := os.MkdirAll(ipc.Dir(), 0755); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	// The status file is replaced by rename, so watch the directory.
	if err := watcher.Add(ipc.Dir()); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	statusPath := filepath.Clean(ipc.StatusPath())
	var last string
	show := func() {
		st, err := ipc.ReadStatus()
		if err != nil {
			return
		}
		line := statusLine(st)
		if line != last {
			fmt.Fprintf(stdout, "%s %s\n", st.Timestamp.Local().Format("15:04:05"), line)
			last = line
		}
	}
	show()

	for {
		select {
		case <-ctx.Done():
			return 0
		case event, ok := <-watcher.Events:
			if !ok {
				return 0
			}
			if filepath.Clean(event.Name) == statusPath && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				show()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return 0
			}
			fmt.Fprintln(stderr, "watcher error:", err)
		}
	}
}

func exportDiag(stdout, stderr io.Writer) int {
	logPath := os.Getenv("FOCUSFLOW_LOG_PATH")
	if logPath == "" {
		logPath = diaglog.DefaultPath()
	}
	var engine *config.EngineConfig
	if cfg, err := config.LoadOrDefault(config.DefaultPath()); err == nil {
		engine = &cfg.Engine
	} else {
		fmt.Fprintln(stderr, "warning: engine thresholds not included:", err)
	}
	diaglog.Version = Version
	path, n, err := diaglog.Export(logPath, ".", engine)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(stderr, "hint: run focusflow-core with FOCUSFLOW_DEBUG=true to enable the diagnostic log")
		}
		return 1
	}
	fmt.Fprintf(stdout, "Wrote: %s (%d lines)\n", path, n)
	return 0
}
