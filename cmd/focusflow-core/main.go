package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/tiroq/focusflow/internal/config"
	"github.com/tiroq/focusflow/internal/diaglog"
	"github.com/tiroq/focusflow/internal/eventbus"
	"github.com/tiroq/focusflow/internal/ipc"
	"github.com/tiroq/focusflow/internal/log"
	"github.com/tiroq/focusflow/internal/monitor"
	"github.com/tiroq/focusflow/internal/notify"
	"github.com/tiroq/focusflow/internal/pidfile"
	"github.com/tiroq/focusflow/internal/player"
	"github.com/tiroq/focusflow/internal/publish"
	"github.com/tiroq/focusflow/internal/web"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

const (
	notifyQueue    = 8
	connectTimeout = 5 * time.Second
)

func main() {
	// --export-diag bundles the diagnostic log and exits.
	if len(os.Args) > 1 && os.Args[1] == "--export-diag" {
		os.Exit(exportDiag())
	}
	os.Exit(run(os.Args[1:]))
}

func diagLogPath() string {
	if p := os.Getenv("FOCUSFLOW_LOG_PATH"); p != "" {
		return p
	}
	return diaglog.DefaultPath()
}

func exportDiag() int {
	diaglog.Version = Version
	path, n, err := diaglog.Export(diagLogPath(), ".", exportEngine())
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(os.Stderr, "hint: run with FOCUSFLOW_DEBUG=true to enable the diagnostic log")
			return 1
		}
		return 2
	}
	fmt.Printf("Wrote: %s (%d lines)\n", path, n)
	return 0
}

// exportEngine returns the thresholds from the default config file, or nil
// when it cannot be loaded.
func exportEngine() *config.EngineConfig {
	cfg, err := config.LoadOrDefault(config.DefaultPath())
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning: engine thresholds not included:", err)
		return nil
	}
	return &cfg.Engine
}

func run(args []string) (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC in focusflow-core: %v\n", r)
			log.Error("panic", "value", fmt.Sprint(r))
			code = 1
		}
	}()

	fs := flag.NewFlagSet("focusflow-core", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath(), "path to the config file (.json, .yaml or .yml)")
	addr := fs.String("addr", "", "override server.addr")
	paused := fs.Bool("paused", false, "start with monitoring stopped")
	showVersion := fs.Bool("version", false, "print the version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Println("focusflow-core", Version)
		return 0
	}

	log.Init(os.Getenv("FOCUSFLOW_LOG_LEVEL"))
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Error("failed to load config", "path", *configPath, "error", err)
		return 1
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if os.Getenv("FOCUSFLOW_LOG_LEVEL") == "" {
		log.Init(cfg.LogLevel)
	}

	log.Info("starting focusflow-core", "version", Version, "pid", os.Getpid(), "config", *configPath)

	pidPath := pidfile.Path("focusflow-core")
	pf, err := pidfile.New(pidPath)
	if err != nil {
		log.Error("failed to create PID file", "path", pidPath, "error", err)
		if errors.Is(err, pidfile.ErrAlreadyRunning) {
			log.Error("if no other instance is running, remove the PID file", "path", pidPath)
		}
		return 1
	}
	defer func() {
		if err := pf.Remove(); err != nil {
			log.Warn("failed to remove PID file", "error", err)
		}
	}()

	diaglog.Version = Version
	diag, err := diaglog.New(diagLogPath(), diaglog.OptionsFrom(cfg.Diag))
	if err != nil {
		log.Warn("could not open diagnostic log, continuing without it", "path", diagLogPath(), "error", err)
		diag = diaglog.NewNoOp()
	}
	defer func() { _ = diag.Close() }()
	diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCore,
		Event:     diaglog.EventStartup,
		Payload: map[string]interface{}{
			"version": Version,
			"pid":     os.Getpid(),
			"backend": cfg.Player.Backend,
			"mode":    string(cfg.Engine.InputMode),
			"strict":  cfg.Engine.StrictMode,
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctrl, err := player.New(ctx, cfg.Player, diag)
	if err != nil {
		log.Error("failed to create player", "backend", cfg.Player.Backend, "error", err)
		return 1
	}
	defer func() { _ = ctrl.Close() }()

	alerts := notify.NewAsync(notify.NewDesktop(), notifyQueue)
	defer alerts.Close()

	bus := eventbus.New()
	defer bus.Close()

	mon, err := monitor.New(monitor.Options{
		Config: cfg,
		Player: ctrl,
		Alerts: alerts,
		Bus:    bus,
		Diag:   diag,
		Status: ipc.WriteStatus,
	})
	if err != nil {
		log.Error("failed to create monitor", "error", err)
		return 1
	}
	defer mon.Close()

	var wg sync.WaitGroup
	startPublishers(ctx, &wg, cfg, bus, diag)

	dispatch := func(cmd ipc.Command) error {
		err := mon.Execute(cmd)
		if errors.Is(err, monitor.ErrQuit) {
			log.Info("quit command received")
			stop()
			return nil
		}
		return err
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := ipc.WatchCommands(ctx, func(cmd ipc.Command) {
			log.Info("command received", "command", cmd, "source", "ipc")
			if err := dispatch(cmd); err != nil {
				log.Warn("command failed", "command", cmd, "error", err)
			}
		})
		if err != nil {
			log.Error("command watcher stopped", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		watchConfig(ctx, *configPath, mon, diag)
	}()

	srv := web.New(web.Options{
		Addr:       cfg.Server.Addr,
		Monitor:    mon,
		Dispatch:   dispatch,
		ConfigPath: *configPath,
		Bus:        bus,
		Diag:       diag,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Start(ctx); err != nil {
			log.Error("web server failed", "addr", cfg.Server.Addr, "error", err)
			stop()
		}
	}()

	if !*paused {
		mon.Start()
	}

	loop(ctx, mon)

	log.Info("shutting down", "reason", context.Cause(ctx))
	diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCore,
		Event:     diaglog.EventShutdown,
		SessionID: mon.Status().SessionID,
	})
	mon.Stop()
	wg.Wait()
	return 0
}

// loop ticks the monitor at the sampling interval until ctx is done. The
// interval follows config reloads.
func loop(ctx context.Context, mon *monitor.Monitor) {
	interval := mon.Config().Sampling.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			mon.Tick(now)
			if next := mon.Config().Sampling.Interval(); next != interval {
				log.Info("sampling interval changed", "from", interval, "to", next)
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

func watchConfig(ctx context.Context, path string, mon *monitor.Monitor, diag *diaglog.Logger) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Warn("config hot reload disabled", "error", err)
		return
	}
	err := config.Watch(ctx, path,
		func(cfg *config.Config) {
			// Rejections are logged by the monitor.
			_ = mon.UpdateConfig(cfg)
		},
		func(err error) {
			log.Warn("ignoring invalid config file", "path", path, "error", err)
			diag.Log(diaglog.LogEntry{
				Component: diaglog.ComponentConfig,
				Event:     diaglog.EventConfigRejected,
				Reason:    err.Error(),
			})
		})
	if err != nil {
		log.Warn("config hot reload disabled", "error", err)
	}
}

// startPublishers forwards bus events to the configured brokers. A broker
// that is down at startup is retried in the background.
func startPublishers(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, bus *eventbus.Bus, diag *diaglog.Logger) {
	var senders []publish.Sender

	if cfg.MQTT.Enabled {
		m := publish.NewMQTT(cfg.MQTT)
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		if err := m.Connect(connectCtx); err != nil {
			log.Warn("mqtt broker not reachable yet, retrying in background", "broker", cfg.MQTT.Broker, "error", err)
		}
		cancel()
		senders = append(senders, m)
	}

	if cfg.AMQP.Enabled {
		a := publish.NewAMQP(cfg.AMQP)
		if err := a.Connect(); err != nil {
			log.Warn("amqp broker not reachable yet, will redial on publish", "exchange", cfg.AMQP.Exchange, "error", err)
		}
		senders = append(senders, a)
	}

	for _, s := range senders {
		log.Info("publishing events", "publisher", s.Name())
		wg.Add(1)
		go func(s publish.Sender) {
			defer wg.Done()
			publish.Run(ctx, bus, s, diag)
		}(s)
	}
}
