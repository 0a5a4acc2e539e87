// Package web serves the HTTP API and websocket endpoints of the daemon:
// landmark providers stream snapshots in, dashboards read status and events
// out, and controllers post commands and configuration.
package web

import (
	"context"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/tiroq/focusflow/internal/attention"
	"github.com/tiroq/focusflow/internal/config"
	"github.com/tiroq/focusflow/internal/diaglog"
	"github.com/tiroq/focusflow/internal/eventbus"
	"github.com/tiroq/focusflow/internal/hub"
	"github.com/tiroq/focusflow/internal/ipc"
	"github.com/tiroq/focusflow/internal/landmark"
	"github.com/tiroq/focusflow/internal/log"
)

const shutdownTimeout = 5 * time.Second

// Monitor is the engine host the server drives.
type Monitor interface {
	Submit(snap landmark.Snapshot)
	Status() ipc.StatusSnapshot
	Last() attention.Output
	Config() config.Config
	UpdateConfig(cfg *config.Config) error
}

// Options configures a Server. Monitor and Dispatch are required.
type Options struct {
	Addr       string
	Monitor    Monitor
	Dispatch   func(ipc.Command) error
	ConfigPath string // PUT /api/config persists here when set
	Bus        *eventbus.Bus
	Diag       *diaglog.Logger
}

// Server is the fiber application plus its websocket hubs.
type Server struct {
	app  *fiber.App
	opts Options

	statusHub *hub.Hub
	eventHub  *hub.Hub
}

// New builds the server and its routes. Nothing listens until Start.
func New(opts Options) *Server {
	s := &Server{
		opts:      opts,
		statusHub: hub.New("status", hub.WithReplay()),
		eventHub:  hub.New("events"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "FocusFlow",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	app.Get("/healthz", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/output", s.handleOutput)
	api.Get("/config", s.handleGetConfig)
	api.Put("/config", s.handlePutConfig)
	api.Get("/commands", s.handleListCommands)
	api.Post("/commands/:name", s.handleCommand)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/landmarks", websocket.New(s.handleLandmarksWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// App exposes the fiber application, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured address until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hubs, forwards bus events to them and serves ln until ctx
// is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.statusHub.Run(ctx)
	go s.eventHub.Run(ctx)
	if s.opts.Bus != nil {
		go s.forward(ctx)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Warn("web server shutdown", "error", err)
		}
	}()

	log.Info("web server listening", "addr", ln.Addr().String())
	err := s.app.Listener(ln)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// forward relays bus events to the websocket hubs.
func (s *Server) forward(ctx context.Context) {
	events, cancel := s.opts.Bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type == eventbus.TypeStatus {
				if err := s.statusHub.BroadcastJSON(ev); err != nil {
					log.Warn("failed to encode status event", "error", err)
				}
			}
			if err := s.eventHub.BroadcastJSON(ev); err != nil {
				log.Warn("failed to encode event", "type", ev.Type, "error", err)
			}
		}
	}
}

// StatusClients returns the number of /ws/status subscribers.
func (s *Server) StatusClients() int {
	return s.statusHub.ClientCount()
}

// EventClients returns the number of /ws/events subscribers.
func (s *Server) EventClients() int {
	return s.eventHub.ClientCount()
}
