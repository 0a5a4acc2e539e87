package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/tiroq/focusflow/internal/config"
	"github.com/tiroq/focusflow/internal/ipc"
	"github.com/tiroq/focusflow/internal/log"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleStatus returns the monitor's status snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.opts.Monitor.Status())
}

// handleOutput returns the last engine output, measurements included.
func (s *Server) handleOutput(c *fiber.Ctx) error {
	return c.JSON(s.opts.Monitor.Last())
}

func (s *Server) handleGetConfig(c *fiber.Ctx) error {
	return c.JSON(s.opts.Monitor.Config())
}

// handlePutConfig overlays the request body on the running configuration,
// applies it and, when a config path is set, saves it.
func (s *Server) handlePutConfig(c *fiber.Ctx) error {
	cfg := s.opts.Monitor.Config()
	if err := c.BodyParser(&cfg); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := s.opts.Monitor.UpdateConfig(&cfg); err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, config.ErrInvalidConfig) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	if s.opts.ConfigPath != "" {
		if err := config.Save(s.opts.ConfigPath, &cfg); err != nil {
			log.Error("failed to save config", "path", s.opts.ConfigPath, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}
	return c.JSON(cfg)
}

func (s *Server) handleListCommands(c *fiber.Ctx) error {
	return c.JSON(ipc.Commands)
}

// handleCommand runs one control command.
func (s *Server) handleCommand(c *fiber.Ctx) error {
	cmd, err := ipc.ParseCommand(c.Params("name"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if s.opts.Dispatch == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "commands not configured"})
	}
	if err := s.opts.Dispatch(cmd); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	log.Info("command received", "command", cmd, "source", "http")
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"command": cmd})
}
