// Package player drives the media the user is watching. The engine decides
// play or pause; a Controller carries it out.
package player

import (
	"context"
	"fmt"
	"time"

	"github.com/tiroq/focusflow/internal/attention"
	"github.com/tiroq/focusflow/internal/config"
	"github.com/tiroq/focusflow/internal/diaglog"
	"github.com/tiroq/focusflow/internal/obsws"
)

// Controller is a playback backend.
type Controller interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Connected() bool
	Name() string
	Close() error
}

// Apply carries out cmd on c. CommandNone is a no-op.
func Apply(ctx context.Context, c Controller, cmd attention.Command) error {
	switch cmd {
	case attention.CommandPlay:
		return c.Play(ctx)
	case attention.CommandPause:
		return c.Pause(ctx)
	case attention.CommandNone, "":
		return nil
	default:
		return fmt.Errorf("unknown playback command %q", cmd)
	}
}

// New builds the controller selected by cfg.Backend. An OBS controller is
// returned even when OBS is not reachable yet; it keeps retrying in the
// background until ctx is cancelled.
func New(ctx context.Context, cfg config.PlayerConfig, logger *diaglog.Logger) (Controller, error) {
	switch cfg.Backend {
	case "", "log":
		return NewLog(), nil
	case "obs":
		client := obsws.NewClient(cfg.URL, cfg.Password, cfg.MediaInput)
		client.SetLogger(logger)
		c := NewOBS(client, cfg.MediaInput)
		c.Start(ctx, 5*time.Second)
		return c, nil
	default:
		return nil, fmt.Errorf("unknown player backend %q", cfg.Backend)
	}
}
