// Package publish forwards monitor events from the event bus to message
// brokers so other tools (home automation, dashboards, loggers) can react
// to playback changes and alerts.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/tiroq/focusflow/internal/diaglog"
	"github.com/tiroq/focusflow/internal/eventbus"
	"github.com/tiroq/focusflow/internal/log"
)

// ErrNotConnected is returned by Send while the broker is unreachable.
var ErrNotConnected = errors.New("publish: broker not connected")

const sendTimeout = 5 * time.Second

// Sender delivers one event to a broker.
type Sender interface {
	Send(ctx context.Context, ev eventbus.Event) error
	Name() string
	Close() error
}

// Encode renders ev as the JSON body sent to brokers.
func Encode(ev eventbus.Event) ([]byte, error) {
	return json.Marshal(ev)
}

// Run forwards every bus event to s until ctx is cancelled, then closes s.
// Failed sends are logged and skipped.
func Run(ctx context.Context, bus *eventbus.Bus, s Sender, diag *diaglog.Logger) {
	events, cancel := bus.Subscribe()
	defer cancel()
	defer func() {
		if err := s.Close(); err != nil {
			log.Warn("failed to close publisher", "publisher", s.Name(), "error", err)
		}
	}()

	log.Info("publisher started", "publisher", s.Name())
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			sendCtx, cancelSend := context.WithTimeout(ctx, sendTimeout)
			err := s.Send(sendCtx, ev)
			cancelSend()
			if err == nil {
				continue
			}
			log.Warn("failed to publish event", "publisher", s.Name(), "type", ev.Type, "error", err)
			diag.Log(diaglog.LogEntry{
				Component: diaglog.ComponentPublisher,
				Event:     diaglog.EventPublishFailed,
				SessionID: ev.SessionID,
				Reason:    err.Error(),
				Payload:   map[string]interface{}{"publisher": s.Name(), "type": string(ev.Type)},
			})
		}
	}
}
