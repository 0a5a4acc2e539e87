package web

import (
	"github.com/gofiber/websocket/v2"

	"github.com/tiroq/focusflow/internal/diaglog"
	"github.com/tiroq/focusflow/internal/landmark"
	"github.com/tiroq/focusflow/internal/log"
)

// maxLandmarkMessage bounds one provider frame; a full refined face mesh is
// well under it.
const maxLandmarkMessage = 1 << 20

// ingestError is sent back to a provider whose message was rejected.
type ingestError struct {
	Error string `json:"error"`
}

// handleLandmarksWS reads provider updates and submits each snapshot to the
// monitor. A bad message is answered and skipped; the connection stays up.
func (s *Server) handleLandmarksWS(c *websocket.Conn) {
	remote := c.RemoteAddr().String()
	log.Info("landmark provider connected", "remote", remote)
	s.opts.Diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentIngest,
		Event:     diaglog.EventIngestConnect,
		Payload:   map[string]interface{}{"remote": remote},
	})

	var received, rejected int
	defer func() {
		log.Info("landmark provider disconnected", "remote", remote, "received", received, "rejected", rejected)
		s.opts.Diag.Log(diaglog.LogEntry{
			Component: diaglog.ComponentIngest,
			Event:     diaglog.EventIngestDisconnect,
			Payload:   map[string]interface{}{"remote": remote, "received": received, "rejected": rejected},
		})
	}()

	c.SetReadLimit(maxLandmarkMessage)
	for {
		msgType, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		update, err := landmark.DecodeUpdate(data)
		if err != nil {
			rejected++
			log.Debug("landmark update rejected", "remote", remote, "error", err)
			s.opts.Diag.Log(diaglog.LogEntry{
				Component: diaglog.ComponentIngest,
				Event:     diaglog.EventIngestRejected,
				Reason:    err.Error(),
			})
			if werr := c.WriteJSON(ingestError{Error: err.Error()}); werr != nil {
				return
			}
			continue
		}

		received++
		s.opts.Monitor.Submit(update.Snapshot)
	}
}

// handleStatusWS streams status events, starting with the latest one.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	s.statusHub.Serve(c)
}

// handleEventsWS streams every bus event.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	s.eventHub.Serve(c)
}
