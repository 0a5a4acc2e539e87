// Package monitor hosts the attention engine: it owns the engine behind a
// mutex, feeds it the latest landmark snapshot on every tick and carries out
// what the engine decides (player commands, alerts, events, status).
package monitor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tiroq/focusflow/internal/attention"
	"github.com/tiroq/focusflow/internal/config"
	"github.com/tiroq/focusflow/internal/diaglog"
	"github.com/tiroq/focusflow/internal/eventbus"
	"github.com/tiroq/focusflow/internal/ipc"
	"github.com/tiroq/focusflow/internal/landmark"
	"github.com/tiroq/focusflow/internal/log"
	"github.com/tiroq/focusflow/internal/notify"
	"github.com/tiroq/focusflow/internal/player"
)

// statusWriteInterval bounds how often an unchanged status is rewritten.
const statusWriteInterval = time.Second

// ErrQuit is returned by Execute for the quit command; the caller owns the
// process lifetime.
var ErrQuit = errors.New("quit requested")

// Alerter presents alerts without blocking.
type Alerter interface {
	Post(a attention.Alert) bool
}

// Options wires a Monitor. Player and Config are required.
type Options struct {
	Config *config.Config
	Player player.Controller
	Alerts Alerter                         // nil disables notifications
	Bus    *eventbus.Bus                   // nil disables events
	Diag   *diaglog.Logger                 // nil disables diagnostics
	Status func(*ipc.StatusSnapshot) error // status sink, ipc.WriteStatus in the daemon
	Now    func() time.Time                // clock for snapshot arrival, time.Now by default
}

// Monitor is safe for concurrent use.
type Monitor struct {
	mu     sync.Mutex
	engine *attention.Engine
	cfg    config.Config

	player  player.Controller
	alerts  Alerter
	bus     *eventbus.Bus
	diag    *diaglog.Logger
	writeFn func(*ipc.StatusSnapshot) error
	now     func() time.Time

	actions chan action
	done    chan struct{}
	wg      sync.WaitGroup

	monitoring bool
	sessionID  string
	ticks      uint64

	latest   landmark.Snapshot
	latestAt time.Time
	received bool

	last        attention.Output
	lastStatus  eventbus.StatusData
	subject     bool
	lastCommand string
	lastAlert   string
	lastAlertAt time.Time
	lastError   string
	lastWrite   time.Time
}

// action is one player command queued for the actuator goroutine.
type action struct {
	cmd     attention.Command
	reason  string
	session string
	at      time.Time
}

// New validates the configuration and builds the engine. Monitoring starts
// stopped; call Start.
func New(opts Options) (*Monitor, error) {
	if opts.Config == nil {
		return nil, errors.New("monitor: config is required")
	}
	if opts.Player == nil {
		return nil, errors.New("monitor: player is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	engine, err := attention.New(opts.Config.Engine)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		engine:  engine,
		cfg:     *opts.Config,
		player:  opts.Player,
		alerts:  opts.Alerts,
		bus:     opts.Bus,
		diag:    opts.Diag,
		writeFn: opts.Status,
		now:     opts.Now,
		actions: make(chan action, 16),
		done:    make(chan struct{}),
	}
	if m.now == nil {
		m.now = time.Now
	}

	m.wg.Add(1)
	go m.actuate()
	return m, nil
}

// Close stops the actuator after pending commands are sent.
func (m *Monitor) Close() {
	select {
	case <-m.done:
		return
	default:
		close(m.done)
	}
	m.wg.Wait()
}

// Submit stores snap as the latest observation. Only the newest snapshot is
// kept; the next tick evaluates it.
func (m *Monitor) Submit(snap landmark.Snapshot) {
	at := m.now()
	m.mu.Lock()
	m.latest = snap
	m.latestAt = at
	m.received = true
	m.mu.Unlock()
}

// Tick evaluates the latest snapshot at now. A snapshot older than the
// stale window counts as no subject. Tick does nothing while monitoring is
// stopped.
func (m *Monitor) Tick(now time.Time) attention.Output {
	m.mu.Lock()
	if !m.monitoring {
		m.mu.Unlock()
		return attention.Output{At: now, Command: attention.CommandNone}
	}

	snap := m.latest
	if !m.received || now.Sub(m.latestAt) > m.cfg.Sampling.StaleAfter() {
		snap = landmark.Snapshot{}
	}

	out := m.engine.Evaluate(snap, now)
	m.ticks++
	m.last = out
	session := m.sessionID

	m.trackSubjectLocked(out)
	if out.Command != attention.CommandNone {
		m.lastCommand = string(out.Command)
		m.queueLocked(action{cmd: out.Command, reason: commandReason(out), session: session, at: now})
	}
	for _, a := range out.Alerts {
		m.lastAlert = string(a)
		m.lastAlertAt = now
	}

	status := m.statusDataLocked()
	changed := status != m.lastStatus
	m.lastStatus = status
	snapshot := m.snapshotLocked(now)
	write := changed || now.Sub(m.lastWrite) >= statusWriteInterval
	if write {
		m.lastWrite = now
	}
	m.mu.Unlock()

	for _, a := range out.Alerts {
		m.raise(a, session, now)
	}
	if changed {
		m.publish(eventbus.TypeStatus, session, now, status)
		m.diag.Log(diaglog.LogEntry{
			Component: diaglog.ComponentEngine,
			Event:     diaglog.EventStatusChange,
			SessionID: session,
			Payload:   statusPayload(status),
		})
	}
	if write {
		m.writeStatus(snapshot)
	}
	return out
}

func (m *Monitor) trackSubjectLocked(out attention.Output) {
	if out.SubjectDetected == m.subject {
		return
	}
	m.subject = out.SubjectDetected
	event := diaglog.EventSubjectLost
	if out.SubjectDetected {
		event = diaglog.EventSubjectFound
	}
	m.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentEngine,
		Event:     event,
		SessionID: m.sessionID,
		Payload:   map[string]interface{}{"mode": string(out.Mode)},
	})
}

// commandReason names what made the engine issue out.Command.
func commandReason(out attention.Output) string {
	if out.Mode == config.ModeGesture {
		if out.Command == attention.CommandPlay {
			return "hand_open"
		}
		return "pinch"
	}
	if out.Command == attention.CommandPlay {
		return "looking_at_screen"
	}
	return "looking_away"
}

func (m *Monitor) queueLocked(a action) {
	select {
	case m.actions <- a:
	default:
		m.lastError = "player queue full, dropped " + string(a.cmd)
		log.Error("player queue full, dropping command", "command", a.cmd)
	}
}

// actuate sends queued commands to the player in order.
func (m *Monitor) actuate() {
	defer m.wg.Done()
	for {
		select {
		case a := <-m.actions:
			m.apply(a)
		case <-m.done:
			for {
				select {
				case a := <-m.actions:
					m.apply(a)
				default:
					return
				}
			}
		}
	}
}

func (m *Monitor) apply(a action) {
	ctx, cancel := contextWithTimeout(playerTimeout)
	err := player.Apply(ctx, m.player, a.cmd)
	cancel()

	data := eventbus.PlaybackData{Command: string(a.cmd), Reason: a.reason, Backend: m.player.Name()}
	payload := map[string]interface{}{"command": string(a.cmd), "backend": m.player.Name()}
	entry := diaglog.LogEntry{
		Component: diaglog.ComponentPlayer,
		Event:     diaglog.EventPlaybackCommand,
		SessionID: a.session,
		Reason:    a.reason,
		Payload:   payload,
	}
	if err != nil {
		data.Error = err.Error()
		entry.Event = diaglog.EventPlayerError
		payload["error"] = err.Error()
		log.Warn("player command failed", "command", a.cmd, "backend", m.player.Name(), "error", err)

		m.mu.Lock()
		m.lastError = fmt.Sprintf("%s: %v", a.cmd, err)
		m.mu.Unlock()
	} else {
		log.Info("playback", "command", a.cmd, "reason", a.reason)
	}
	m.diag.Log(entry)
	m.publish(eventbus.TypePlayback, a.session, a.at, data)
}

func (m *Monitor) raise(a attention.Alert, session string, at time.Time) {
	title, message := notify.Message(a)
	log.Info("alert", "alert", a, "session_id", session)
	m.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentEngine,
		Event:     diaglog.EventAlert,
		SessionID: session,
		Reason:    string(a),
	})
	if m.alerts != nil && m.notificationsEnabled() {
		m.alerts.Post(a)
	}
	m.publish(eventbus.TypeAlert, session, at, eventbus.AlertData{Alert: string(a), Title: title, Message: message})
}

func (m *Monitor) notificationsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Notify.Enabled
}

func (m *Monitor) publish(t eventbus.Type, session string, at time.Time, data interface{}) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{Type: t, SessionID: session, Timestamp: at, Data: data})
}

func (m *Monitor) writeStatus(s *ipc.StatusSnapshot) {
	if m.writeFn == nil {
		return
	}
	if err := m.writeFn(s); err != nil {
		log.Warn("failed to write status", "error", err)
	}
}

func (m *Monitor) statusDataLocked() eventbus.StatusData {
	return eventbus.StatusData{
		Monitoring:      m.monitoring,
		InputMode:       string(m.cfg.Engine.InputMode),
		StrictMode:      m.cfg.Engine.StrictMode,
		Playing:         m.engine.Playing(),
		SubjectDetected: m.last.SubjectDetected,
		Distance:        string(m.last.Distance),
		Drowsiness:      string(m.last.Drowsiness),
		Gesture:         string(m.last.Gesture),
		BlinkCount:      m.last.BlinkCount,
		AwayTicks:       m.last.AwayTicks,
	}
}

func statusPayload(s eventbus.StatusData) map[string]interface{} {
	return map[string]interface{}{
		"playing":          s.Playing,
		"subject_detected": s.SubjectDetected,
		"distance":         s.Distance,
		"drowsiness":       s.Drowsiness,
		"gesture":          s.Gesture,
	}
}

func (m *Monitor) snapshotLocked(now time.Time) *ipc.StatusSnapshot {
	s := m.statusDataLocked()
	return &ipc.StatusSnapshot{
		Monitoring:      s.Monitoring,
		SessionID:       m.sessionID,
		InputMode:       s.InputMode,
		StrictMode:      s.StrictMode,
		Playing:         s.Playing,
		SubjectDetected: s.SubjectDetected,
		Distance:        s.Distance,
		Drowsiness:      s.Drowsiness,
		Gesture:         s.Gesture,
		BlinkCount:      s.BlinkCount,
		AwayTicks:       s.AwayTicks,
		LastCommand:     m.lastCommand,
		LastAlert:       m.lastAlert,
		LastAlertAt:     m.lastAlertAt,
		LastError:       m.lastError,
		PlayerConnected: m.player.Connected(),
		Ticks:           m.ticks,
		Timestamp:       now,
	}
}

// Status returns the current status snapshot.
func (m *Monitor) Status() ipc.StatusSnapshot {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.snapshotLocked(now)
}

// Last returns the output of the most recent tick.
func (m *Monitor) Last() attention.Output {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Config returns a copy of the active configuration.
func (m *Monitor) Config() config.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}
