package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiroq/focusflow/internal/attention"
	"github.com/tiroq/focusflow/internal/config"
	"github.com/tiroq/focusflow/internal/eventbus"
	"github.com/tiroq/focusflow/internal/ipc"
	"github.com/tiroq/focusflow/internal/landmark/landmarktest"
	"github.com/tiroq/focusflow/internal/player"
)

var t0 = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []attention.Alert
}

func (f *fakeAlerter) Post(a attention.Alert) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return true
}

func (f *fakeAlerter) Alerts() []attention.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]attention.Alert(nil), f.alerts...)
}

type failingPlayer struct{}

func (failingPlayer) Play(ctx context.Context) error  { return errors.New("obs unreachable") }
func (failingPlayer) Pause(ctx context.Context) error { return errors.New("obs unreachable") }
func (failingPlayer) Connected() bool                 { return false }
func (failingPlayer) Name() string                    { return "failing" }
func (failingPlayer) Close() error                    { return nil }

type statusRecorder struct {
	mu     sync.Mutex
	writes []ipc.StatusSnapshot
}

func (r *statusRecorder) write(s *ipc.StatusSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, *s)
	return nil
}

func (r *statusRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.writes)
}

type harness struct {
	m      *Monitor
	player *player.Log
	alerts *fakeAlerter
	bus    *eventbus.Bus
	status *statusRecorder
	clock  time.Time
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Engine.BlinkThreshold = 0.02
	return cfg
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	h := &harness{
		player: player.NewLog(),
		alerts: &fakeAlerter{},
		bus:    eventbus.New(),
		status: &statusRecorder{},
		clock:  t0,
	}
	m, err := New(Options{
		Config: cfg,
		Player: h.player,
		Alerts: h.alerts,
		Bus:    h.bus,
		Status: h.status.write,
		Now:    func() time.Time { return h.clock },
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		m.Close()
		h.bus.Close()
	})
	h.m = m
	return h
}

func receive(t *testing.T, ch <-chan eventbus.Event) eventbus.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return eventbus.Event{}
	}
}

func TestNew_validation(t *testing.T) {
	_, err := New(Options{Player: player.NewLog()})
	assert.Error(t, err)

	_, err = New(Options{Config: config.Default()})
	assert.Error(t, err)

	bad := config.Default()
	bad.Engine.CloseThreshold = -1
	_, err = New(Options{Config: bad, Player: player.NewLog()})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestTick_idleWhenStopped(t *testing.T) {
	h := newHarness(t, testConfig())
	h.m.Submit(landmarktest.Frontal().TurnedAway().Snapshot())

	out := h.m.Tick(t0)
	assert.Equal(t, attention.CommandNone, out.Command)
	assert.Zero(t, h.status.count())
	assert.Zero(t, h.m.Status().Ticks)
}

func TestStart_assignsSession(t *testing.T) {
	h := newHarness(t, testConfig())
	h.m.Start()

	st := h.m.Status()
	assert.True(t, st.Monitoring)
	_, err := uuid.Parse(st.SessionID)
	assert.NoError(t, err)
	assert.Equal(t, 1, h.status.count())

	h.m.Start()
	assert.Equal(t, st.SessionID, h.m.Status().SessionID, "start while running keeps the session")

	h.m.Stop()
	h.m.Start()
	assert.NotEqual(t, st.SessionID, h.m.Status().SessionID)
}

func TestTick_pausesWhenLookingAway(t *testing.T) {
	h := newHarness(t, testConfig())
	playback, cancel := h.bus.Subscribe(eventbus.TypePlayback)
	defer cancel()
	h.m.Start()

	h.m.Submit(landmarktest.Frontal().TurnedAway().Snapshot())
	out := h.m.Tick(t0)
	require.Equal(t, attention.CommandPause, out.Command)

	ev := receive(t, playback)
	data, ok := ev.Data.(eventbus.PlaybackData)
	require.True(t, ok)
	assert.Equal(t, "pause", data.Command)
	assert.Equal(t, "looking_away", data.Reason)
	assert.Equal(t, "log", data.Backend)
	assert.Empty(t, data.Error)
	assert.Equal(t, []attention.Command{attention.CommandPause}, h.player.Commands())

	h.clock = t0.Add(100 * time.Millisecond)
	h.m.Submit(landmarktest.Frontal().Snapshot())
	out = h.m.Tick(h.clock)
	require.Equal(t, attention.CommandPlay, out.Command)

	ev = receive(t, playback)
	assert.Equal(t, "looking_at_screen", ev.Data.(eventbus.PlaybackData).Reason)
	assert.Equal(t, "play", h.m.Status().LastCommand)
}

func TestTick_staleSnapshotCountsAsNoSubject(t *testing.T) {
	h := newHarness(t, testConfig())
	h.m.Start()

	h.m.Submit(landmarktest.Frontal().Snapshot())
	out := h.m.Tick(t0.Add(100 * time.Millisecond))
	assert.True(t, out.SubjectDetected)

	out = h.m.Tick(t0.Add(600 * time.Millisecond))
	assert.False(t, out.SubjectDetected)
	assert.Equal(t, attention.DistanceNoFace, out.Distance)
	assert.Equal(t, attention.CommandNone, out.Command)
	assert.False(t, h.m.Status().SubjectDetected)
}

func TestTick_noSnapshotYet(t *testing.T) {
	h := newHarness(t, testConfig())
	h.m.Start()

	out := h.m.Tick(t0)
	assert.False(t, out.SubjectDetected)
	assert.Empty(t, h.player.Commands())
}

func TestTick_alertsAreDeliveredAndPublished(t *testing.T) {
	h := newHarness(t, testConfig())
	alerts, cancel := h.bus.Subscribe(eventbus.TypeAlert)
	defer cancel()
	h.m.Start()

	h.m.Submit(landmarktest.Frontal().Close().Snapshot())
	out := h.m.Tick(t0)
	require.True(t, out.Has(attention.AlertTooClose))

	assert.Equal(t, []attention.Alert{attention.AlertTooClose}, h.alerts.Alerts())
	ev := receive(t, alerts)
	data := ev.Data.(eventbus.AlertData)
	assert.Equal(t, "too_close", data.Alert)
	assert.Equal(t, "Too Close", data.Title)
	assert.NotEmpty(t, ev.SessionID)

	st := h.m.Status()
	assert.Equal(t, "too_close", st.LastAlert)
	assert.Equal(t, t0, st.LastAlertAt)
}

func TestTick_notificationsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Notify.Enabled = false
	h := newHarness(t, cfg)
	h.m.Start()

	h.m.Submit(landmarktest.Frontal().Close().Snapshot())
	out := h.m.Tick(t0)
	require.True(t, out.Has(attention.AlertTooClose))
	assert.Empty(t, h.alerts.Alerts())
	assert.Equal(t, "too_close", h.m.Status().LastAlert)
}

func TestTick_statusWrittenOnChangeOrPeriodically(t *testing.T) {
	h := newHarness(t, testConfig())
	statuses, cancel := h.bus.Subscribe(eventbus.TypeStatus)
	defer cancel()
	h.m.Start()
	receive(t, statuses)
	require.Equal(t, 1, h.status.count())

	h.m.Submit(landmarktest.Frontal().Snapshot())
	h.m.Tick(t0)
	assert.Equal(t, 2, h.status.count(), "subject appeared")
	assert.True(t, receive(t, statuses).Data.(eventbus.StatusData).SubjectDetected)

	h.m.Tick(t0.Add(100 * time.Millisecond))
	assert.Equal(t, 2, h.status.count(), "nothing changed")

	h.clock = t0.Add(time.Second)
	h.m.Submit(landmarktest.Frontal().Snapshot())
	h.m.Tick(h.clock)
	assert.Equal(t, 3, h.status.count(), "periodic refresh")

	select {
	case ev := <-statuses:
		t.Fatalf("unexpected status event %+v", ev)
	default:
	}
}

func TestTick_playerFailureIsRecorded(t *testing.T) {
	m, err := New(Options{Config: testConfig(), Player: failingPlayer{}, Now: func() time.Time { return t0 }})
	require.NoError(t, err)
	defer m.Close()
	m.Start()

	m.Submit(landmarktest.Frontal().TurnedAway().Snapshot())
	require.Equal(t, attention.CommandPause, m.Tick(t0).Command)

	assert.Eventually(t, func() bool {
		return m.Status().LastError != ""
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, m.Status().LastError, "obs unreachable")
	assert.False(t, m.Status().PlayerConnected)
}

func TestToggleStrict(t *testing.T) {
	h := newHarness(t, testConfig())
	assert.True(t, h.m.ToggleStrict())
	assert.True(t, h.m.Config().Engine.StrictMode)
	assert.True(t, h.m.Status().StrictMode)
	assert.False(t, h.m.ToggleStrict())
}

func TestToggleMode(t *testing.T) {
	h := newHarness(t, testConfig())
	h.m.Start()

	assert.Equal(t, config.ModeGesture, h.m.ToggleMode())
	h.m.Submit(landmarktest.HandSnapshot(0.02))
	out := h.m.Tick(t0)
	assert.Equal(t, config.ModeGesture, out.Mode)
	assert.Equal(t, attention.CommandPause, out.Command)

	assert.Equal(t, config.ModeFace, h.m.ToggleMode())
	assert.Equal(t, "face", h.m.Status().InputMode)
}

func TestExecute(t *testing.T) {
	h := newHarness(t, testConfig())

	require.NoError(t, h.m.Execute(ipc.CmdStart))
	assert.True(t, h.m.Monitoring())
	require.NoError(t, h.m.Execute(ipc.CmdToggle))
	assert.False(t, h.m.Monitoring())
	require.NoError(t, h.m.Execute(ipc.CmdToggle))
	assert.True(t, h.m.Monitoring())
	require.NoError(t, h.m.Execute(ipc.CmdStop))
	assert.False(t, h.m.Monitoring())

	require.NoError(t, h.m.Execute(ipc.CmdStrict))
	assert.True(t, h.m.Config().Engine.StrictMode)
	require.NoError(t, h.m.Execute(ipc.CmdMode))
	assert.Equal(t, config.ModeGesture, h.m.Config().Engine.InputMode)
	require.NoError(t, h.m.Execute(ipc.CmdReset))

	assert.ErrorIs(t, h.m.Execute(ipc.CmdQuit), ErrQuit)
	assert.ErrorIs(t, h.m.Execute(ipc.Command("record")), ipc.ErrUnknownCommand)
}

func TestReset_clearsEngineState(t *testing.T) {
	h := newHarness(t, testConfig())
	h.m.Start()

	h.m.Submit(landmarktest.Frontal().TurnedAway().Snapshot())
	require.Equal(t, attention.CommandPause, h.m.Tick(t0).Command)
	assert.False(t, h.m.Status().Playing)

	h.m.Reset()
	assert.True(t, h.m.Status().Playing)
	assert.Equal(t, attention.CommandPause, h.m.Tick(t0.Add(100*time.Millisecond)).Command)
}

func TestUpdateConfig(t *testing.T) {
	h := newHarness(t, testConfig())
	before := h.m.Config()

	bad := testConfig()
	bad.Engine.LookThreshold = -1
	assert.ErrorIs(t, h.m.UpdateConfig(bad), config.ErrInvalidConfig)
	assert.Equal(t, before, h.m.Config())

	badSampling := testConfig()
	badSampling.Sampling.StaleAfterMS = 1
	assert.ErrorIs(t, h.m.UpdateConfig(badSampling), config.ErrInvalidConfig)

	good := testConfig()
	good.Engine.StrictMode = true
	good.Sampling.StaleAfterMS = 2000
	require.NoError(t, h.m.UpdateConfig(good))
	assert.True(t, h.m.Config().Engine.StrictMode)
	assert.True(t, h.m.Status().StrictMode)

	// The wider stale window keeps a 1.5s-old snapshot alive.
	h.m.Start()
	h.m.Submit(landmarktest.Frontal().Snapshot())
	assert.True(t, h.m.Tick(t0.Add(1500*time.Millisecond)).SubjectDetected)
}

func TestConcurrentSubmitAndTick(t *testing.T) {
	h := newHarness(t, testConfig())
	h.m.Start()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			h.m.Submit(landmarktest.Frontal().Snapshot())
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			h.m.Tick(t0.Add(time.Duration(i) * time.Millisecond))
			_ = h.m.Status()
		}
	}()
	wg.Wait()
	assert.Equal(t, uint64(200), h.m.Status().Ticks)
}
