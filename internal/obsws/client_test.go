package obsws

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiroq/focusflow/internal/obsws/obswstest"
)

const testInput = "Lecture"

func newServer(t *testing.T) *obswstest.Server {
	t.Helper()
	srv := obswstest.NewServer()
	srv.AddInput(testInput, "ffmpeg_source")
	t.Cleanup(srv.Close)
	return srv
}

func connect(t *testing.T, srv *obswstest.Server, password string) *Client {
	t.Helper()
	c := NewClient(srv.URL(), password, testInput)
	c.SetReconnectEnabled(false)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(c.Disconnect)
	return c
}

func TestNewClient(t *testing.T) {
	c := NewClient("ws://localhost:4455", "", testInput)

	assert.False(t, c.IsConnected())
	state := c.MediaState()
	assert.Equal(t, testInput, state.Input)
	assert.Equal(t, "disconnected", state.OBSStatus)
	assert.False(t, state.Playing)
}

func TestConnect_Success(t *testing.T) {
	srv := newServer(t)
	c := connect(t, srv, "")

	assert.True(t, c.IsConnected())
	state := c.MediaState()
	assert.Equal(t, "connected", state.OBSStatus)
	assert.Equal(t, "5.4.2", state.OBSVersion)
}

func TestConnect_Password(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  string
	}{
		{name: "correct", password: "hunter2"},
		{name: "wrong", password: "nope", wantErr: "identify rejected"},
		{name: "missing", password: "", wantErr: "requires a password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t)
			srv.SetPassword("hunter2")

			c := NewClient(srv.URL(), tt.password, testInput)
			c.SetReconnectEnabled(false)
			defer c.Disconnect()

			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			err := c.Connect(ctx)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.True(t, c.IsConnected())
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.False(t, c.IsConnected())
		})
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1", "", testInput)
	c.SetReconnectEnabled(false)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.Error(t, c.Connect(ctx))
	assert.False(t, c.IsConnected())
	assert.Equal(t, "disconnected", c.MediaState().OBSStatus)
}

func TestConnect_AlreadyConnected(t *testing.T) {
	srv := newServer(t)
	c := connect(t, srv, "")

	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyConnected)
	assert.True(t, c.IsConnected())
}

func TestDisconnect(t *testing.T) {
	srv := newServer(t)
	c := connect(t, srv, "")

	c.Disconnect()
	assert.False(t, c.IsConnected())
	assert.Equal(t, "disconnected", c.MediaState().OBSStatus)

	err := c.TriggerMediaInputAction(context.Background(), testInput, MediaActionPlay)
	assert.ErrorIs(t, err, ErrNotConnected)

	// Safe to call twice.
	c.Disconnect()
}

func TestGetVersion(t *testing.T) {
	srv := newServer(t)
	c := connect(t, srv, "")

	obsVersion, wsVersion, err := c.GetVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "30.1.2", obsVersion)
	assert.Equal(t, "5.4.2", wsVersion)
}

func TestTriggerMediaInputAction(t *testing.T) {
	srv := newServer(t)
	c := connect(t, srv, "")
	ctx := context.Background()

	require.NoError(t, c.TriggerMediaInputAction(ctx, testInput, MediaActionPlay))
	assert.Equal(t, MediaStatePlaying, srv.MediaState(testInput))
	assert.True(t, c.MediaState().Playing)

	require.NoError(t, c.TriggerMediaInputAction(ctx, testInput, MediaActionPause))
	assert.Equal(t, MediaStatePaused, srv.MediaState(testInput))
	assert.False(t, c.MediaState().Playing)

	reqs := srv.Requests("TriggerMediaInputAction")
	require.Len(t, reqs, 2)
	assert.Equal(t, testInput, reqs[0].Data["inputName"])
	assert.Equal(t, MediaActionPlay, reqs[0].Data["mediaAction"])
	assert.Equal(t, MediaActionPause, reqs[1].Data["mediaAction"])
}

func TestTriggerMediaInputAction_UnknownInput(t *testing.T) {
	srv := newServer(t)
	c := connect(t, srv, "")

	err := c.TriggerMediaInputAction(context.Background(), "Missing", MediaActionPlay)
	require.Error(t, err)

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, 600, reqErr.Code)
	assert.Equal(t, "TriggerMediaInputAction", reqErr.RequestType)
	assert.Contains(t, err.Error(), "resource not found")

	// Another input failing leaves the watched state alone.
	assert.False(t, c.MediaState().Playing)
}

func TestGetMediaInputStatus(t *testing.T) {
	srv := newServer(t)
	srv.SetMediaState(testInput, MediaStatePlaying)
	c := connect(t, srv, "")

	status, err := c.GetMediaInputStatus(context.Background(), testInput)
	require.NoError(t, err)
	assert.Equal(t, MediaStatePlaying, status.State)
	assert.True(t, status.Playing())
	require.NotNil(t, status.Duration)
	assert.Equal(t, int64(3600000), *status.Duration)

	state := c.MediaState()
	assert.True(t, state.Playing)
	assert.Equal(t, MediaStatePlaying, state.MediaState)
}

func TestRequestFailureKeepsConnection(t *testing.T) {
	srv := newServer(t)
	c := connect(t, srv, "")
	srv.Fail("GetVersion", 204, "Your request type is not valid.")

	_, _, err := c.GetVersion(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "204")
	assert.True(t, c.IsConnected())
}

func TestRequestHonoursContext(t *testing.T) {
	srv := newServer(t)
	c := connect(t, srv, "")
	srv.Silence("GetVersion")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, _, err := c.GetVersion(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrentRequests(t *testing.T) {
	srv := newServer(t)
	c := connect(t, srv, "")

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetVersion(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, srv.Requests("GetVersion"), 5)
}

func TestEnsureMediaInput(t *testing.T) {
	srv := newServer(t)
	srv.AddInput("Playlist", "vlc_source")
	srv.AddInput("Camera", "av_capture_input")
	c := connect(t, srv, "")

	tests := []struct {
		name     string
		input    string
		wantErr  string
		notFound bool
	}{
		{name: "ffmpeg source", input: testInput},
		{name: "vlc source", input: "Playlist"},
		{name: "not media", input: "Camera", wantErr: "not a media source"},
		{name: "missing", input: "Slides", wantErr: "Slides", notFound: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.EnsureMediaInput(context.Background(), tt.input)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, tt.notFound, errors.Is(err, ErrInputNotFound))
		})
	}
}

func TestListMediaInputs(t *testing.T) {
	srv := newServer(t)
	srv.AddInput("Camera", "av_capture_input")
	c := connect(t, srv, "")

	all, err := c.ListInputs(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	media, err := c.ListMediaInputs(context.Background())
	require.NoError(t, err)
	require.Len(t, media, 1)
	assert.Equal(t, testInput, media[0].InputName)
}

type mediaChange struct {
	input   string
	playing bool
}

func TestMediaEvents(t *testing.T) {
	srv := newServer(t)
	c := connect(t, srv, "")

	changes := make(chan mediaChange, 4)
	c.OnMediaChanged(func(input string, playing bool) {
		changes <- mediaChange{input, playing}
	})

	next := func() mediaChange {
		t.Helper()
		select {
		case ch := <-changes:
			return ch
		case <-time.After(2 * time.Second):
			t.Fatal("no media change received")
			return mediaChange{}
		}
	}

	srv.Emit("MediaInputPlaybackStarted", map[string]interface{}{"inputName": testInput})
	assert.Equal(t, mediaChange{testInput, true}, next())
	assert.True(t, c.MediaState().Playing)

	// Other inputs and unrelated events are ignored.
	srv.Emit("MediaInputPlaybackStarted", map[string]interface{}{"inputName": "Other"})
	srv.Emit("InputMuteStateChanged", map[string]interface{}{"inputName": testInput})
	srv.Emit("MediaInputPlaybackEnded", map[string]interface{}{"inputName": testInput})
	assert.Equal(t, mediaChange{testInput, false}, next())

	// Actions triggered by anyone, including us, are reported.
	require.NoError(t, c.TriggerMediaInputAction(context.Background(), testInput, MediaActionPlay))
	assert.Equal(t, mediaChange{testInput, true}, next())
}

func TestOnDisconnected(t *testing.T) {
	srv := newServer(t)
	c := connect(t, srv, "")

	dropped := make(chan struct{}, 1)
	c.OnDisconnected(func() {
		select {
		case dropped <- struct{}{}:
		default:
		}
	})

	srv.DropConnections()
	select {
	case <-dropped:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect handler not called")
	}
	assert.Eventually(t, func() bool { return !c.IsConnected() }, 2*time.Second, 10*time.Millisecond)
}

func TestReconnectAfterDrop(t *testing.T) {
	srv := newServer(t)
	c := connect(t, srv, "")
	c.SetReconnectDelay(10 * time.Millisecond)
	c.SetReconnectEnabled(true)

	srv.DropConnections()

	assert.Eventually(t, func() bool {
		if !c.IsConnected() {
			return false
		}
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		_, _, err := c.GetVersion(ctx)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		name     string
		delay    time.Duration
		min, max time.Duration
	}{
		{name: "doubles", delay: 5 * time.Second, min: 9 * time.Second, max: 11 * time.Second},
		{name: "caps at a minute", delay: 45 * time.Second, min: 54 * time.Second, max: 66 * time.Second},
		{name: "floor of one second", delay: 100 * time.Millisecond, min: time.Second, max: time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 50; i++ {
				got := nextBackoff(tt.delay)
				assert.GreaterOrEqual(t, got, tt.min)
				assert.LessOrEqual(t, got, tt.max)
			}
		})
	}
}

func TestRequestErrorMessage(t *testing.T) {
	err := &RequestError{RequestType: "GetVersion", Code: 203, Comment: "timed out"}
	assert.Equal(t, "obs: GetVersion failed (code 203): timed out", err.Error())
}
