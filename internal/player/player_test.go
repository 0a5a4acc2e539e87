package player

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiroq/focusflow/internal/attention"
	"github.com/tiroq/focusflow/internal/config"
	"github.com/tiroq/focusflow/internal/diaglog"
	"github.com/tiroq/focusflow/internal/obsws"
	"github.com/tiroq/focusflow/internal/obsws/obswstest"
)

var (
	_ Controller = (*OBS)(nil)
	_ Controller = (*Log)(nil)
)

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		cmds    []attention.Command
		want    []attention.Command
		playing bool
		wantErr bool
	}{
		{name: "none is a no-op", cmds: []attention.Command{attention.CommandNone}},
		{name: "play", cmds: []attention.Command{attention.CommandPlay}, want: []attention.Command{attention.CommandPlay}, playing: true},
		{
			name:    "play then pause",
			cmds:    []attention.Command{attention.CommandPlay, attention.CommandNone, attention.CommandPause},
			want:    []attention.Command{attention.CommandPlay, attention.CommandPause},
			playing: false,
		},
		{name: "unknown", cmds: []attention.Command{"rewind"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewLog()
			var err error
			for _, cmd := range tt.cmds {
				if e := Apply(context.Background(), p, cmd); e != nil {
					err = e
				}
			}
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Commands())
			assert.Equal(t, tt.playing, p.Playing())
		})
	}
}

func TestNew(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := New(ctx, config.PlayerConfig{Backend: "log"}, diaglog.NewNoOp())
	require.NoError(t, err)
	assert.Equal(t, "log", c.Name())
	assert.True(t, c.Connected())

	_, err = New(ctx, config.PlayerConfig{Backend: "vlc"}, diaglog.NewNoOp())
	assert.Error(t, err)
}

func TestNew_OBSConnectsInBackground(t *testing.T) {
	srv := obswstest.NewServer()
	srv.AddInput("Lecture", "ffmpeg_source")
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := New(ctx, config.PlayerConfig{Backend: "obs", URL: srv.URL(), MediaInput: "Lecture"}, diaglog.NewNoOp())
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "obs", c.Name())
	require.Eventually(t, c.Connected, 3*time.Second, 10*time.Millisecond)
}

func newOBS(t *testing.T) (*OBS, *obswstest.Server) {
	t.Helper()
	srv := obswstest.NewServer()
	srv.AddInput("Lecture", "ffmpeg_source")
	t.Cleanup(srv.Close)

	client := obsws.NewClient(srv.URL(), "", "Lecture")
	client.SetReconnectEnabled(false)
	o := NewOBS(client, "Lecture")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, o.Connect(ctx))
	t.Cleanup(func() { _ = o.Close() })
	return o, srv
}

func TestOBS_PlayPause(t *testing.T) {
	o, srv := newOBS(t)
	ctx := context.Background()

	require.NoError(t, Apply(ctx, o, attention.CommandPlay))
	assert.Equal(t, obsws.MediaStatePlaying, srv.MediaState("Lecture"))
	assert.True(t, o.State().Playing)

	require.NoError(t, Apply(ctx, o, attention.CommandPause))
	assert.Equal(t, obsws.MediaStatePaused, srv.MediaState("Lecture"))
	assert.False(t, o.State().Playing)

	assert.Len(t, srv.Requests("TriggerMediaInputAction"), 2)
}

func TestOBS_ConnectChecksInput(t *testing.T) {
	_, srv := newOBS(t)
	assert.Len(t, srv.Requests("GetInputList"), 1)
	assert.Len(t, srv.Requests("GetMediaInputStatus"), 1)
}

func TestOBS_MissingInputIsNotFatal(t *testing.T) {
	srv := obswstest.NewServer()
	defer srv.Close()

	client := obsws.NewClient(srv.URL(), "", "Lecture")
	client.SetReconnectEnabled(false)
	o := NewOBS(client, "Lecture")
	defer o.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, o.Connect(ctx))
	assert.True(t, o.Connected())

	err := o.Play(ctx)
	var reqErr *obsws.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, 600, reqErr.Code)
}

func TestOBS_ExternalChange(t *testing.T) {
	o, srv := newOBS(t)

	changes := make(chan bool, 1)
	o.OnExternalChange(func(playing bool) { changes <- playing })

	srv.Emit("MediaInputPlaybackStarted", map[string]interface{}{"inputName": "Lecture"})
	select {
	case playing := <-changes:
		assert.True(t, playing)
	case <-time.After(2 * time.Second):
		t.Fatal("external change not reported")
	}
}

func TestOBS_PlayWhileDisconnected(t *testing.T) {
	client := obsws.NewClient("ws://127.0.0.1:1", "", "Lecture")
	o := NewOBS(client, "Lecture")

	assert.False(t, o.Connected())
	assert.ErrorIs(t, o.Pause(context.Background()), obsws.ErrNotConnected)
}
