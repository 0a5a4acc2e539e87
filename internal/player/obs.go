package player

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tiroq/focusflow/internal/log"
	"github.com/tiroq/focusflow/internal/obsws"
	"github.com/tiroq/focusflow/internal/validation"
)

// OBS controls a media source in OBS Studio.
type OBS struct {
	client *obsws.Client
	input  string
}

// NewOBS wraps client. input is the media source to play and pause.
func NewOBS(client *obsws.Client, input string) *OBS {
	return &OBS{client: client, input: input}
}

// Connect connects to OBS and checks the media input exists. A missing
// input is logged, not fatal: the user may add it later.
func (o *OBS) Connect(ctx context.Context) error {
	if err := o.client.Connect(ctx); err != nil && !errors.Is(err, obsws.ErrAlreadyConnected) {
		return fmt.Errorf("connect to obs: %w", err)
	}

	if obsVersion, wsVersion, err := o.client.GetVersion(ctx); err == nil {
		log.Info("connected to obs", "obs_version", obsVersion, "websocket_version", wsVersion)
		if health := validation.CheckOBSHealth(obsVersion, wsVersion); !health.OK {
			log.Warn(health.Message, "issues", health.Issues, "fixes", health.Fixes)
		}
	}
	if err := o.client.EnsureMediaInput(ctx, o.input); err != nil {
		log.Warn("obs media input not usable", "input", o.input, "error", err,
			"fixes", validation.SuggestedFixes(err, o.input))
	}
	if status, err := o.client.GetMediaInputStatus(ctx, o.input); err == nil {
		log.Debug("obs media input status", "input", o.input, "state", status.State)
	}
	return nil
}

// Start connects in the background, retrying every retry until it succeeds
// or ctx is done. Later drops are handled by the client's own reconnect.
func (o *OBS) Start(ctx context.Context, retry time.Duration) {
	go func() {
		for {
			connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := o.Connect(connectCtx)
			cancel()
			if err == nil {
				return
			}
			log.Warn("obs not reachable, retrying", "error", err, "retry_in", retry,
				"fixes", validation.SuggestedFixes(err, o.input))

			select {
			case <-ctx.Done():
				return
			case <-time.After(retry):
			}
		}
	}()
}

// Play resumes the media input.
func (o *OBS) Play(ctx context.Context) error {
	return o.client.TriggerMediaInputAction(ctx, o.input, obsws.MediaActionPlay)
}

// Pause pauses the media input.
func (o *OBS) Pause(ctx context.Context) error {
	return o.client.TriggerMediaInputAction(ctx, o.input, obsws.MediaActionPause)
}

// Connected reports whether OBS is connected and identified.
func (o *OBS) Connected() bool {
	return o.client.IsConnected()
}

// Name implements Controller.
func (o *OBS) Name() string { return "obs" }

// State returns the cached media state.
func (o *OBS) State() obsws.MediaState {
	return o.client.MediaState()
}

// OnExternalChange registers fn for playback changes made in OBS,
// including by hand.
func (o *OBS) OnExternalChange(fn func(playing bool)) {
	o.client.OnMediaChanged(func(_ string, playing bool) { fn(playing) })
}

// OnDisconnected registers fn for connection loss.
func (o *OBS) OnDisconnected(fn func()) {
	o.client.OnDisconnected(fn)
}

// Close disconnects and stops reconnecting.
func (o *OBS) Close() error {
	o.client.Disconnect()
	return nil
}
