package obsws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Media input actions accepted by TriggerMediaInputAction.
const (
	MediaActionPlay    = "OBS_WEBSOCKET_MEDIA_INPUT_ACTION_PLAY"
	MediaActionPause   = "OBS_WEBSOCKET_MEDIA_INPUT_ACTION_PAUSE"
	MediaActionStop    = "OBS_WEBSOCKET_MEDIA_INPUT_ACTION_STOP"
	MediaActionRestart = "OBS_WEBSOCKET_MEDIA_INPUT_ACTION_RESTART"
)

// Media states reported by GetMediaInputStatus.
const (
	MediaStatePlaying = "OBS_MEDIA_STATE_PLAYING"
	MediaStatePaused  = "OBS_MEDIA_STATE_PAUSED"
	MediaStateStopped = "OBS_MEDIA_STATE_STOPPED"
	MediaStateEnded   = "OBS_MEDIA_STATE_ENDED"
)

// MediaInputStatus is the GetMediaInputStatus response.
type MediaInputStatus struct {
	State    string `json:"mediaState"`
	Duration *int64 `json:"mediaDuration"` // milliseconds, nil when unknown
	Cursor   *int64 `json:"mediaCursor"`   // milliseconds, nil when unknown
}

// Playing reports whether OBS is playing the input.
func (s MediaInputStatus) Playing() bool {
	return s.State == MediaStatePlaying
}

// GetVersion retrieves OBS and WebSocket plugin versions
func (c *Client) GetVersion(ctx context.Context) (string, string, error) {
	resp, err := c.sendRequest(ctx, "GetVersion", nil)
	if err != nil {
		return "", "", err
	}

	var data struct {
		OBSVersion          string `json:"obsVersion"`
		OBSWebSocketVersion string `json:"obsWebSocketVersion"`
	}
	if err := json.Unmarshal(resp.ResponseData, &data); err != nil {
		return "", "", err
	}
	return data.OBSVersion, data.OBSWebSocketVersion, nil
}

// TriggerMediaInputAction sends a media action to input.
func (c *Client) TriggerMediaInputAction(ctx context.Context, input, action string) error {
	_, err := c.sendRequest(ctx, "TriggerMediaInputAction", map[string]interface{}{
		"inputName":   input,
		"mediaAction": action,
	})
	if err != nil {
		return err
	}

	// Mirror the effect locally so status does not wait for the event.
	c.stateMu.Lock()
	if c.state.Input == input {
		switch action {
		case MediaActionPlay, MediaActionRestart:
			c.state.Playing = true
		case MediaActionPause, MediaActionStop:
			c.state.Playing = false
		}
		c.state.LastUpdated = time.Now()
	}
	c.stateMu.Unlock()
	return nil
}

// GetMediaInputStatus queries the playback state of input and refreshes the
// cached state when input is the watched one.
func (c *Client) GetMediaInputStatus(ctx context.Context, input string) (*MediaInputStatus, error) {
	resp, err := c.sendRequest(ctx, "GetMediaInputStatus", map[string]interface{}{
		"inputName": input,
	})
	if err != nil {
		return nil, err
	}

	var status MediaInputStatus
	if err := json.Unmarshal(resp.ResponseData, &status); err != nil {
		return nil, fmt.Errorf("failed to parse media status: %w", err)
	}

	c.stateMu.Lock()
	if c.state.Input == input {
		c.state.MediaState = status.State
		c.state.Playing = status.Playing()
		c.state.LastUpdated = time.Now()
	}
	c.stateMu.Unlock()

	return &status, nil
}
