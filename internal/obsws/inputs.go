package obsws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInputNotFound is returned when the configured media input is missing.
var ErrInputNotFound = errors.New("obs: media input not found")

// Input kinds that support media actions.
var mediaInputKinds = map[string]bool{
	"ffmpeg_source": true,
	"vlc_source":    true,
}

// InputInfo is one entry of GetInputList.
type InputInfo struct {
	InputName string `json:"inputName"`
	InputKind string `json:"inputKind"`
}

// IsMedia reports whether the input accepts media actions.
func (i InputInfo) IsMedia() bool {
	return mediaInputKinds[i.InputKind]
}

// ListInputs returns every input OBS knows about.
func (c *Client) ListInputs(ctx context.Context) ([]InputInfo, error) {
	resp, err := c.sendRequest(ctx, "GetInputList", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list inputs: %w", err)
	}

	var data struct {
		Inputs []InputInfo `json:"inputs"`
	}
	if err := json.Unmarshal(resp.ResponseData, &data); err != nil {
		return nil, fmt.Errorf("failed to parse input list: %w", err)
	}
	return data.Inputs, nil
}

// ListMediaInputs returns the inputs that accept media actions.
func (c *Client) ListMediaInputs(ctx context.Context) ([]InputInfo, error) {
	inputs, err := c.ListInputs(ctx)
	if err != nil {
		return nil, err
	}
	media := inputs[:0]
	for _, in := range inputs {
		if in.IsMedia() {
			media = append(media, in)
		}
	}
	return media, nil
}

// EnsureMediaInput checks that name exists and is a media source.
func (c *Client) EnsureMediaInput(ctx context.Context, name string) error {
	inputs, err := c.ListInputs(ctx)
	if err != nil {
		return err
	}
	for _, in := range inputs {
		if in.InputName != name {
			continue
		}
		if !in.IsMedia() {
			return fmt.Errorf("obs: input %q is a %s, not a media source", name, in.InputKind)
		}
		return nil
	}

	var available []string
	for _, in := range inputs {
		if in.IsMedia() {
			available = append(available, in.InputName)
		}
	}
	return fmt.Errorf("%w: %q (media inputs: %v)", ErrInputNotFound, name, available)
}
