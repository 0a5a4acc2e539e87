// Package validation checks that the OBS instance focusflow drives can play
// and pause media inputs, and turns OBS failures into troubleshooting hints.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tiroq/focusflow/internal/obsws"
)

// Media input actions arrived with obs-websocket 5.0, bundled since OBS 28.
const (
	minOBSMajor       = 28
	minWebSocketMajor = 5
)

var versionRe = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)

// Result is the outcome of a compatibility check.
type Result struct {
	OK      bool
	Message string
	Issues  []string
	Fixes   []string
}

func (r *Result) merge(other *Result) {
	if !other.OK {
		r.OK = false
	}
	r.Issues = append(r.Issues, other.Issues...)
	r.Fixes = append(r.Fixes, other.Fixes...)
}

// parseMajor returns the major and minor parts of a x.y.z version string.
func parseMajor(version string) (major, minor int, ok bool) {
	m := versionRe.FindStringSubmatch(version)
	if len(m) < 4 {
		return 0, 0, false
	}
	major, _ = strconv.Atoi(m[1])
	minor, _ = strconv.Atoi(m[2])
	return major, minor, true
}

// CheckOBSVersion requires OBS 28.0 or later.
func CheckOBSVersion(version string) *Result {
	major, minor, ok := parseMajor(version)
	if !ok {
		return &Result{
			Message: fmt.Sprintf("could not parse OBS version %q", version),
			Issues:  []string{"invalid OBS version format"},
			Fixes:   []string{"Update OBS from https://obsproject.com"},
		}
	}
	if major < minOBSMajor {
		return &Result{
			Message: fmt.Sprintf("OBS %d.%d is too old", major, minor),
			Issues:  []string{fmt.Sprintf("OBS %d.%d has no media input actions (requires %d.0+)", major, minor, minOBSMajor)},
			Fixes:   []string{fmt.Sprintf("Update OBS to %d.0 or later from https://obsproject.com", minOBSMajor)},
		}
	}
	return &Result{OK: true, Message: fmt.Sprintf("OBS %d.%d is compatible", major, minor)}
}

// CheckWebSocketVersion requires obs-websocket 5.x.
func CheckWebSocketVersion(version string) *Result {
	major, _, ok := parseMajor(version)
	if !ok || major != minWebSocketMajor {
		return &Result{
			Message: fmt.Sprintf("obs-websocket %s is incompatible", version),
			Issues:  []string{fmt.Sprintf("obs-websocket %s detected (requires 5.x)", version)},
			Fixes:   []string{"Update the obs-websocket plugin to 5.0 or later"},
		}
	}
	return &Result{OK: true, Message: fmt.Sprintf("obs-websocket %s is compatible", version)}
}

// CheckOBSHealth combines the OBS and obs-websocket checks.
func CheckOBSHealth(obsVersion, wsVersion string) *Result {
	obs := CheckOBSVersion(obsVersion)
	ws := CheckWebSocketVersion(wsVersion)

	result := &Result{OK: true}
	result.merge(obs)
	result.merge(ws)

	prefix := "OBS health check passed: "
	if !result.OK {
		prefix = "OBS health check failed: "
	}
	result.Message = prefix + obs.Message + " | " + ws.Message
	return result
}

// SuggestedFixes returns troubleshooting steps for an error returned by the
// OBS player.
func SuggestedFixes(err error, input string) []string {
	if err == nil {
		return nil
	}

	var reqErr *obsws.RequestError
	switch {
	case errors.Is(err, obsws.ErrInputNotFound):
		return []string{
			fmt.Sprintf("Add a Media Source named %q to the current scene", input),
			"Or set player.media_input to the name of an existing media source",
		}
	case errors.As(err, &reqErr):
		switch reqErr.Code {
		case 600:
			return []string{
				fmt.Sprintf("OBS has no input named %q", input),
				"Check player.media_input matches the source name exactly",
			}
		case 604, 605:
			return []string{
				fmt.Sprintf("%q is not a media source", input),
				"Use a Media Source or VLC Video Source for playback control",
			}
		case 204:
			return []string{
				"OBS rejected the request type",
				fmt.Sprintf("Update OBS to %d.0+ with obs-websocket 5.x", minOBSMajor),
			}
		default:
			return []string{fmt.Sprintf("OBS error %d: %s", reqErr.Code, reqErr.Comment)}
		}
	case errors.Is(err, obsws.ErrNotConnected), strings.Contains(err.Error(), "connect"):
		return []string{
			"Make sure OBS is running",
			"Enable the WebSocket server in Tools > WebSocket Server Settings",
			"Check player.url and player.password",
		}
	}
	return []string{err.Error()}
}
