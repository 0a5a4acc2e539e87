package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/tiroq/focusflow/internal/ipc"
)

// staleAfter is how old a status may get before the daemon is presumed
// gone; a running daemon rewrites it every second.
const staleAfter = 5 * time.Second

func pick(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}

// statusLine is the one-line summary used by watch.
func statusLine(st *ipc.StatusSnapshot) string {
	if !st.Monitoring {
		return "monitoring stopped"
	}
	parts := []string{st.InputMode}
	if st.StrictMode {
		parts = append(parts, "strict")
	}
	parts = append(parts, pick(st.Playing, "playing", "paused"))
	if !st.SubjectDetected {
		parts = append(parts, "no subject")
	}
	for _, s := range []string{st.Distance, st.Drowsiness, st.Gesture} {
		if s != "" && s != "no_face_detected" && s != "no_hand_detected" {
			parts = append(parts, s)
		}
	}
	if st.AwayTicks > 0 {
		parts = append(parts, fmt.Sprintf("away %d", st.AwayTicks))
	}
	return strings.Join(parts, " | ")
}

// writeStatus prints st as an aligned table.
func writeStatus(w io.Writer, st *ipc.StatusSnapshot, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row := func(k, v string) { fmt.Fprintf(tw, "%s:\t%s\n", k, v) }

	row("Monitoring", pick(st.Monitoring, "on", "off"))
	if st.SessionID != "" {
		row("Session", st.SessionID)
	}
	row("Input mode", st.InputMode)
	row("Strict mode", pick(st.StrictMode, "on", "off"))
	row("Playback", pick(st.Playing, "playing", "paused"))
	row("Player", pick(st.PlayerConnected, "connected", "disconnected"))
	row("Subject", pick(st.SubjectDetected, "detected", "not detected"))
	if st.Distance != "" {
		row("Distance", st.Distance)
	}
	if st.Drowsiness != "" {
		row("Drowsiness", st.Drowsiness)
		row("Blinks/min", fmt.Sprint(st.BlinkCount))
	}
	if st.Gesture != "" {
		row("Gesture", st.Gesture)
	}
	if st.StrictMode {
		row("Away ticks", fmt.Sprint(st.AwayTicks))
	}
	if st.LastCommand != "" {
		row("Last command", st.LastCommand)
	}
	if st.LastAlert != "" {
		row("Last alert", fmt.Sprintf("%s (%s ago)", st.LastAlert, now.Sub(st.LastAlertAt).Round(time.Second)))
	}
	if st.LastError != "" {
		row("Last error", st.LastError)
	}
	row("Ticks", fmt.Sprint(st.Ticks))

	age := now.Sub(st.Timestamp).Round(time.Second)
	if age > staleAfter {
		row("Updated", fmt.Sprintf("%s ago (daemon may not be running)", age))
	} else {
		row("Updated", st.Timestamp.Local().Format(time.RFC3339))
	}
	_ = tw.Flush()
}
