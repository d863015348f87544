package relay

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"mirrorcast/internal/session"
)

// EventKind labels relay events.
type EventKind string

const (
	EventProgress   EventKind = "progress"
	EventInfo       EventKind = "info"
	EventFailure    EventKind = "failure"
	EventWarning    EventKind = "warning"
	EventExit       EventKind = "exit"
	EventRestarting EventKind = "restarting"
	EventTerminal   EventKind = "terminal"
)

// FailureKind classifies fatal-looking relay output.
type FailureKind string

const (
	FailureConnectionRefused FailureKind = "connection_refused"
	FailureUnauthorized      FailureKind = "unauthorized"
	FailureForbidden         FailureKind = "forbidden"
	FailureSendFailed        FailureKind = "send_failed"
	// FailureExited is reported when the process died without a classified line.
	FailureExited FailureKind = "exited"
)

// Event is a single observation from a relay handle.
type Event struct {
	Kind     EventKind
	Line     string
	Stats    session.RelayStats
	Failure  FailureKind
	Code     int
	Attempt  int
	Delay    time.Duration
	Restarts int
	Err      error
}

var (
	frameRe   = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRe     = regexp.MustCompile(`fps=\s*([\d.]+)`)
	bitrateRe = regexp.MustCompile(`bitrate=\s*([\d.]+)\s*([kKmM]?)bits/s`)
	timeRe    = regexp.MustCompile(`time=\s*(-?\d{2}:\d{2}:\d{2}(?:\.\d+)?)`)
	speedRe   = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

var infoMarkers = []string{
	"Stream mapping:",
	"Input #0",
	"Output #0",
	"encoder",
	"Stream #0:",
	"Press [q] to stop",
	"built with",
	"configuration:",
	"Duration:",
	"Metadata:",
}

// Classify maps one line of ffmpeg output to an event. Blank and
// unremarkable lines yield false.
func Classify(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Event{}, false
	}
	if strings.Contains(line, "frame=") && strings.Contains(line, "fps=") && strings.Contains(line, "bitrate=") {
		if stats, ok := ParseStats(line); ok {
			return Event{Kind: EventProgress, Line: line, Stats: stats}, true
		}
	}
	for _, marker := range infoMarkers {
		if strings.Contains(line, marker) {
			return Event{Kind: EventInfo, Line: line}, true
		}
	}
	if kind, ok := failureKind(line); ok {
		return Event{Kind: EventFailure, Line: line, Failure: kind}, true
	}
	lower := strings.ToLower(line)
	if (strings.Contains(lower, "error") || strings.Contains(lower, "failed")) &&
		!strings.Contains(line, "frame=") && !strings.Contains(line, "speed=") && !strings.Contains(line, "time=") &&
		len(line) > 10 {
		return Event{Kind: EventWarning, Line: line}, true
	}
	return Event{}, false
}

func failureKind(line string) (FailureKind, bool) {
	switch {
	case strings.Contains(line, "Connection refused"), strings.Contains(line, "Connection timed out"):
		return FailureConnectionRefused, true
	case strings.Contains(line, "401 Unauthorized"), strings.Contains(line, "Authentication failed"):
		return FailureUnauthorized, true
	case strings.Contains(line, "403 Forbidden"), strings.Contains(line, "Publishing denied"):
		return FailureForbidden, true
	case strings.Contains(line, "RTMP_SendPacket") && strings.Contains(line, "failed"):
		return FailureSendFailed, true
	default:
		return "", false
	}
}

// ParseStats extracts progress counters from an ffmpeg status line. Frame,
// fps and bitrate are required.
func ParseStats(line string) (session.RelayStats, bool) {
	frame := frameRe.FindStringSubmatch(line)
	fps := fpsRe.FindStringSubmatch(line)
	bitrate := bitrateRe.FindStringSubmatch(line)
	if frame == nil || fps == nil || bitrate == nil {
		return session.RelayStats{}, false
	}
	var stats session.RelayStats
	stats.Frame, _ = strconv.ParseInt(frame[1], 10, 64)
	stats.FPS, _ = strconv.ParseFloat(fps[1], 64)
	kbits, _ := strconv.ParseFloat(bitrate[1], 64)
	switch strings.ToLower(bitrate[2]) {
	case "m":
		kbits *= 1000
	case "":
		kbits /= 1000
	}
	stats.BitrateKbs = kbits
	if m := timeRe.FindStringSubmatch(line); m != nil {
		stats.OutTime = m[1]
	}
	if m := speedRe.FindStringSubmatch(line); m != nil {
		stats.Speed, _ = strconv.ParseFloat(m[1], 64)
	}
	return stats, true
}
