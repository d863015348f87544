package watcher

import (
	"mirrorcast/internal/session"
	"mirrorcast/internal/source"
)

// Kind distinguishes start and end edges.
type Kind string

const (
	StreamStarted Kind = "stream_started"
	StreamEnded   Kind = "stream_ended"
)

// Event is an availability edge. Snapshot is populated for StreamStarted.
type Event struct {
	Kind     Kind
	Channel  string
	Snapshot session.SourceSnapshot
}

// Detect maps the previous liveness and the latest poll result to an optional
// edge event. A failed poll never produces an event, so the last known state
// survives transient query errors.
func Detect(wasLive bool, status source.Status, pollErr error) (Event, bool) {
	if pollErr != nil {
		return Event{}, false
	}
	switch {
	case !wasLive && status.Live:
		return Event{Kind: StreamStarted, Channel: status.Snapshot.Channel, Snapshot: status.Snapshot}, true
	case wasLive && !status.Live:
		return Event{Kind: StreamEnded}, true
	default:
		return Event{}, false
	}
}
