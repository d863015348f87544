package api

import "time"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Source describes the upstream broadcast a session mirrors.
type Source struct {
	Channel     string `json:"channel"`
	Streamer    string `json:"streamer"`
	Title       string `json:"title"`
	Category    string `json:"category,omitempty"`
	ViewerCount int    `json:"viewerCount,omitempty"`
	StartedAt   string `json:"startedAt,omitempty"`
}

// RelayStats is the latest relay telemetry.
type RelayStats struct {
	PID        int     `json:"pid"`
	Frame      int64   `json:"frame"`
	FPS        float64 `json:"fps"`
	BitrateKbs float64 `json:"bitrateKbits"`
	Speed      float64 `json:"speed"`
	OutTime    string  `json:"outTime,omitempty"`
	CPUPercent float64 `json:"cpuPercent"`
	RSSBytes   uint64  `json:"rssBytes"`
	UpdatedAt  string  `json:"updatedAt,omitempty"`
}

// SessionStatus is the live view of the current or last session.
type SessionStatus struct {
	Channel        string      `json:"channel"`
	Watching       bool        `json:"watching"`
	SourceLive     bool        `json:"sourceLive"`
	RelayOnly      bool        `json:"relayOnly"`
	SessionID      string      `json:"sessionId,omitempty"`
	State          string      `json:"state"`
	StartedAt      string      `json:"startedAt,omitempty"`
	EndedAt        string      `json:"endedAt,omitempty"`
	ElapsedSeconds int64       `json:"elapsedSeconds"`
	Source         *Source     `json:"source,omitempty"`
	BroadcastID    string      `json:"broadcastId,omitempty"`
	BroadcastURL   string      `json:"broadcastUrl,omitempty"`
	RelayActive    bool        `json:"relayActive"`
	RelayRestarts  int         `json:"relayRestarts"`
	Relay          *RelayStats `json:"relay,omitempty"`
	FailureCause   string      `json:"failureCause,omitempty"`
	FailureError   string      `json:"failureError,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool               `json:"running"`
	PID           int                `json:"pid"`
	HistoryDBPath string             `json:"historyDbPath"`
	LockFilePath  string             `json:"lockFilePath"`
	LastPoll      string             `json:"lastPoll,omitempty"`
	LastPollError string             `json:"lastPollError,omitempty"`
	Session       SessionStatus      `json:"session"`
	History       map[string]int     `json:"history,omitempty"`
	Dependencies  []DependencyStatus `json:"dependencies"`
}

// Transition is one recorded state change.
type Transition struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	At   string `json:"at"`
}

// Session is a persisted session record.
type Session struct {
	ID              string       `json:"id"`
	Channel         string       `json:"channel"`
	Streamer        string       `json:"streamer"`
	SourceTitle     string       `json:"sourceTitle"`
	Category        string       `json:"category,omitempty"`
	State           string       `json:"state"`
	BroadcastID     string       `json:"broadcastId,omitempty"`
	RelayRestarts   int          `json:"relayRestarts"`
	ReadinessChecks int          `json:"readinessChecks"`
	FailureCause    string       `json:"failureCause,omitempty"`
	FailureError    string       `json:"failureError,omitempty"`
	StartedAt       string       `json:"startedAt"`
	EndedAt         string       `json:"endedAt,omitempty"`
	DurationSeconds int64        `json:"durationSeconds"`
	Transitions     []Transition `json:"transitions,omitempty"`
}

// SessionListResponse wraps a collection of sessions.
type SessionListResponse struct {
	Sessions []Session `json:"sessions"`
}

// SessionResponse wraps a single session.
type SessionResponse struct {
	Session Session `json:"session"`
}

// EventType distinguishes websocket messages.
type EventType string

const (
	EventSnapshot EventType = "snapshot"
	EventSession  EventType = "session"
	EventRelay    EventType = "relay"
)

// Event is pushed to websocket subscribers.
type Event struct {
	Type      EventType      `json:"type"`
	At        string         `json:"at"`
	From      string         `json:"from,omitempty"`
	Status    *SessionStatus `json:"status,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	Relay     *RelayStats    `json:"relay,omitempty"`
	Message   string         `json:"message,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
