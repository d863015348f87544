package ipc

import "mirrorcast/internal/api"

// StartRequest starts channel watching.
type StartRequest struct{}

// StartResponse indicates whether watching was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops channel watching.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// SessionStatus mirrors the HTTP API session DTO.
type SessionStatus = api.SessionStatus

// DependencyStatus describes availability of an external dependency.
type DependencyStatus = api.DependencyStatus

// Session mirrors the HTTP API history DTO.
type Session = api.Session

// StatusResponse is the daemon status as served over the HTTP API.
type StatusResponse = api.DaemonStatus

// HistoryRequest lists recent sessions, newest first.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// HistoryResponse contains recorded sessions.
type HistoryResponse struct {
	Sessions []Session `json:"sessions"`
}

// SessionRequest fetches one recorded session by id.
type SessionRequest struct {
	ID string `json:"id"`
}

// SessionResponse contains a single recorded session.
type SessionResponse struct {
	Session Session `json:"session"`
}

// StopSessionRequest ends the active mirror session without stopping watching.
type StopSessionRequest struct{}

// StopSessionResponse reports whether a session was active.
type StopSessionResponse struct {
	Stopped bool `json:"stopped"`
}

// ResolveRequest resolves the playable feed for a channel.
type ResolveRequest struct {
	Channel string `json:"channel"`
}

// ResolveAttempt reports one strategy outcome.
type ResolveAttempt struct {
	Strategy   string `json:"strategy"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// ResolveResponse contains the resolved URL, if any, and every attempt made.
type ResolveResponse struct {
	URL      string           `json:"url"`
	Attempts []ResolveAttempt `json:"attempts"`
	Error    string           `json:"error,omitempty"`
}

// LogTailRequest fetches daemon log lines.
type LogTailRequest struct {
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	Session    string `json:"session,omitempty"`
}

// LogTailResponse contains log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification result.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
