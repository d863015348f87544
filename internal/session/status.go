package session

import "time"

// RelayStats is the latest progress telemetry reported by the relay.
type RelayStats struct {
	Frame      int64     `json:"frame"`
	FPS        float64   `json:"fps"`
	BitrateKbs float64   `json:"bitrate_kbits"`
	OutTime    string    `json:"out_time"`
	Speed      float64   `json:"speed"`
	CPUPercent float64   `json:"cpu_percent"`
	RSSBytes   uint64    `json:"rss_bytes"`
	PID        int       `json:"pid"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Status is a point-in-time view of the coordinator for operators.
type Status struct {
	Watching      bool            `json:"watching"`
	Channel       string          `json:"channel"`
	SourceLive    bool            `json:"source_live"`
	SessionID     string          `json:"session_id,omitempty"`
	State         State           `json:"state"`
	StartedAt     time.Time       `json:"started_at,omitempty"`
	EndedAt       time.Time       `json:"ended_at,omitempty"`
	Elapsed       time.Duration   `json:"elapsed"`
	Source        *SourceSnapshot `json:"source,omitempty"`
	BroadcastID   string          `json:"broadcast_id,omitempty"`
	RelayRestarts int             `json:"relay_restarts"`
	RelayActive   bool            `json:"relay_active"`
	Relay         *RelayStats     `json:"relay,omitempty"`
	FailureCause  string          `json:"failure_cause,omitempty"`
	FailureError  string          `json:"failure_error,omitempty"`
	RelayOnly     bool            `json:"relay_only"`
}

// Snapshot builds a Status from the session. A nil session yields Idle.
func Snapshot(s *Session, now time.Time) Status {
	if s == nil {
		return Status{State: StateIdle}
	}
	src := s.Source
	return Status{
		SessionID:     s.ID,
		State:         s.State,
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
		Elapsed:       s.Elapsed(now),
		Source:        &src,
		BroadcastID:   s.BroadcastID,
		RelayRestarts: s.RelayRestarts,
		FailureCause:  s.FailureCause,
		FailureError:  s.FailureError,
	}
}
