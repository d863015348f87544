package api

import (
	"strings"
	"time"

	"mirrorcast/internal/history"
	"mirrorcast/internal/relay"
	"mirrorcast/internal/session"
)

// FromStatus converts a coordinator status to its API representation.
func FromStatus(st session.Status) SessionStatus {
	dto := SessionStatus{
		Channel:        st.Channel,
		Watching:       st.Watching,
		SourceLive:     st.SourceLive,
		RelayOnly:      st.RelayOnly,
		SessionID:      st.SessionID,
		State:          string(st.State),
		StartedAt:      formatTime(st.StartedAt),
		EndedAt:        formatTime(st.EndedAt),
		ElapsedSeconds: int64(st.Elapsed / time.Second),
		BroadcastID:    st.BroadcastID,
		BroadcastURL:   BroadcastURL(st.BroadcastID),
		RelayActive:    st.RelayActive,
		RelayRestarts:  st.RelayRestarts,
		FailureCause:   st.FailureCause,
		FailureError:   st.FailureError,
	}
	if st.Source != nil {
		src := fromSource(*st.Source)
		dto.Source = &src
	}
	if st.Relay != nil {
		stats := FromRelayStats(*st.Relay)
		dto.Relay = &stats
	}
	return dto
}

// FromRelayStats converts relay telemetry.
func FromRelayStats(stats session.RelayStats) RelayStats {
	return RelayStats{
		PID:        stats.PID,
		Frame:      stats.Frame,
		FPS:        stats.FPS,
		BitrateKbs: stats.BitrateKbs,
		Speed:      stats.Speed,
		OutTime:    stats.OutTime,
		CPUPercent: stats.CPUPercent,
		RSSBytes:   stats.RSSBytes,
		UpdatedAt:  formatTime(stats.UpdatedAt),
	}
}

// FromRecord converts a history record.
func FromRecord(rec *history.Record) Session {
	if rec == nil {
		return Session{}
	}
	dto := Session{
		ID:              rec.ID,
		Channel:         rec.Channel,
		Streamer:        rec.Streamer,
		SourceTitle:     rec.SourceTitle,
		Category:        rec.Category,
		State:           string(rec.State),
		BroadcastID:     rec.BroadcastID,
		RelayRestarts:   rec.RelayRestarts,
		ReadinessChecks: rec.ReadinessChecks,
		FailureCause:    rec.FailureCause,
		FailureError:    rec.FailureError,
		StartedAt:       formatTime(rec.StartedAt),
		DurationSeconds: int64(rec.Duration() / time.Second),
	}
	if rec.EndedAt != nil {
		dto.EndedAt = formatTime(*rec.EndedAt)
	}
	if len(rec.Transitions) > 0 {
		dto.Transitions = make([]Transition, 0, len(rec.Transitions))
		for _, tr := range rec.Transitions {
			dto.Transitions = append(dto.Transitions, Transition{
				From: string(tr.From),
				To:   string(tr.To),
				At:   formatTime(tr.At),
			})
		}
	}
	return dto
}

// FromRecords converts a slice of history records.
func FromRecords(records []history.Record) []Session {
	out := make([]Session, 0, len(records))
	for i := range records {
		out = append(out, FromRecord(&records[i]))
	}
	return out
}

// RelayEvent converts a relay event into a websocket message. Only progress,
// failure and restart events are forwarded.
func RelayEvent(sessionID string, evt relay.Event, at time.Time) (Event, bool) {
	msg := Event{Type: EventRelay, At: formatTime(at), SessionID: sessionID}
	switch evt.Kind {
	case relay.EventProgress:
		stats := FromRelayStats(evt.Stats)
		msg.Relay = &stats
	case relay.EventFailure, relay.EventWarning:
		msg.Message = evt.Line
	case relay.EventRestarting:
		msg.Message = "relay restarting"
	case relay.EventTerminal:
		msg.Message = "relay gave up: " + string(evt.Failure)
	default:
		return Event{}, false
	}
	return msg, true
}

// BroadcastURL returns the watch URL for a broadcast id.
func BroadcastURL(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	return "https://youtu.be/" + id
}

func fromSource(src session.SourceSnapshot) Source {
	return Source{
		Channel:     src.Channel,
		Streamer:    src.Streamer(),
		Title:       src.Title,
		Category:    src.Category,
		ViewerCount: src.ViewerCount,
		StartedAt:   formatTime(src.StartedAt),
	}
}
