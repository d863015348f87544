package daemon

import (
	"log/slog"
	"time"

	"mirrorcast/internal/api"
	"mirrorcast/internal/coordinator"
	"mirrorcast/internal/relay"
	"mirrorcast/internal/session"
)

// eventHub feeds coordinator changes and relay telemetry to websocket
// subscribers.
type eventHub struct {
	hub *api.Hub
}

func newEventHub(d *Daemon, logger *slog.Logger) *eventHub {
	return &eventHub{hub: api.NewHub(func() api.SessionStatus {
		return api.FromStatus(d.sessionStatus())
	}, logger)}
}

// sessionChanged publishes every change, including relay restarts that leave
// the state where it was.
func (h *eventHub) sessionChanged(ch coordinator.Change) {
	sess := ch.Session
	status := api.FromStatus(session.Snapshot(&sess, ch.At))
	status.Channel = sess.Source.Channel
	h.hub.Publish(api.Event{
		Type:      api.EventSession,
		At:        ch.At.UTC().Format(time.RFC3339Nano),
		From:      string(ch.From),
		SessionID: sess.ID,
		Status:    &status,
	})
}

func (h *eventHub) relayEvent(sessionID string, evt relay.Event) {
	if msg, ok := api.RelayEvent(sessionID, evt, time.Now()); ok {
		h.hub.Publish(msg)
	}
}

func (h *eventHub) close() {
	h.hub.Close()
}
