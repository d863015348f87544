package daemon

import (
	"context"
	"errors"

	"mirrorcast/internal/coordinator"
	"mirrorcast/internal/logging"
	"mirrorcast/internal/relay"
	"mirrorcast/internal/session"
)

// recordChange persists every session change. A failed write is logged and
// never affects the session.
func (d *Daemon) recordChange(ch coordinator.Change) {
	ctx, cancel := context.WithTimeout(context.Background(), listenerTimeout)
	defer cancel()
	if err := d.store.RecordChange(ctx, ch.Session, ch.From, ch.At); err != nil {
		logging.WarnWithContext(d.logger, "failed to record session change", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldSessionID, ch.Session.ID),
			logging.String("state", string(ch.Session.State)),
			logging.String(logging.FieldErrorHint, "check history database permissions and free disk space"),
			logging.String(logging.FieldImpact, "session history will be incomplete"),
		)
	}
}

func (d *Daemon) observeChange(ch coordinator.Change) {
	d.metrics.SessionChanged(ch.From, ch.Session.State, ch.Session.FailureCause)
}

func (d *Daemon) observeRelay(_ string, evt relay.Event) {
	d.metrics.RelayEvent(evt)
}

// notifyChange queues a notification for the states operators care about.
// Delivery happens on a separate goroutine so ntfy latency never stalls the
// coordinator.
func (d *Daemon) notifyChange(ch coordinator.Change) {
	if ch.From == ch.Session.State {
		return
	}
	switch ch.Session.State {
	case session.StateLive, session.StateCompleted, session.StateFailed:
	default:
		return
	}
	select {
	case <-d.quit:
	case d.notices <- ch:
	default:
		d.logger.Warn("notification dropped",
			logging.String(logging.FieldSessionID, ch.Session.ID),
			logging.String("state", string(ch.Session.State)),
			logging.String(logging.FieldEventType, "notification_dropped"),
			logging.String(logging.FieldErrorHint, "check ntfy reachability"),
			logging.String(logging.FieldImpact, "one session notification was not sent"),
		)
	}
}

func (d *Daemon) deliverNotices() {
	defer close(d.drained)
	for {
		select {
		case ch := <-d.notices:
			d.deliver(ch)
		case <-d.quit:
			for {
				select {
				case ch := <-d.notices:
					d.deliver(ch)
				default:
					return
				}
			}
		}
	}
}

func (d *Daemon) deliver(ch coordinator.Change) {
	ctx, cancel := context.WithTimeout(context.Background(), listenerTimeout)
	defer cancel()

	sess := ch.Session
	streamer := sess.Source.Streamer()
	var err error
	switch sess.State {
	case session.StateLive:
		err = d.notifier.NotifyMirrorLive(ctx, streamer, sess.Source.Title, sess.BroadcastID)
	case session.StateCompleted:
		err = d.notifier.NotifyMirrorEnded(ctx, streamer, sess.EndedAt.Sub(sess.StartedAt), sess.RelayRestarts)
	case session.StateFailed:
		var cause error
		if sess.FailureError != "" {
			cause = errors.New(sess.FailureError)
		}
		err = d.notifier.NotifyMirrorFailed(ctx, streamer, sess.FailureCause, cause)
	}
	if err != nil {
		logging.WarnWithContext(d.logger, "session notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldSessionID, sess.ID),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
			logging.String(logging.FieldImpact, "operators were not notified"),
		)
	}
}
