package testsupport

import (
	"context"
	"testing"
	"time"

	"mirrorcast/internal/config"
	"mirrorcast/internal/history"
	"mirrorcast/internal/session"
)

// MustOpenHistory opens a history.Store for tests and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// RecordSession walks a new session through states, recording every change,
// and returns the final session.
func RecordSession(t testing.TB, store *history.Store, channel string, started time.Time, states ...session.State) session.Session {
	t.Helper()

	sess := session.New(session.SourceSnapshot{Channel: channel, Title: channel + " live"}, started)
	ctx := context.Background()
	if err := store.RecordChange(ctx, *sess, session.StateIdle, started); err != nil {
		t.Fatalf("record created: %v", err)
	}
	at := started
	for _, state := range states {
		from := sess.State
		at = at.Add(time.Second)
		var err error
		switch state {
		case session.StateCompleted:
			err = sess.Finish(state, at)
		case session.StateFailed:
			err = sess.Fail("test_failure", nil, at)
		default:
			err = sess.Advance(state)
		}
		if err != nil {
			t.Fatalf("advance to %s: %v", state, err)
		}
		if err := store.RecordChange(ctx, *sess, from, at); err != nil {
			t.Fatalf("record %s: %v", state, err)
		}
	}
	return *sess
}
