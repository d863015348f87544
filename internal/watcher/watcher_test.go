package watcher_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mirrorcast/internal/logging"
	"mirrorcast/internal/session"
	"mirrorcast/internal/source"
	"mirrorcast/internal/watcher"
)

type scriptedQuery struct {
	mu      sync.Mutex
	results []result
	calls   int
}

type result struct {
	live bool
	err  error
}

func (q *scriptedQuery) Status(_ context.Context, channel string) (source.Status, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.calls
	q.calls++
	if idx >= len(q.results) {
		idx = len(q.results) - 1
	}
	r := q.results[idx]
	if r.err != nil {
		return source.Status{}, r.err
	}
	return source.Status{Live: r.live, Snapshot: session.SourceSnapshot{Title: "title"}}, nil
}

type countingObserver struct {
	mu        sync.Mutex
	successes int
	failures  int
}

func (o *countingObserver) PollSucceeded(bool) { o.mu.Lock(); o.successes++; o.mu.Unlock() }
func (o *countingObserver) PollFailed()        { o.mu.Lock(); o.failures++; o.mu.Unlock() }

func TestPollSequenceEmitsEdgesAndSurvivesErrors(t *testing.T) {
	q := &scriptedQuery{results: []result{
		{live: false},
		{live: true},
		{err: errors.New("timeout")},
		{live: true},
		{live: false},
		{live: false},
	}}
	obs := &countingObserver{}
	w := watcher.New("chan", q, time.Minute, logging.NewNop(), watcher.WithObserver(obs))

	var kinds []watcher.Kind
	for i := 0; i < len(q.results); i++ {
		if evt, ok := w.Poll(context.Background()); ok {
			kinds = append(kinds, evt.Kind)
			if evt.Kind == watcher.StreamStarted && evt.Snapshot.Channel != "chan" {
				t.Fatalf("expected channel defaulted on snapshot, got %+v", evt.Snapshot)
			}
		}
	}
	if len(kinds) != 2 || kinds[0] != watcher.StreamStarted || kinds[1] != watcher.StreamEnded {
		t.Fatalf("unexpected events %v", kinds)
	}
	if obs.failures != 1 || obs.successes != 5 {
		t.Fatalf("unexpected observer counts %+v", obs)
	}
	if _, err := w.LastPoll(); err != nil {
		t.Fatalf("expected last poll success, got %v", err)
	}
}

func TestRunDeliversEventsAndClosesOnCancel(t *testing.T) {
	q := &scriptedQuery{results: []result{{live: true}}}
	w := watcher.New("chan", q, 10*time.Millisecond, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case evt := <-w.Events():
		if evt.Kind != watcher.StreamStarted {
			t.Fatalf("expected start event, got %v", evt.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	if !w.Live() {
		t.Fatal("expected watcher to remember live state")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
	for range w.Events() {
	}
}
