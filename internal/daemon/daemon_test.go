package daemon_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"mirrorcast/internal/api"
	"mirrorcast/internal/clock"
	"mirrorcast/internal/config"
	"mirrorcast/internal/daemon"
	"mirrorcast/internal/feed"
	"mirrorcast/internal/logging"
	"mirrorcast/internal/session"
	"mirrorcast/internal/source"
	"mirrorcast/internal/testsupport"
)

type switchQuery struct {
	mu   sync.Mutex
	live bool
}

func (q *switchQuery) set(live bool) {
	q.mu.Lock()
	q.live = live
	q.mu.Unlock()
}

func (q *switchQuery) Status(_ context.Context, channel string) (source.Status, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return source.Status{
		Live:     q.live,
		Snapshot: session.SourceSnapshot{Channel: channel, DisplayName: "Someone", Title: "Speedruns"},
	}, nil
}

type staticStrategy struct{}

func (staticStrategy) Name() string    { return "static" }
func (staticStrategy) Validated() bool { return true }
func (staticStrategy) Resolve(context.Context, string) (string, error) {
	return "https://video.example/someone.m3u8", nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) add(event string) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func (n *recordingNotifier) NotifyMirrorLive(context.Context, string, string, string) error {
	n.add("live")
	return nil
}

func (n *recordingNotifier) NotifyMirrorEnded(context.Context, string, time.Duration, int) error {
	n.add("ended")
	return nil
}

func (n *recordingNotifier) NotifyMirrorFailed(_ context.Context, _ string, cause string, _ error) error {
	n.add("failed:" + cause)
	return nil
}

func (n *recordingNotifier) NotifyError(context.Context, error, string) error { return nil }

func (n *recordingNotifier) TestNotification(context.Context) error {
	n.add("test")
	return errors.New("ntfy unreachable")
}

type harness struct {
	cfg      *config.Config
	daemon   *daemon.Daemon
	query    *switchQuery
	launcher *testsupport.FakeLauncher
	notifier *recordingNotifier
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Watcher.IntervalSeconds = 1
	store := testsupport.MustOpenHistory(t, cfg)
	h := &harness{
		cfg:      cfg,
		query:    &switchQuery{},
		launcher: &testsupport.FakeLauncher{},
		notifier: &recordingNotifier{},
	}
	d, err := daemon.New(cfg, store, logging.NewNop(),
		daemon.WithStatusQuery(h.query),
		daemon.WithLauncher(h.launcher),
		daemon.WithResolver(feed.NewResolver([]feed.Strategy{staticStrategy{}})),
		daemon.WithNotifier(h.notifier),
		daemon.WithSleeper(&clock.Recorder{}),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	h.daemon = d
	return h
}

func (h *harness) waitForState(t *testing.T, want session.State) session.Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		st := h.daemon.Status(context.Background()).Session
		if st.State == want {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s, last state %s", want, st.State)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDaemonStartStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := h.daemon.Status(ctx)
	if !status.Running || !status.Session.Watching {
		t.Fatal("expected daemon to report running")
	}
	if !status.Session.RelayOnly {
		t.Fatal("expected relay-only mode without destination credentials")
	}

	// Second start should fail
	if err := h.daemon.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	h.daemon.Stop()
	status = h.daemon.Status(ctx)
	if status.Running || status.Session.Watching {
		t.Fatal("expected daemon to be stopped")
	}

	if err := h.daemon.Start(ctx); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	h.daemon.Stop()
}

func TestDaemonMirrorsSessionAndRecordsHistory(t *testing.T) {
	h := newHarness(t)
	h.query.set(true)
	ctx := context.Background()

	if err := h.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	live := h.waitForState(t, session.StateLive)
	if !live.RelayActive || !live.SourceLive {
		t.Fatalf("expected an active relay for a live source: %+v", live)
	}
	if len(h.launcher.Calls()) != 1 {
		t.Fatalf("expected one relay launch, got %d", len(h.launcher.Calls()))
	}

	h.daemon.Stop()

	records, err := h.daemon.History(ctx, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one recorded session, got %d", len(records))
	}
	rec, err := h.daemon.Session(ctx, records[0].ID)
	if err != nil || rec == nil {
		t.Fatalf("Session: %v %v", rec, err)
	}
	if rec.State != session.StateCompleted {
		t.Fatalf("shutdown of a live session should complete it, got %s", rec.State)
	}
	var path []session.State
	for _, tr := range rec.Transitions {
		path = append(path, tr.To)
	}
	want := []session.State{session.StateResolving, session.StateRelaying, session.StateLive, session.StateEnding, session.StateCompleted}
	if len(path) != len(want) {
		t.Fatalf("unexpected transitions %v", path)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("unexpected transitions %v", path)
		}
	}

	_ = h.daemon.Close()
	events := h.notifier.Events()
	if len(events) != 2 || events[0] != "live" || events[1] != "ended" {
		t.Fatalf("unexpected notifications %v", events)
	}
}

func TestDaemonStopSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if h.daemon.StopSession(ctx) {
		t.Fatal("no session should be active before start")
	}
	h.query.set(true)
	if err := h.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.waitForState(t, session.StateLive)
	if !h.daemon.StopSession(ctx) {
		t.Fatal("expected the live session to be stopped")
	}
	h.waitForState(t, session.StateCompleted)
	if st := h.daemon.Status(ctx); !st.Running {
		t.Fatal("stopping a session must keep the daemon watching")
	}
}

func TestDaemonTestNotification(t *testing.T) {
	h := newHarness(t)
	sent, message, err := h.daemon.TestNotification(context.Background())
	if sent || err != nil || message != "ntfy topic not configured" {
		t.Fatalf("unexpected result without topic: %v %q %v", sent, message, err)
	}

	h = newHarness(t, testsupport.WithNtfyTopic("mirrorcast-test"))
	sent, _, err = h.daemon.TestNotification(context.Background())
	if sent || err == nil {
		t.Fatalf("expected notifier error to surface, got sent=%v err=%v", sent, err)
	}
}

func TestDaemonServesAPI(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.daemon.StartAPI(ctx); err != nil {
		t.Fatalf("StartAPI: %v", err)
	}
	addr := h.daemon.APIAddr()
	if addr == "" {
		t.Fatal("expected a bound API address")
	}

	resp, err := http.Get("http://" + addr + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()
	var status api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Running || status.Session.Channel != "someone" || status.Session.State != "idle" {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(status.Dependencies) != 3 {
		t.Fatalf("expected dependency report, got %+v", status.Dependencies)
	}
}
