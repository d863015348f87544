package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mirrorcast/internal/clock"
	"mirrorcast/internal/daemon"
	"mirrorcast/internal/feed"
	"mirrorcast/internal/ipc"
	"mirrorcast/internal/logging"
	"mirrorcast/internal/session"
	"mirrorcast/internal/source"
	"mirrorcast/internal/testsupport"
)

type offlineQuery struct{}

func (offlineQuery) Status(_ context.Context, channel string) (source.Status, error) {
	return source.Status{Snapshot: session.SourceSnapshot{Channel: channel}}, nil
}

type fixedStrategy struct{}

func (fixedStrategy) Name() string    { return "fixed" }
func (fixedStrategy) Validated() bool { return true }
func (fixedStrategy) Resolve(_ context.Context, channel string) (string, error) {
	return "https://video.example/" + channel + ".m3u8", nil
}

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Enabled = false
	store := testsupport.MustOpenHistory(t, cfg)
	logPath := filepath.Join(cfg.Paths.LogDir, "ipc-test.log")
	logger := logging.NewNop()

	recorded := testsupport.RecordSession(t, store, "someone", time.Now().Add(-time.Hour),
		session.StateResolving, session.StateRelaying, session.StateLive, session.StateEnding, session.StateCompleted)

	d, err := daemon.New(cfg, store, logger,
		daemon.WithStatusQuery(offlineQuery{}),
		daemon.WithLauncher(&testsupport.FakeLauncher{}),
		daemon.WithResolver(feed.NewResolver([]feed.Strategy{fixedStrategy{}})),
		daemon.WithSleeper(&clock.Recorder{}),
		daemon.WithLogPath(logPath),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := filepath.Join(cfg.Paths.LogDir, "mirrorcast.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || !status.Session.Watching {
		t.Fatalf("expected daemon to be watching, got %+v", status)
	}
	if status.Session.State != string(session.StateIdle) {
		t.Fatalf("expected idle session state, got %s", status.Session.State)
	}
	if status.History[string(session.StateCompleted)] != 1 {
		t.Fatalf("expected one completed session in history stats, got %v", status.History)
	}

	again, err := client.Start()
	if err != nil {
		t.Fatalf("second Start RPC failed: %v", err)
	}
	if again.Started || again.Message == "" {
		t.Fatalf("expected second start to be refused, got %+v", again)
	}

	historyResp, err := client.History(0)
	if err != nil {
		t.Fatalf("History RPC failed: %v", err)
	}
	if len(historyResp.Sessions) != 1 || historyResp.Sessions[0].ID != recorded.ID {
		t.Fatalf("unexpected history: %+v", historyResp.Sessions)
	}

	sessionResp, err := client.Session(recorded.ID)
	if err != nil {
		t.Fatalf("Session RPC failed: %v", err)
	}
	if sessionResp.Session.State != string(session.StateCompleted) || len(sessionResp.Session.Transitions) != 5 {
		t.Fatalf("unexpected session detail: %+v", sessionResp.Session)
	}
	if _, err := client.Session("missing"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}

	resolveResp, err := client.Resolve("")
	if err != nil {
		t.Fatalf("Resolve RPC failed: %v", err)
	}
	if resolveResp.URL != "https://video.example/someone.m3u8" || len(resolveResp.Attempts) != 1 || resolveResp.Error != "" {
		t.Fatalf("unexpected resolve response: %+v", resolveResp)
	}

	stopSession, err := client.StopSession()
	if err != nil {
		t.Fatalf("StopSession RPC failed: %v", err)
	}
	if stopSession.Stopped {
		t.Fatal("expected no active session to stop")
	}

	if err := os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}
	logResp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("LogTail initial failed: %v", err)
	}
	if len(logResp.Lines) != 2 || logResp.Lines[0] != "second" || logResp.Lines[1] != "third" {
		t.Fatalf("unexpected log tail response: %#v", logResp.Lines)
	}

	followDone := make(chan struct{})
	go func(offset int64) {
		defer close(followDone)
		resp, err := client.LogTail(ipc.LogTailRequest{Offset: offset, Follow: true, WaitMillis: 2000})
		if err != nil {
			t.Errorf("LogTail follow error: %v", err)
			return
		}
		if len(resp.Lines) != 1 || resp.Lines[0] != "fourth" {
			t.Errorf("unexpected follow lines: %#v", resp.Lines)
		}
	}(logResp.Offset)

	time.Sleep(100 * time.Millisecond)
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("append log: %v", err)
	}
	_, _ = f.WriteString("fourth\n")
	_ = f.Close()

	select {
	case <-followDone:
	case <-time.After(10 * time.Second):
		t.Fatal("log tail follow timed out")
	}

	notifyResp, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if notifyResp.Sent || notifyResp.Message != "ntfy topic not configured" {
		t.Fatalf("unexpected notification response: %#v", notifyResp)
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected stop response to be true")
	}

	status2, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status2.Running {
		t.Fatal("expected daemon to be stopped")
	}
}
