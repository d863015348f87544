package daemonctl_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mirrorcast/internal/daemonctl"
	"mirrorcast/internal/ipc"
	"mirrorcast/internal/session"
	"mirrorcast/internal/testsupport"
)

func TestBuildDependencySummary(t *testing.T) {
	tests := []struct {
		name     string
		deps     []ipc.DependencyStatus
		severity string
		detail   string
	}{
		{name: "none", severity: "info", detail: "No dependency checks configured"},
		{
			name:     "all available",
			deps:     []ipc.DependencyStatus{{Name: "FFmpeg", Available: true}, {Name: "yt-dlp", Optional: true, Available: true}},
			severity: "ok",
			detail:   "2/2 available",
		},
		{
			name:     "optional missing",
			deps:     []ipc.DependencyStatus{{Name: "FFmpeg", Available: true}, {Name: "yt-dlp", Optional: true}},
			severity: "warn",
			detail:   "1/2 available (missing: 0 required, 1 optional)",
		},
		{
			name:     "required missing",
			deps:     []ipc.DependencyStatus{{Name: "FFmpeg"}, {Name: "yt-dlp", Optional: true}},
			severity: "error",
			detail:   "0/2 available (missing: 1 required, 1 optional)",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := daemonctl.BuildDependencySummary(tc.deps)
			if got.Severity != tc.severity || got.Detail != tc.detail {
				t.Fatalf("got %+v", got)
			}
		})
	}
}

func TestDependencySeverity(t *testing.T) {
	if got := daemonctl.DependencySeverity(ipc.DependencyStatus{Available: true}); got != "ok" {
		t.Fatalf("available: %s", got)
	}
	if got := daemonctl.DependencySeverity(ipc.DependencyStatus{Optional: true}); got != "warn" {
		t.Fatalf("optional: %s", got)
	}
	if got := daemonctl.DependencySeverity(ipc.DependencyStatus{}); got != "error" {
		t.Fatalf("required: %s", got)
	}
}

func TestBuildSystemChecksReflectsConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Twitch.AccessToken = ""
	cfg.Twitch.ClientSecret = "secret"

	lines := daemonctl.BuildSystemChecks(cfg, true, false)
	got := make(map[string]daemonctl.StatusLine, len(lines))
	for _, line := range lines {
		got[line.Label] = line
	}
	if got["Mirrorcast"].Severity != "warn" {
		t.Fatalf("expected stopped watcher warning, got %+v", got["Mirrorcast"])
	}
	if got["Channel"].Detail != "someone" {
		t.Fatalf("unexpected channel line %+v", got["Channel"])
	}
	if got["Twitch API"].Detail != "App token (client credentials)" {
		t.Fatalf("unexpected twitch line %+v", got["Twitch API"])
	}
	if got["YouTube"].Severity != "info" {
		t.Fatalf("expected relay-only info line, got %+v", got["YouTube"])
	}
	if got["Notifications"].Severity != "warn" {
		t.Fatalf("expected notifications warning, got %+v", got["Notifications"])
	}
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mirrorcast.pid")

	pid, err := daemonctl.ReadPID(path)
	if err != nil || pid != 0 {
		t.Fatalf("missing file: pid=%d err=%v", pid, err)
	}
	if err := os.WriteFile(path, []byte("4242\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	pid, err = daemonctl.ReadPID(path)
	if err != nil || pid != 4242 {
		t.Fatalf("pid=%d err=%v", pid, err)
	}
	if err := os.WriteFile(path, []byte("nope"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := daemonctl.ReadPID(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestProcessAlive(t *testing.T) {
	if !daemonctl.ProcessAlive(os.Getpid()) {
		t.Fatal("current process should be alive")
	}
	if daemonctl.ProcessAlive(0) {
		t.Fatal("pid 0 must not be reported alive")
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	testsupport.RecordSession(t, store, "someone", time.Now().Add(-time.Hour),
		session.StateResolving, session.StateFailed)
	_ = store.Close()

	snap, err := daemonctl.BuildStatusSnapshot(context.Background(), cfg.SocketPath(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snap.Reachable || snap.Status.Running {
		t.Fatalf("expected offline snapshot, got %+v", snap)
	}
	if snap.Status.Session.Channel != "someone" || snap.Status.Session.State != "idle" {
		t.Fatalf("unexpected session %+v", snap.Status.Session)
	}
	if snap.Status.History[string(session.StateFailed)] != 1 {
		t.Fatalf("expected history stats from the database, got %v", snap.Status.History)
	}
	if len(snap.Status.Dependencies) != 3 || snap.DependencySummary.Total != 3 {
		t.Fatalf("expected local dependency checks, got %+v", snap.Status.Dependencies)
	}
	if len(snap.SystemChecks) == 0 || snap.SystemChecks[0].Label != "Mirrorcast" {
		t.Fatalf("unexpected system checks %+v", snap.SystemChecks)
	}
}
