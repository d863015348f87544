package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mirrorcast/internal/clock"
	"mirrorcast/internal/config"
	"mirrorcast/internal/daemon"
	"mirrorcast/internal/feed"
	"mirrorcast/internal/history"
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

type cliTestEnv struct {
	cfg        *config.Config
	store      *history.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	logPath    string
}

func setupCLITestEnv(t *testing.T, serve bool) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.API.Enabled = false
	homeDir := filepath.Join(testsupport.BaseDir(cfg), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	configPath := filepath.Join(homeDir, ".config", "mirrorcast", "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenHistory(t, cfg)
	env := &cliTestEnv{
		cfg:        cfg,
		store:      store,
		socketPath: filepath.Join(cfg.Paths.LogDir, "cli.sock"),
		configPath: configPath,
		logPath:    filepath.Join(cfg.Paths.LogDir, "mirrorcast-test.log"),
	}
	if !serve {
		return env
	}

	if err := os.WriteFile(env.logPath, nil, 0o644); err != nil {
		t.Fatalf("create log file: %v", err)
	}
	logger := logging.NewNop()
	d, err := daemon.New(cfg, store, logger,
		daemon.WithStatusQuery(offlineQuery{}),
		daemon.WithLauncher(&testsupport.FakeLauncher{}),
		daemon.WithResolver(feed.NewResolver([]feed.Strategy{fixedStrategy{}})),
		daemon.WithSleeper(&clock.Recorder{}),
		daemon.WithLogPath(env.logPath),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, env.socketPath, d, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	env.daemon = d
	env.server = srv

	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = d.Close()
	})
	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
