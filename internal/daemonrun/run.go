package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"mirrorcast/internal/config"
	"mirrorcast/internal/daemon"
	"mirrorcast/internal/deps"
	"mirrorcast/internal/history"
	"mirrorcast/internal/ipc"
	"mirrorcast/internal/logging"
	"mirrorcast/internal/preflight"
	"mirrorcast/internal/textutil"
)

const maintenanceInterval = 6 * time.Hour

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the mirrorcast daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("mirrorcast-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	logPreflight(signalCtx, logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update mirrorcast.log link: %v\n", err)
	}
	pruneLogs(logger, cfg, logPath)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := history.Open(cfg)
	if err != nil {
		logger.Error("open history store", logging.Error(err))
		return err
	}
	defer store.Close()

	d, err := daemon.New(cfg, store, logger, daemon.WithLogPath(logPath))
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.StartAPI(signalCtx); err != nil {
		logging.WarnWithContext(logger, "http api unavailable", "api_start_failed",
			logging.Error(err),
			logging.String("bind", cfg.API.Bind),
			logging.String(logging.FieldErrorHint, "check api.bind for a port conflict"),
			logging.String(logging.FieldImpact, "status and events are only available over the CLI"),
		)
	}

	if err := d.Start(signalCtx); err != nil {
		logging.WarnWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration and history database access"),
			logging.String(logging.FieldImpact, "the channel is not watched until `mirrorcast start` succeeds"),
		)
	}

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		ticker := time.NewTicker(maintenanceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				pruneLogs(logger, cfg, logPath)
			}
		}
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("mirrorcast daemon shutting down",
			logging.String(logging.FieldEventType, "daemon_shutdown"))
		return d.Close()
	})
	return group.Wait()
}

func pruneLogs(logger *slog.Logger, cfg *config.Config, current string) {
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "mirrorcast-*.log", Exclude: []string{current}},
	)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "mirrorcast.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg, preflight.Options{})) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run `mirrorcast config validate --online` for details"),
		)
	}
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String(logging.FieldChannel, cfg.Twitch.Channel),
		logging.Bool("twitch_token_present", strings.TrimSpace(cfg.Twitch.AccessToken) != ""),
		logging.Bool("twitch_secret_present", strings.TrimSpace(cfg.Twitch.ClientSecret) != ""),
		logging.Bool("destination_managed", cfg.DestinationManaged()),
		logging.Bool("archive_enabled", cfg.Archive.Enabled),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	}
	for _, status := range statuses {
		key := textutil.SanitizeToken(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)

	for _, missing := range deps.MissingRequired(statuses) {
		logging.ErrorWithContext(logger, "required dependency missing", "dependency_missing",
			logging.String("dependency", missing.Name),
			logging.String("detail", missing.Detail),
			logging.String(logging.FieldErrorHint, "install "+missing.Command+" or set relay.ffmpeg_binary"),
			logging.String(logging.FieldImpact, "mirror sessions fail when the relay cannot start"),
		)
	}
}
