package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"mirrorcast/internal/archive"
	"mirrorcast/internal/clock"
	"mirrorcast/internal/config"
	"mirrorcast/internal/coordinator"
	"mirrorcast/internal/deps"
	"mirrorcast/internal/destination"
	"mirrorcast/internal/feed"
	"mirrorcast/internal/history"
	"mirrorcast/internal/logging"
	"mirrorcast/internal/metrics"
	"mirrorcast/internal/notifications"
	"mirrorcast/internal/relay"
	"mirrorcast/internal/session"
	"mirrorcast/internal/source"
	"mirrorcast/internal/titles"
	"mirrorcast/internal/watcher"
)

const (
	listenerTimeout = 10 * time.Second
	noticeBuffer    = 16
)

// Daemon runs the watcher and session coordinator for one channel and
// enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *history.Store
	metrics  *metrics.Metrics
	notifier notifications.Service
	resolver *feed.Resolver
	hub      *eventHub
	api      *apiServer
	logPath  string

	query    source.StatusQuery
	launcher relay.Launcher
	destAPI  destination.API
	sleeper  clock.Sleeper

	lockPath string
	lock     *flock.Flock

	notices chan coordinator.Change
	quit    chan struct{}
	drained chan struct{}
	closing sync.Once

	life    sync.Mutex
	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	loops   sync.WaitGroup
	watch   *watcher.Watcher
	coord   *coordinator.Coordinator
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	Session       session.Status
	LastPoll      time.Time
	LastPollError string
	HistoryDBPath string
	LockFilePath  string
	History       map[session.State]int
	Dependencies  []deps.Status
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithStatusQuery replaces the Helix status client.
func WithStatusQuery(q source.StatusQuery) Option {
	return func(d *Daemon) { d.query = q }
}

// WithLauncher replaces the relay process launcher.
func WithLauncher(l relay.Launcher) Option {
	return func(d *Daemon) { d.launcher = l }
}

// WithDestinationAPI replaces the YouTube client.
func WithDestinationAPI(api destination.API) Option {
	return func(d *Daemon) { d.destAPI = api }
}

// WithResolver replaces the feed resolver built from configuration.
func WithResolver(r *feed.Resolver) Option {
	return func(d *Daemon) { d.resolver = r }
}

// WithNotifier replaces the ntfy service.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) { d.notifier = n }
}

// WithSleeper replaces real waits in the relay, destination and coordinator.
func WithSleeper(s clock.Sleeper) Option {
	return func(d *Daemon) { d.sleeper = s }
}

// WithLogPath records the current log file for status output.
func WithLogPath(path string) Option {
	return func(d *Daemon) { d.logPath = path }
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *history.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and history store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		metrics:  metrics.New(),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.notifier == nil {
		d.notifier = notifications.NewService(cfg)
	}
	if d.resolver == nil {
		d.resolver = feed.NewFromConfig(cfg, logger)
	}
	d.hub = newEventHub(d, logger)
	d.notices = make(chan coordinator.Change, noticeBuffer)
	d.quit = make(chan struct{})
	d.drained = make(chan struct{})
	go d.deliverNotices()
	if cfg.API.Enabled {
		d.api = newAPIServer(cfg, d, logger)
	}
	return d, nil
}

// Start acquires the daemon lock and begins watching the configured channel.
func (d *Daemon) Start(ctx context.Context) error {
	d.life.Lock()
	defer d.life.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mirrorcast daemon instance is already running")
	}

	d.recoverHistory(ctx)

	coord, err := d.buildCoordinator(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return err
	}
	query := d.query
	if query == nil {
		query = source.NewHelixClient(d.cfg)
	}
	watch := watcher.New(d.cfg.Twitch.Channel, query, d.cfg.WatchInterval(), d.logger,
		watcher.WithObserver(d.metrics),
		watcher.WithPollTimeout(d.cfg.PollTimeout()),
	)

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Lock()
	d.watch = watch
	d.coord = coord
	d.mu.Unlock()
	d.loops.Add(2)
	go func() {
		defer d.loops.Done()
		watch.Run(runCtx)
	}()
	go func() {
		defer d.loops.Done()
		_ = coord.Run(runCtx, watch.Events())
	}()

	d.running.Store(true)
	d.logger.Info("mirrorcast daemon started",
		logging.String(logging.FieldChannel, d.cfg.Twitch.Channel),
		logging.Bool("relay_only", !d.cfg.DestinationManaged()),
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

// Stop stops watching, shuts the active session down and releases the lock.
func (d *Daemon) Stop() {
	d.life.Lock()
	defer d.life.Unlock()
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout())
	defer cancel()
	if err := d.coord.Shutdown(shutdownCtx); err != nil {
		logging.WarnWithContext(d.logger, "session shutdown incomplete", "daemon_shutdown_timeout",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for a leftover ffmpeg process and the broadcast state"),
			logging.String(logging.FieldImpact, "the destination broadcast may still be live"),
		)
	}
	d.loops.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if the next start fails"),
			logging.String(logging.FieldImpact, "a later start may report another running instance"),
		)
	}
	d.running.Store(false)
	d.logger.Info("mirrorcast daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	var err error
	d.closing.Do(func() {
		d.Stop()
		d.api.stop()
		d.hub.close()
		close(d.quit)
		<-d.drained
		err = d.store.Close()
	})
	return err
}

// StopSession ends the active session without stopping the watcher. It
// reports whether a session was active.
func (d *Daemon) StopSession(ctx context.Context) bool {
	d.mu.Lock()
	coord := d.coord
	d.mu.Unlock()
	if coord == nil || !coord.Active() {
		return false
	}
	coord.Stop(ctx)
	return true
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	st := Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		Session:       d.sessionStatus(),
		HistoryDBPath: d.store.Path(),
		LockFilePath:  d.lockPath,
		Dependencies:  deps.CheckBinaries(deps.Requirements(d.cfg)),
	}
	d.mu.Lock()
	watch := d.watch
	d.mu.Unlock()
	if watch != nil {
		last, err := watch.LastPoll()
		st.LastPoll = last
		if err != nil {
			st.LastPollError = err.Error()
		}
	}
	if counts, err := d.store.Stats(ctx); err == nil {
		st.History = counts
	}
	return st
}

func (d *Daemon) sessionStatus() session.Status {
	d.mu.Lock()
	coord, watch := d.coord, d.watch
	d.mu.Unlock()

	var st session.Status
	if coord != nil {
		st = coord.Status()
	} else {
		st = session.Snapshot(nil, time.Now())
		st.Channel = d.cfg.Twitch.Channel
		st.RelayOnly = !d.cfg.DestinationManaged()
	}
	st.Watching = d.running.Load()
	if watch != nil {
		st.SourceLive = watch.Live()
	}
	return st
}

// History returns the most recent sessions.
func (d *Daemon) History(ctx context.Context, limit int) ([]history.Record, error) {
	return d.store.List(ctx, limit)
}

// Session returns one recorded session, or nil when unknown.
func (d *Daemon) Session(ctx context.Context, id string) (*history.Record, error) {
	return d.store.Get(ctx, strings.TrimSpace(id))
}

// Resolve runs the feed resolver for channel without starting a session.
func (d *Daemon) Resolve(ctx context.Context, channel string) (string, []feed.Attempt, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = d.cfg.Twitch.Channel
	}
	return d.resolver.ResolveWithAttempts(ctx, channel)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Metrics returns the daemon's Prometheus collectors.
func (d *Daemon) Metrics() *metrics.Metrics {
	return d.metrics
}

func (d *Daemon) buildCoordinator(ctx context.Context) (*coordinator.Coordinator, error) {
	renderer := titles.NewRenderer(titles.FormatsFromConfig(d.cfg), time.Local)
	supervisor := relay.NewSupervisor(relay.Options{
		Binary:         d.cfg.Relay.FFmpegBinary,
		MaxRestarts:    d.cfg.Relay.MaxRestarts,
		RestartDelay:   d.cfg.RestartDelay(),
		StopGrace:      d.cfg.StopGrace(),
		StatsInterval:  d.cfg.Relay.StatsFrameInterval,
		ExtraInputArgs: d.cfg.Relay.ExtraInputArgs,
		Launcher:       d.launcher,
		Sleeper:        d.sleeper,
		Logger:         d.logger,
	})

	opts := coordinator.OptionsFromConfig(d.cfg)
	opts.Resolver = d.resolver
	opts.Relay = supervisor
	opts.Titles = renderer
	opts.Sleeper = d.sleeper
	opts.Logger = d.logger
	opts.Listeners = []coordinator.Listener{d.recordChange, d.observeChange, d.notifyChange, d.hub.sessionChanged}
	opts.RelayObservers = []coordinator.RelayObserver{d.observeRelay, d.hub.relayEvent}

	if d.cfg.DestinationManaged() {
		client := d.destAPI
		if client == nil {
			yt, err := destination.NewYouTubeAPI(ctx, d.cfg)
			if err != nil {
				return nil, fmt.Errorf("build destination client: %w", err)
			}
			client = yt
		}
		opts.Destination = destination.NewController(client, destination.Options{
			Privacy:       d.cfg.YouTube.Privacy,
			APIAttempts:   d.cfg.YouTube.APIAttempts,
			RetryInterval: d.cfg.APIRetryInterval(),
			TestingSettle: d.cfg.TestingSettle(),
			Sleeper:       d.sleeper,
			Logger:        d.logger,
		})
		if updater, ok := client.(archive.VideoUpdater); ok && d.cfg.Archive.Enabled {
			opts.Archive = archive.NewVideoFinalizer(updater, renderer, d.cfg.Archive.Privacy, d.logger)
		}
	}
	return coordinator.New(opts), nil
}

// recoverHistory closes sessions a previous process left open and prunes
// sessions older than the log retention window.
func (d *Daemon) recoverHistory(ctx context.Context) {
	now := time.Now()
	marked, err := d.store.MarkInterrupted(ctx, now)
	if err != nil {
		logging.WarnWithContext(d.logger, "failed to close interrupted sessions", "history_recover_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check history database permissions"),
			logging.String(logging.FieldImpact, "history may list stale active sessions"),
		)
	} else if marked > 0 {
		d.logger.Info("closed interrupted sessions",
			logging.Int64("count", marked),
			logging.String(logging.FieldEventType, "history_recovered"),
		)
	}
	if days := d.cfg.Logging.RetentionDays; days > 0 {
		if _, err := d.store.Prune(ctx, now.AddDate(0, 0, -days)); err != nil {
			d.logger.Debug("history prune failed", logging.Error(err))
		}
	}
}
