package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"syscall"
	"time"

	"mirrorcast/internal/clock"
	"mirrorcast/internal/logging"
	"mirrorcast/internal/services"
	"mirrorcast/internal/session"
	"mirrorcast/internal/textutil"
)

// Logged ffmpeg lines are cut to these many runes.
const (
	lineLimit     = 200
	infoLineLimit = 100
)

// ErrRelayActive is returned by Start while another relay is running.
var ErrRelayActive = errors.New("relay already active")

// Options configures a Supervisor.
type Options struct {
	Binary         string
	MaxRestarts    int
	RestartDelay   time.Duration
	StopGrace      time.Duration
	StatsInterval  int
	ExtraInputArgs []string
	Launcher       Launcher
	Sampler        ResourceSampler
	Sleeper        clock.Sleeper
	Logger         *slog.Logger
}

// Supervisor runs at most one relay process and restarts it within a bound.
type Supervisor struct {
	binary         string
	maxRestarts    int
	restartDelay   time.Duration
	stopGrace      time.Duration
	statsInterval  int
	extraInputArgs []string
	launcher       Launcher
	sampler        ResourceSampler
	sleeper        clock.Sleeper
	logger         *slog.Logger

	mu     sync.Mutex
	active *Handle
}

// NewSupervisor constructs a supervisor, filling unset options with defaults.
func NewSupervisor(opts Options) *Supervisor {
	s := &Supervisor{
		binary:         strings.TrimSpace(opts.Binary),
		maxRestarts:    opts.MaxRestarts,
		restartDelay:   opts.RestartDelay,
		stopGrace:      opts.StopGrace,
		statsInterval:  opts.StatsInterval,
		extraInputArgs: append([]string(nil), opts.ExtraInputArgs...),
		launcher:       opts.Launcher,
		sampler:        opts.Sampler,
		sleeper:        clock.OrReal(opts.Sleeper),
		logger:         logging.NewComponentLogger(opts.Logger, "relay"),
	}
	if s.binary == "" {
		s.binary = "ffmpeg"
	}
	if s.maxRestarts < 0 {
		s.maxRestarts = 0
	}
	if s.stopGrace <= 0 {
		s.stopGrace = 5 * time.Second
	}
	if s.statsInterval <= 0 {
		s.statsInterval = 300
	}
	if s.launcher == nil {
		s.launcher = execLauncher{}
	}
	if s.sampler == nil {
		s.sampler = gopsutilSampler{}
	}
	return s
}

// Args returns the ffmpeg argument list for one attempt.
func (s *Supervisor) Args(feedURL, ingestURL string) []string {
	args := []string{"-hide_banner", "-loglevel", "info"}
	args = append(args, s.extraInputArgs...)
	args = append(args,
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", feedURL,
		"-c:v", "copy",
		"-c:a", "copy",
		"-f", "flv",
		"-flvflags", "no_duration_filesize",
		ingestURL,
	)
	return args
}

// Active returns the running handle, if any.
func (s *Supervisor) Active() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Start spawns the relay and returns its handle. Only one relay may be active
// at a time.
func (s *Supervisor) Start(ctx context.Context, feedURL, ingestURL string) (*Handle, error) {
	if strings.TrimSpace(feedURL) == "" || strings.TrimSpace(ingestURL) == "" {
		return nil, services.Wrap(services.ErrValidation, "relay", "start", "feed and ingest urls are required", nil)
	}
	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return nil, ErrRelayActive
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &Handle{
		feedURL:   feedURL,
		ingestURL: ingestURL,
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
		stopCh:    make(chan struct{}),
		cancel:    cancel,
	}
	proc, err := s.launcher.Launch(s.binary, s.Args(feedURL, ingestURL))
	if err != nil {
		s.mu.Unlock()
		cancel()
		return nil, services.Wrap(services.ErrExternalTool, "relay", "start", "launch "+s.binary, err)
	}
	h.setProcess(proc)
	s.active = h
	s.mu.Unlock()

	logger := logging.WithContext(ctx, s.logger)
	logger.Info("relay started",
		logging.Int("pid", proc.PID()),
		logging.String("ingest", RedactIngest(ingestURL)),
		logging.String(logging.FieldEventType, "relay_started"),
	)
	go s.run(runCtx, logger, h, proc)
	return h, nil
}

// Stop terminates the relay: SIGTERM to its process group, then SIGKILL after
// the grace window. No restart follows a stop. A nil handle stops the active
// relay.
func (s *Supervisor) Stop(ctx context.Context, h *Handle) error {
	if h == nil {
		h = s.Active()
	}
	if h == nil {
		return nil
	}
	if !h.requestStop() {
		return h.wait(ctx)
	}
	h.cancel()
	if proc := h.process(); proc != nil {
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			s.logger.Debug("sigterm failed", logging.Error(err))
		}
	}
	timer := time.NewTimer(s.stopGrace)
	defer timer.Stop()
	select {
	case <-h.done:
		s.logger.Info("relay stopped", logging.String(logging.FieldEventType, "relay_stopped"))
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}
	if proc := h.process(); proc != nil {
		logging.WarnWithContext(s.logger, "relay ignored SIGTERM; killing", "relay_killed",
			logging.Duration("grace", s.stopGrace),
			logging.String(logging.FieldErrorHint, "ffmpeg did not exit within the stop grace window"),
			logging.String(logging.FieldImpact, "relay process force-killed"),
		)
		_ = proc.Signal(syscall.SIGKILL)
	}
	return h.wait(ctx)
}

func (s *Supervisor) run(ctx context.Context, logger *slog.Logger, h *Handle, proc Process) {
	defer func() {
		s.mu.Lock()
		if s.active == h {
			s.active = nil
		}
		s.mu.Unlock()
		close(h.done)
	}()

	sampler := logging.NewProgressSampler(float64(s.statsInterval))
	for {
		lastFailure := FailureExited
		code, err := s.consume(ctx, logger, h, proc, sampler, &lastFailure)
		if err != nil {
			logger.Debug("relay wait failed", logging.Error(err))
		}
		h.send(Event{Kind: EventExit, Code: code, Err: err}, true)

		if h.stopRequested() {
			return
		}
		if code == 0 && err == nil {
			logger.Info("relay exited cleanly", logging.String(logging.FieldEventType, "relay_exited"))
			return
		}
		restarts := h.Restarts()
		if restarts >= s.maxRestarts {
			logging.ErrorWithContext(logger, "relay failed permanently", "relay_terminal",
				logging.Int("exit_code", code),
				logging.Int("restarts", restarts),
				logging.String("cause", string(lastFailure)),
				logging.String(logging.FieldErrorHint, failureHint(lastFailure)),
				logging.String(logging.FieldImpact, "mirror session will fail"),
			)
			h.send(Event{Kind: EventTerminal, Failure: lastFailure, Code: code, Restarts: restarts}, true)
			return
		}
		attempt := h.incRestarts()
		logging.WarnWithContext(logger, "relay exited; restarting", "relay_restarting",
			logging.Int("exit_code", code),
			logging.Int("attempt", attempt),
			logging.Int("max_restarts", s.maxRestarts),
			logging.Duration("delay", s.restartDelay),
			logging.String("cause", string(lastFailure)),
			logging.String(logging.FieldErrorHint, failureHint(lastFailure)),
			logging.String(logging.FieldImpact, "viewers see a short interruption"),
		)
		h.send(Event{Kind: EventRestarting, Attempt: attempt, Delay: s.restartDelay, Failure: lastFailure}, true)
		if err := s.sleeper.Sleep(ctx, s.restartDelay); err != nil || h.stopRequested() {
			return
		}
		sampler.Reset()
		next, err := s.launcher.Launch(s.binary, s.Args(h.feedURL, h.ingestURL))
		if err != nil {
			logging.ErrorWithContext(logger, "relay relaunch failed", "relay_terminal",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that "+s.binary+" is installed"),
				logging.String(logging.FieldImpact, "mirror session will fail"),
			)
			h.send(Event{Kind: EventTerminal, Failure: FailureExited, Code: -1, Restarts: attempt, Err: err}, true)
			return
		}
		proc = next
		h.setProcess(proc)
		logger.Info("relay restarted",
			logging.Int("pid", proc.PID()),
			logging.Int("attempt", attempt),
			logging.String(logging.FieldEventType, "relay_restarted"),
		)
		// A stop may have raced the relaunch.
		if h.stopRequested() {
			_ = proc.Signal(syscall.SIGTERM)
		}
	}
}

func (s *Supervisor) consume(ctx context.Context, logger *slog.Logger, h *Handle, proc Process, sampler *logging.ProgressSampler, lastFailure *FailureKind) (int, error) {
	for line := range proc.Lines() {
		evt, ok := Classify(line)
		if !ok {
			continue
		}
		switch evt.Kind {
		case EventProgress:
			evt.Stats.PID = proc.PID()
			evt.Stats.UpdatedAt = time.Now()
			if sampler.ShouldLog(float64(evt.Stats.Frame)) {
				if cpu, rss, err := s.sampler.Sample(ctx, proc.PID()); err == nil {
					evt.Stats.CPUPercent = cpu
					evt.Stats.RSSBytes = rss
				}
				logger.Info("relay progress",
					logging.Int64("frame", evt.Stats.Frame),
					logging.Float64("fps", evt.Stats.FPS),
					logging.Float64("bitrate_kbits", evt.Stats.BitrateKbs),
					logging.String("time", evt.Stats.OutTime),
					logging.Float64("speed", evt.Stats.Speed),
					logging.Float64("cpu_percent", evt.Stats.CPUPercent),
					logging.Uint64("rss_bytes", evt.Stats.RSSBytes),
					logging.String(logging.FieldEventType, "relay_progress"),
				)
			}
			h.setStats(evt.Stats)
			h.send(evt, false)
		case EventFailure:
			*lastFailure = evt.Failure
			logger.Error("relay output reported failure",
				logging.String("kind", string(evt.Failure)),
				logging.String("line", textutil.Truncate(evt.Line, lineLimit)),
				logging.String(logging.FieldEventType, "relay_failure"),
			)
			h.send(evt, true)
		case EventWarning:
			logging.WarnWithContext(logger, "relay reported an error", "relay_warning",
				logging.String("line", textutil.Truncate(evt.Line, lineLimit)),
				logging.String(logging.FieldErrorHint, "unclassified ffmpeg error; relay keeps running"),
				logging.String(logging.FieldImpact, "stream quality may degrade"),
			)
			h.send(evt, false)
		default:
			logger.Debug("relay info", logging.String("line", textutil.Truncate(evt.Line, infoLineLimit)))
			h.send(evt, false)
		}
	}
	return proc.Wait()
}

// Handle tracks one supervised relay across restarts.
type Handle struct {
	feedURL   string
	ingestURL string
	events    chan Event
	done      chan struct{}
	stopCh    chan struct{}
	cancel    context.CancelFunc

	mu       sync.Mutex
	proc     Process
	stats    session.RelayStats
	hasStats bool
	restarts int
	stopping bool
}

// Events delivers relay events. Progress, info and warning events are
// dropped when the consumer falls behind.
func (h *Handle) Events() <-chan Event { return h.events }

// Done is closed when the relay has exited for good.
func (h *Handle) Done() <-chan struct{} { return h.done }

// FeedURL returns the input URL.
func (h *Handle) FeedURL() string { return h.feedURL }

// IngestURL returns the output URL.
func (h *Handle) IngestURL() string { return h.ingestURL }

// Restarts returns the number of restarts performed.
func (h *Handle) Restarts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.restarts
}

// Stats returns the latest progress statistics.
func (h *Handle) Stats() (session.RelayStats, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats, h.hasStats
}

// PID returns the current process id.
func (h *Handle) PID() int {
	if p := h.process(); p != nil {
		return p.PID()
	}
	return 0
}

func (h *Handle) setProcess(p Process) {
	h.mu.Lock()
	h.proc = p
	h.mu.Unlock()
}

func (h *Handle) process() Process {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.proc
}

func (h *Handle) setStats(stats session.RelayStats) {
	h.mu.Lock()
	h.stats = stats
	h.hasStats = true
	h.mu.Unlock()
}

func (h *Handle) incRestarts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restarts++
	return h.restarts
}

func (h *Handle) requestStop() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopping {
		return false
	}
	h.stopping = true
	close(h.stopCh)
	return true
}

func (h *Handle) stopRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopping
}

func (h *Handle) wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for relay exit: %w", ctx.Err())
	}
}

func (h *Handle) send(evt Event, important bool) {
	if !important {
		select {
		case h.events <- evt:
		default:
		}
		return
	}
	select {
	case h.events <- evt:
	case <-h.stopCh:
	}
}

// RedactIngest hides the stream key portion of an ingest URL.
func RedactIngest(ingestURL string) string {
	idx := strings.LastIndex(ingestURL, "/")
	if idx < 0 || idx == len(ingestURL)-1 {
		return ingestURL
	}
	key := ingestURL[idx+1:]
	if len(key) <= 4 {
		return ingestURL[:idx+1] + "****"
	}
	return ingestURL[:idx+1] + "****" + key[len(key)-4:]
}

func failureHint(kind FailureKind) string {
	switch kind {
	case FailureConnectionRefused:
		return "destination ingest unreachable; check network and ingest url"
	case FailureUnauthorized:
		return "stream key rejected; check youtube.stream_key"
	case FailureForbidden:
		return "destination refused publishing; check the broadcast is ready"
	case FailureSendFailed:
		return "sending to the destination failed mid-stream"
	default:
		return "inspect relay logs for the ffmpeg exit reason"
	}
}

