package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mirrorcast/internal/logging"
	"mirrorcast/internal/source"
)

// Observer receives poll outcomes for metrics.
type Observer interface {
	PollSucceeded(live bool)
	PollFailed()
}

// Watcher polls one channel on a fixed interval and emits edge events.
type Watcher struct {
	channel     string
	query       source.StatusQuery
	interval    time.Duration
	pollTimeout time.Duration
	logger      *slog.Logger
	observer    Observer
	events      chan Event

	mu       sync.Mutex
	live     bool
	lastPoll time.Time
	lastErr  error
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithObserver attaches a poll observer.
func WithObserver(o Observer) Option {
	return func(w *Watcher) { w.observer = o }
}

// WithPollTimeout bounds each status query.
func WithPollTimeout(d time.Duration) Option {
	return func(w *Watcher) { w.pollTimeout = d }
}

// New constructs a watcher for channel.
func New(channel string, query source.StatusQuery, interval time.Duration, logger *slog.Logger, opts ...Option) *Watcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	w := &Watcher{
		channel:  channel,
		query:    query,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "watcher"),
		events:   make(chan Event, 4),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Events returns the edge event stream. It is closed when Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Live reports the last known liveness.
func (w *Watcher) Live() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.live
}

// Run polls immediately and then on every tick until ctx is done. A slow poll
// delays the next tick rather than overlapping it.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.events)
	w.logger.Info("watching channel",
		logging.String(logging.FieldChannel, w.channel),
		logging.Duration("interval", w.interval),
		logging.String(logging.FieldEventType, "watcher_started"),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if evt, ok := w.Poll(ctx); ok {
			select {
			case w.events <- evt:
			case <-ctx.Done():
				return
			}
		}
		select {
		case <-ctx.Done():
			w.logger.Debug("watcher stopped", logging.String(logging.FieldEventType, "watcher_stopped"))
			return
		case <-ticker.C:
		}
	}
}

// Poll performs one status query and applies edge detection. It is exported
// so the CLI and tests can drive the watcher without timers.
func (w *Watcher) Poll(ctx context.Context) (Event, bool) {
	pollCtx := ctx
	if w.pollTimeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, w.pollTimeout)
		defer cancel()
	}
	status, err := w.query.Status(pollCtx, w.channel)

	w.mu.Lock()
	wasLive := w.live
	w.lastPoll = time.Now()
	w.lastErr = err
	evt, ok := Detect(wasLive, status, err)
	if ok {
		w.live = evt.Kind == StreamStarted
	}
	w.mu.Unlock()

	if err != nil {
		if ctx.Err() == nil {
			logging.WarnWithContext(w.logger, "source status query failed; keeping last known state", "watcher_poll_failed",
				logging.String(logging.FieldChannel, w.channel),
				logging.Bool("last_known_live", wasLive),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check twitch credentials and network connectivity"),
				logging.String(logging.FieldImpact, "stream start/end detection delayed until the next successful poll"),
			)
		}
		if w.observer != nil {
			w.observer.PollFailed()
		}
		return Event{}, false
	}
	if w.observer != nil {
		w.observer.PollSucceeded(status.Live)
	}
	if !ok {
		return Event{}, false
	}
	if evt.Channel == "" {
		evt.Channel = w.channel
	}
	if evt.Kind == StreamStarted && evt.Snapshot.Channel == "" {
		evt.Snapshot.Channel = w.channel
	}
	w.logger.Info("source availability changed",
		logging.String(logging.FieldChannel, w.channel),
		logging.String("edge", string(evt.Kind)),
		logging.String("title", evt.Snapshot.Title),
		logging.String(logging.FieldEventType, string(evt.Kind)),
	)
	return evt, true
}

// LastPoll returns the time and error of the most recent poll.
func (w *Watcher) LastPoll() (time.Time, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastPoll, w.lastErr
}
