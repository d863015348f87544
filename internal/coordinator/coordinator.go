package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mirrorcast/internal/archive"
	"mirrorcast/internal/clock"
	"mirrorcast/internal/config"
	"mirrorcast/internal/destination"
	"mirrorcast/internal/logging"
	"mirrorcast/internal/relay"
	"mirrorcast/internal/services"
	"mirrorcast/internal/session"
	"mirrorcast/internal/watcher"
)

// Failure causes recorded on sessions that end in Failed. Terminal relay
// failures use "relay_" followed by the classified failure kind.
const (
	CauseResolution = "resolution_failed"
	CauseRelayStart = "relay_start_failed"
	CauseProvision  = "provision_failed"
	CauseNotReady   = "destination_not_ready"
	CausePublish    = "publish_failed"
	CauseShutdown   = "shutdown"
)

// ErrNotReady is recorded when the destination never became ready.
var ErrNotReady = errors.New("destination not ready")

const readinessChecks = 2

// FeedResolver yields a playable feed URL for a channel.
type FeedResolver interface {
	Resolve(ctx context.Context, channel string) (string, error)
}

// RelayRunner starts and stops the relay process.
type RelayRunner interface {
	Start(ctx context.Context, feedURL, ingestURL string) (*relay.Handle, error)
	Stop(ctx context.Context, h *relay.Handle) error
}

// Destination drives the destination broadcast lifecycle.
type Destination interface {
	Provision(ctx context.Context, req destination.ProvisionRequest) (destination.Provisioned, error)
	VerifyReady(ctx context.Context, broadcastID, ingestID string) (bool, error)
	Transition(ctx context.Context, broadcastID string, target destination.Status) (destination.Outcome, error)
	Abandon(ctx context.Context, broadcastID string) error
}

// Titler renders the live title and description.
type Titler interface {
	Title(src session.SourceSnapshot) string
	Description(src session.SourceSnapshot) string
}

// Change describes one session state change. Session is a copy.
type Change struct {
	Session session.Session
	From    session.State
	At      time.Time
}

// Listener observes session changes. Listeners run synchronously on the
// goroutine that made the change and must not block.
type Listener func(Change)

// RelayObserver receives every relay event of the active session.
type RelayObserver func(sessionID string, evt relay.Event)

// Options wires a Coordinator.
type Options struct {
	Channel          string
	IngestTarget     string
	IngestKey        string
	ManageBroadcast  bool
	SettleDelay      time.Duration
	ReadinessBackoff time.Duration
	TeardownTimeout  time.Duration

	Resolver    FeedResolver
	Relay       RelayRunner
	Destination Destination
	Titles      Titler
	Archive     archive.Finalizer

	Listeners      []Listener
	RelayObservers []RelayObserver

	Sleeper clock.Sleeper
	Logger  *slog.Logger
	Now     func() time.Time
}

// OptionsFromConfig fills the timing and destination fields from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Channel:          strings.ToLower(strings.TrimSpace(cfg.Twitch.Channel)),
		IngestTarget:     cfg.IngestTarget(),
		IngestKey:        cfg.YouTube.StreamKey,
		ManageBroadcast:  cfg.DestinationManaged(),
		SettleDelay:      cfg.SettleDelay(),
		ReadinessBackoff: cfg.ReadinessBackoff(),
		TeardownTimeout:  cfg.ShutdownTimeout(),
	}
}

// Coordinator owns the single mirror session. It reacts to watcher edges,
// runs the start sequence in the background and tears everything down in a
// fixed order when the source ends or the relay gives up.
type Coordinator struct {
	channel          string
	ingestTarget     string
	ingestKey        string
	manage           bool
	settleDelay      time.Duration
	readinessBackoff time.Duration
	teardownTimeout  time.Duration

	resolver       FeedResolver
	relay          RelayRunner
	dest           Destination
	titles         Titler
	archive        archive.Finalizer
	listeners      []Listener
	relayObservers []RelayObserver

	sleeper clock.Sleeper
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	active  *activeSession
	pending *pendingStart
	closed  bool
	wg      sync.WaitGroup
}

// pendingStart is a start edge that arrived while the previous session was
// still tearing down. At most one is kept.
type pendingStart struct {
	ctx      context.Context
	snapshot session.SourceSnapshot
}

type activeSession struct {
	sess      *session.Session
	ctx       context.Context
	cancel    context.CancelFunc
	startDone chan struct{}

	handle     *relay.Handle
	terminal   *relay.Event
	publishing bool
	ending     bool
}

// ending describes why a session is being torn down.
type ending struct {
	cause    string
	err      error
	failed   bool
	shutdown bool
}

// New constructs a coordinator. Destination may be nil when ManageBroadcast
// is false.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		channel:          strings.ToLower(strings.TrimSpace(opts.Channel)),
		ingestTarget:     strings.TrimSpace(opts.IngestTarget),
		ingestKey:        strings.TrimSpace(opts.IngestKey),
		manage:           opts.ManageBroadcast && opts.Destination != nil,
		settleDelay:      opts.SettleDelay,
		readinessBackoff: opts.ReadinessBackoff,
		teardownTimeout:  opts.TeardownTimeout,
		resolver:         opts.Resolver,
		relay:            opts.Relay,
		dest:             opts.Destination,
		titles:           opts.Titles,
		archive:          opts.Archive,
		listeners:        append([]Listener(nil), opts.Listeners...),
		relayObservers:   append([]RelayObserver(nil), opts.RelayObservers...),
		sleeper:          clock.OrReal(opts.Sleeper),
		logger:           logging.NewComponentLogger(opts.Logger, "coordinator"),
		now:              opts.Now,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.teardownTimeout <= 0 {
		c.teardownTimeout = 30 * time.Second
	}
	if c.archive == nil {
		c.archive = archive.Noop{}
	}
	return c
}

// Run consumes watcher events until ctx is done or events is closed. Start
// and end sequences run in the background so the loop never blocks on them.
func (c *Coordinator) Run(ctx context.Context, events <-chan watcher.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			c.Handle(ctx, evt)
		}
	}
}

// Handle reacts to one watcher event.
func (c *Coordinator) Handle(ctx context.Context, evt watcher.Event) {
	switch evt.Kind {
	case watcher.StreamStarted:
		c.begin(ctx, evt.Snapshot)
	case watcher.StreamEnded:
		c.mu.Lock()
		if c.pending != nil {
			c.pending = nil
			c.logger.Info("queued source start dropped; source ended again",
				logging.String(logging.FieldEventType, "session_start_unqueued"))
		}
		a := c.active
		closed := c.closed
		if a == nil || closed {
			c.mu.Unlock()
			return
		}
		c.wg.Add(1)
		c.mu.Unlock()
		go func() {
			defer c.wg.Done()
			c.endSession(a, ending{})
		}()
	}
}

func (c *Coordinator) begin(parent context.Context, snapshot session.SourceSnapshot) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Debug("source start ignored after shutdown")
		return false
	}
	if a := c.active; a != nil && a.ending && !a.sess.State.Terminal() {
		c.pending = &pendingStart{ctx: parent, snapshot: snapshot}
		id := a.sess.ID
		c.mu.Unlock()
		c.logger.Info("source start queued until the ending session finishes teardown",
			logging.String(logging.FieldSessionID, id),
			logging.String(logging.FieldEventType, "session_start_queued"),
		)
		return false
	}
	if a := c.active; a != nil && !a.sess.State.Terminal() {
		state := a.sess.State
		id := a.sess.ID
		c.mu.Unlock()
		c.logger.Info("source start ignored; session already active",
			logging.String(logging.FieldSessionID, id),
			logging.String("state", string(state)),
			logging.String(logging.FieldEventType, "session_start_ignored"),
		)
		return false
	}
	if snapshot.Channel == "" {
		snapshot.Channel = c.channel
	}
	now := c.now()
	sess := session.New(snapshot, now)
	sess.IngestTarget = c.ingestTarget
	ctx, cancel := context.WithCancel(services.WithSessionID(context.WithoutCancel(parent), sess.ID))
	a := &activeSession{
		sess:      sess,
		ctx:       ctx,
		cancel:    cancel,
		startDone: make(chan struct{}),
	}
	c.active = a
	created := Change{Session: *sess, From: session.StateIdle, At: now}
	c.wg.Add(1)
	c.mu.Unlock()

	logging.WithContext(ctx, c.logger).Info("mirror session created",
		logging.String(logging.FieldChannel, snapshot.Channel),
		logging.String("title", snapshot.Title),
		logging.String(logging.FieldEventType, "session_created"),
	)
	c.emit(created)
	go func() {
		defer c.wg.Done()
		defer close(a.startDone)
		c.start(a)
	}()
	return true
}

// start runs Resolving through Live. Any return without a claimed end leaves
// teardown to whoever cancelled the session context.
func (c *Coordinator) start(a *activeSession) {
	ctx := a.ctx
	logger := logging.WithContext(ctx, c.logger)
	src := a.sess.Source

	if !c.advance(a, session.StateResolving) {
		return
	}
	feedURL, err := c.resolver.Resolve(services.WithStage(ctx, "resolving"), src.Channel)
	if err != nil {
		if ctx.Err() == nil {
			c.abort(a, CauseResolution, err)
		}
		return
	}
	c.mu.Lock()
	a.sess.ReplaceFeed(feedURL)
	target := a.sess.IngestTarget
	c.mu.Unlock()

	if !c.advance(a, session.StateRelaying) {
		return
	}
	if err := c.startRelay(a, feedURL, target); err != nil {
		if ctx.Err() == nil {
			c.abort(a, CauseRelayStart, err)
		}
		return
	}
	if err := c.sleeper.Sleep(ctx, c.settleDelay); err != nil {
		return
	}

	if !c.manage {
		logger.Info("relay-only mode; destination lifecycle not managed",
			logging.String(logging.FieldEventType, "session_relay_only"))
		c.advance(a, session.StateLive)
		return
	}

	if !c.advance(a, session.StateProvisioning) {
		return
	}
	title, description := src.Title, ""
	if c.titles != nil {
		title = c.titles.Title(src)
		description = c.titles.Description(src)
	}
	prov, err := c.dest.Provision(services.WithStage(ctx, "provisioning"), destination.ProvisionRequest{
		Title:       title,
		Description: description,
		IngestKey:   c.ingestKey,
	})
	if err != nil {
		if ctx.Err() == nil {
			c.abort(a, CauseProvision, err)
		}
		return
	}
	c.mu.Lock()
	a.sess.BroadcastID = prov.BroadcastID
	a.sess.IngestID = prov.IngestID
	c.mu.Unlock()

	if provisioned := provisionedTarget(prov); provisioned != "" && provisioned != target {
		if err := c.retarget(a, provisioned); err != nil {
			if ctx.Err() == nil {
				c.abort(a, CauseRelayStart, err)
			}
			return
		}
	}

	if !c.advance(a, session.StateAwaitingReady) {
		return
	}
	ready, err := c.awaitReady(a, prov.BroadcastID, prov.IngestID)
	if ctx.Err() != nil {
		return
	}
	if !ready {
		cause := ErrNotReady
		if err != nil {
			cause = fmt.Errorf("%w: %w", ErrNotReady, err)
		}
		c.abort(a, CauseNotReady, cause)
		return
	}

	if !c.advance(a, session.StatePublishing) {
		return
	}
	c.mu.Lock()
	a.publishing = true
	c.mu.Unlock()
	outcome, err := c.dest.Transition(services.WithStage(ctx, "publishing"), prov.BroadcastID, destination.StatusLive)
	if ctx.Err() != nil {
		return
	}
	if outcome != destination.OutcomeSuccess {
		if err == nil {
			err = fmt.Errorf("transition to live %s", outcome)
		}
		c.mu.Lock()
		a.publishing = false
		c.mu.Unlock()
		c.abort(a, CausePublish, err)
		return
	}
	if c.advance(a, session.StateLive) {
		logger.Info("mirror is live",
			logging.String(logging.FieldBroadcastID, prov.BroadcastID),
			logging.String(logging.FieldEventType, "session_live"),
		)
	}
}

func provisionedTarget(prov destination.Provisioned) string {
	if strings.TrimSpace(prov.IngestURL) == "" || strings.TrimSpace(prov.IngestKey) == "" {
		return ""
	}
	return config.JoinIngest(prov.IngestURL, prov.IngestKey)
}

// awaitReady checks readiness, waits the backoff once and checks again.
func (c *Coordinator) awaitReady(a *activeSession, broadcastID, ingestID string) (bool, error) {
	ctx := services.WithStage(a.ctx, "awaiting_ready")
	logger := logging.WithContext(ctx, c.logger)
	var lastErr error
	for check := 1; check <= readinessChecks; check++ {
		if check > 1 {
			if err := c.sleeper.Sleep(ctx, c.readinessBackoff); err != nil {
				return false, err
			}
		}
		ready, err := c.dest.VerifyReady(ctx, broadcastID, ingestID)
		c.mu.Lock()
		a.sess.ReadinessChecks++
		c.mu.Unlock()
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if ready {
			return true, nil
		}
		lastErr = err
		logger.Info("destination not ready",
			logging.Int("check", check),
			logging.Error(err),
			logging.String(logging.FieldEventType, "destination_not_ready"),
		)
	}
	return false, lastErr
}

func (c *Coordinator) startRelay(a *activeSession, feedURL, target string) error {
	h, err := c.relay.Start(services.WithStage(a.ctx, "relaying"), feedURL, target)
	if err != nil {
		return err
	}
	c.mu.Lock()
	a.handle = h
	a.sess.IngestTarget = target
	c.wg.Add(1)
	c.mu.Unlock()
	go c.watchRelay(a, h)
	return nil
}

// retarget moves the relay onto the provisioned ingest. It is a stop and a
// fresh start, not a supervised restart.
func (c *Coordinator) retarget(a *activeSession, target string) error {
	c.mu.Lock()
	old := a.handle
	a.handle = nil
	feedURL := a.sess.FeedURL
	c.mu.Unlock()
	logging.WithContext(a.ctx, c.logger).Info("retargeting relay to provisioned ingest",
		logging.String("ingest", relay.RedactIngest(target)),
		logging.String(logging.FieldEventType, "relay_retarget"),
	)
	if old != nil {
		if err := c.relay.Stop(a.ctx, old); err != nil {
			return err
		}
	}
	return c.startRelay(a, feedURL, target)
}

func (c *Coordinator) watchRelay(a *activeSession, h *relay.Handle) {
	defer c.wg.Done()
	for {
		select {
		case evt := <-h.Events():
			c.onRelayEvent(a, h, evt)
		case <-h.Done():
			c.drainRelay(a, h)
			c.relayFinished(a, h)
			return
		}
	}
}

func (c *Coordinator) drainRelay(a *activeSession, h *relay.Handle) {
	for {
		select {
		case evt := <-h.Events():
			c.onRelayEvent(a, h, evt)
		default:
			return
		}
	}
}

func (c *Coordinator) onRelayEvent(a *activeSession, h *relay.Handle, evt relay.Event) {
	c.mu.Lock()
	current := a.handle == h
	var restarted *Change
	switch evt.Kind {
	case relay.EventRestarting:
		if current {
			a.sess.RelayRestarts++
			if !a.ending && !a.sess.State.Terminal() {
				change := c.restartChangeLocked(a)
				restarted = &change
			}
		}
	case relay.EventTerminal:
		if current {
			terminal := evt
			a.terminal = &terminal
		}
	}
	id := a.sess.ID
	c.mu.Unlock()
	if restarted != nil {
		c.emit(*restarted)
	}
	for _, observe := range c.relayObservers {
		observe(id, evt)
	}
}

// restartChangeLocked reports a supervised restart to listeners. Relaying is
// re-entered from itself; later states stay put and only the restart count
// moves.
func (c *Coordinator) restartChangeLocked(a *activeSession) Change {
	if a.sess.State == session.StateRelaying {
		if change, err := c.changeLocked(a, session.StateRelaying); err == nil {
			return change
		}
	}
	return Change{Session: *a.sess, From: a.sess.State, At: c.now()}
}

// relayFinished ends the session once its current relay is gone for good.
func (c *Coordinator) relayFinished(a *activeSession, h *relay.Handle) {
	c.mu.Lock()
	current := a.handle == h
	terminal := a.terminal
	skip := !current || a.ending || a.sess.State.Terminal()
	c.mu.Unlock()
	if skip {
		return
	}
	if terminal != nil {
		cause := "relay_failed"
		if terminal.Failure != "" {
			cause = "relay_" + string(terminal.Failure)
		}
		err := terminal.Err
		if err == nil {
			err = fmt.Errorf("relay gave up after %d restarts", terminal.Restarts)
		}
		c.endSession(a, ending{cause: cause, err: err, failed: true})
		return
	}
	logging.WithContext(a.ctx, c.logger).Info("relay exited cleanly; ending session",
		logging.String(logging.FieldEventType, "relay_finished"))
	c.endSession(a, ending{})
}

// advance moves the session forward unless it is already being torn down.
func (c *Coordinator) advance(a *activeSession, next session.State) bool {
	c.mu.Lock()
	if a.ending || a.ctx.Err() != nil {
		c.mu.Unlock()
		return false
	}
	change, err := c.changeLocked(a, next)
	c.mu.Unlock()
	if err != nil {
		logging.ErrorWithContext(logging.WithContext(a.ctx, c.logger), "session state change refused", "session_state_error",
			logging.String("target", string(next)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "session stages ran out of order"),
		)
		return false
	}
	c.emit(change)
	return true
}

func (c *Coordinator) changeLocked(a *activeSession, next session.State) (Change, error) {
	from := a.sess.State
	if err := a.sess.Advance(next); err != nil {
		return Change{}, err
	}
	return Change{Session: *a.sess, From: from, At: c.now()}, nil
}

// claim marks the session as ending. Only the first caller wins.
func (c *Coordinator) claim(a *activeSession) (session.State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a.ending || a.sess.State.Terminal() {
		return a.sess.State, false
	}
	a.ending = true
	return a.sess.State, true
}

// abort fails the session from inside the start sequence.
func (c *Coordinator) abort(a *activeSession, cause string, err error) {
	if _, ok := c.claim(a); !ok {
		return
	}
	c.teardown(a, ending{cause: cause, err: err, failed: true})
}

// endSession tears down a from outside the start sequence: pending waits are
// cancelled and the start goroutine is allowed to unwind first.
func (c *Coordinator) endSession(a *activeSession, reason ending) {
	state, ok := c.claim(a)
	if !ok {
		return
	}
	if reason.shutdown && state == session.StateLive {
		reason.failed = false
		reason.cause = ""
	}
	a.cancel()
	<-a.startDone
	c.teardown(a, reason)
}

func (c *Coordinator) teardown(a *activeSession, reason ending) {
	defer c.startPending()
	a.cancel()
	ctx, cancel := context.WithTimeout(services.WithSessionID(context.Background(), a.sess.ID), c.teardownTimeout)
	defer cancel()
	logger := logging.WithContext(ctx, c.logger)

	c.mu.Lock()
	change, err := c.changeLocked(a, session.StateEnding)
	handle := a.handle
	broadcastID := a.sess.BroadcastID
	publishing := a.publishing
	c.mu.Unlock()
	if err == nil {
		c.emit(change)
	}
	if reason.failed {
		logging.ErrorWithContext(logger, "mirror session failed", "session_failed",
			logging.String("cause", reason.cause),
			logging.Error(reason.err),
			logging.String(logging.FieldErrorHint, failureHint(reason.cause)),
			logging.String(logging.FieldImpact, "mirror stopped; waiting for the next broadcast"),
		)
	}

	if reason.shutdown {
		c.stopRelay(ctx, logger, handle)
	}
	completed := c.closeDestination(ctx, logger, broadcastID, publishing)
	if !reason.shutdown {
		c.stopRelay(ctx, logger, handle)
	}

	if completed {
		c.mu.Lock()
		req := archive.Request{
			BroadcastID: broadcastID,
			Source:      a.sess.Source,
			StartedAt:   a.sess.StartedAt,
			EndedAt:     c.now(),
		}
		c.mu.Unlock()
		if err := c.archive.Finalize(ctx, req); err != nil {
			logging.WarnWithContext(logger, "archive finalization failed", "archive_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "update the recorded video manually"),
				logging.String(logging.FieldImpact, "archive keeps its live title and privacy"),
			)
		}
	}

	c.mu.Lock()
	from := a.sess.State
	now := c.now()
	if reason.failed {
		err = a.sess.Fail(reason.cause, reason.err, now)
	} else {
		err = a.sess.Finish(session.StateCompleted, now)
	}
	a.handle = nil
	final := Change{Session: *a.sess, From: from, At: now}
	c.mu.Unlock()
	if err != nil {
		logger.Debug("session finish refused", logging.Error(err))
		return
	}
	logger.Info("mirror session ended",
		logging.String("state", string(final.Session.State)),
		logging.Duration("elapsed", final.Session.Elapsed(now)),
		logging.Int("relay_restarts", final.Session.RelayRestarts),
		logging.String(logging.FieldEventType, "session_ended"),
	)
	c.emit(final)
}

// closeDestination completes a broadcast that reached publishing and deletes
// one that never did. It reports whether the broadcast was completed.
func (c *Coordinator) closeDestination(ctx context.Context, logger *slog.Logger, broadcastID string, publishing bool) bool {
	if !c.manage || broadcastID == "" {
		return false
	}
	if publishing {
		outcome, err := c.dest.Transition(ctx, broadcastID, destination.StatusComplete)
		switch outcome {
		case destination.OutcomeSuccess:
			return true
		case destination.OutcomeFailed:
			logging.WarnWithContext(logger, "destination complete failed", "destination_complete_failed",
				logging.String(logging.FieldBroadcastID, broadcastID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "end the broadcast from YouTube Studio"),
				logging.String(logging.FieldImpact, "broadcast may stay live without a feed"),
			)
			return false
		}
	}
	if err := c.dest.Abandon(ctx, broadcastID); err != nil {
		logging.WarnWithContext(logger, "destination cleanup failed", "destination_abandon_failed",
			logging.String(logging.FieldBroadcastID, broadcastID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete the unused broadcast from YouTube Studio"),
			logging.String(logging.FieldImpact, "an empty broadcast remains scheduled"),
		)
	}
	return false
}

// startPending begins the session queued during teardown, if any.
func (c *Coordinator) startPending() {
	c.mu.Lock()
	p := c.pending
	c.pending = nil
	c.mu.Unlock()
	if p != nil {
		c.begin(p.ctx, p.snapshot)
	}
}

func (c *Coordinator) stopRelay(ctx context.Context, logger *slog.Logger, h *relay.Handle) {
	if h == nil {
		return
	}
	if err := c.relay.Stop(ctx, h); err != nil {
		logging.WarnWithContext(logger, "relay stop incomplete", "relay_stop_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for a leftover ffmpeg process"),
			logging.String(logging.FieldImpact, "relay may still be running"),
		)
	}
}

func (c *Coordinator) emit(change Change) {
	switch {
	case change.From == session.StateRelaying && change.Session.State == session.StateRelaying:
		c.logger.Info("relay restarted; session re-entered relaying",
			logging.String(logging.FieldSessionID, change.Session.ID),
			logging.Int("relay_restarts", change.Session.RelayRestarts),
			logging.String(logging.FieldEventType, "session_state"),
		)
	case change.From != change.Session.State:
		c.logger.Info("session state changed",
			logging.String(logging.FieldSessionID, change.Session.ID),
			logging.String("from", string(change.From)),
			logging.String("to", string(change.Session.State)),
			logging.String(logging.FieldEventType, "session_state"),
		)
	}
	for _, l := range c.listeners {
		l(change)
	}
}

// Stop ends the active session as an operator request. It is a no-op when no
// session is active or the session is already terminal.
func (c *Coordinator) Stop(ctx context.Context) {
	c.mu.Lock()
	a := c.active
	c.mu.Unlock()
	if a == nil {
		return
	}
	logging.WithContext(ctx, c.logger).Info("operator stop requested",
		logging.String(logging.FieldSessionID, a.sess.ID),
		logging.String(logging.FieldEventType, "session_stop_requested"),
	)
	c.endSession(a, ending{})
}

// Shutdown stops accepting events, cancels pending waits, force-stops the
// relay and completes the destination on a best-effort basis. It returns once
// every background goroutine has finished or ctx expires.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	a := c.active
	c.mu.Unlock()
	if a != nil {
		c.endSession(a, ending{cause: CauseShutdown, failed: true, shutdown: true})
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a point-in-time view of the current or last session.
func (c *Coordinator) Status() session.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	var st session.Status
	if a := c.active; a != nil {
		st = session.Snapshot(a.sess, c.now())
		if h := a.handle; h != nil {
			select {
			case <-h.Done():
			default:
				st.RelayActive = true
			}
			if stats, ok := h.Stats(); ok {
				st.Relay = &stats
			}
		}
	} else {
		st = session.Snapshot(nil, c.now())
	}
	st.Channel = c.channel
	st.RelayOnly = !c.manage
	return st
}

// Active reports whether a non-terminal session exists.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil && !c.active.sess.State.Terminal()
}

func failureHint(cause string) string {
	switch cause {
	case CauseResolution:
		return "no feed strategy produced a playable playlist; check helper tools and client ids"
	case CauseRelayStart:
		return "check ffmpeg is installed and the ingest url is set"
	case CauseProvision:
		return "check youtube credentials and live streaming permissions"
	case CauseNotReady:
		return "the ingest never reported active; check the stream key matches the bound ingest"
	case CausePublish:
		return "youtube refused to go live; check the broadcast in YouTube Studio"
	case CauseShutdown:
		return "daemon shut down before the mirror went live"
	}
	if strings.HasPrefix(cause, "relay_") {
		return "relay exhausted its restarts; check the feed and ingest"
	}
	return "check logs for details"
}
