package destination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mirrorcast/internal/clock"
	"mirrorcast/internal/logging"
	"mirrorcast/internal/services"
)

// ErrProvisionFailed wraps every failure of Provision.
var ErrProvisionFailed = errors.New("destination provisioning failed")

// Outcome is the result of a lifecycle transition request.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

var transitions = map[Status][]Status{
	StatusCreated:  {StatusTesting, StatusLive},
	StatusReady:    {StatusTesting, StatusLive},
	StatusTesting:  {StatusLive, StatusComplete},
	StatusLive:     {StatusComplete},
	StatusComplete: {},
}

// Allowed reports whether from -> to is a legal lifecycle move.
func Allowed(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ProvisionRequest describes the broadcast to create for a session.
type ProvisionRequest struct {
	Title       string
	Description string
	IngestKey   string
}

// Provisioned identifies the resources created for a session.
type Provisioned struct {
	BroadcastID  string
	IngestID     string
	IngestKey    string
	IngestURL    string
	ReusedIngest bool
}

// Options configures a Controller.
type Options struct {
	Privacy       string
	APIAttempts   int
	RetryInterval time.Duration
	TestingSettle time.Duration
	Sleeper       clock.Sleeper
	Logger        *slog.Logger
}

// Controller drives a broadcast through its lifecycle. It remembers the last
// status it observed per broadcast and only asks the platform when it has
// none.
type Controller struct {
	api           API
	privacy       string
	attempts      int
	retryInterval time.Duration
	testingSettle time.Duration
	sleeper       clock.Sleeper
	logger        *slog.Logger

	mu       sync.Mutex
	observed map[string]Status
}

// NewController wraps api.
func NewController(api API, opts Options) *Controller {
	c := &Controller{
		api:           api,
		privacy:       strings.TrimSpace(opts.Privacy),
		attempts:      opts.APIAttempts,
		retryInterval: opts.RetryInterval,
		testingSettle: opts.TestingSettle,
		sleeper:       clock.OrReal(opts.Sleeper),
		logger:        logging.NewComponentLogger(opts.Logger, "destination"),
		observed:      make(map[string]Status),
	}
	if c.privacy == "" {
		c.privacy = "public"
	}
	if c.attempts <= 0 {
		c.attempts = 1
	}
	return c
}

// Observed returns the last status seen for broadcastID.
func (c *Controller) Observed(broadcastID string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observed[broadcastID]
}

func (c *Controller) record(broadcastID string, status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status == StatusUnknown {
		delete(c.observed, broadcastID)
		return
	}
	c.observed[broadcastID] = status
}

func (c *Controller) forget(broadcastID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.observed, broadcastID)
}

// Provision creates the broadcast, finds or creates the ingest and binds
// them. Every failure matches ErrProvisionFailed.
func (c *Controller) Provision(ctx context.Context, req ProvisionRequest) (Provisioned, error) {
	logger := logging.WithContext(ctx, c.logger)
	var broadcast Broadcast
	err := c.retry(ctx, "create broadcast", func() error {
		var err error
		broadcast, err = c.api.CreateBroadcast(ctx, BroadcastSpec{
			Title:       req.Title,
			Description: req.Description,
			Privacy:     c.privacy,
		})
		return err
	})
	if err != nil {
		return Provisioned{}, provisionError("create broadcast", err)
	}
	c.record(broadcast.ID, broadcast.Status)

	out := Provisioned{BroadcastID: broadcast.ID}
	var ingest Ingest
	found := false
	if key := strings.TrimSpace(req.IngestKey); key != "" {
		err = c.retry(ctx, "find ingest", func() error {
			var err error
			ingest, found, err = c.api.FindIngest(ctx, key)
			return err
		})
		if err != nil {
			c.cleanup(ctx, broadcast.ID)
			return Provisioned{}, provisionError("find ingest", err)
		}
	}
	if !found {
		err = c.retry(ctx, "create ingest", func() error {
			var err error
			ingest, err = c.api.CreateIngest(ctx, req.Title)
			return err
		})
		if err != nil {
			c.cleanup(ctx, broadcast.ID)
			return Provisioned{}, provisionError("create ingest", err)
		}
	}
	out.IngestID = ingest.ID
	out.IngestKey = ingest.Key
	out.IngestURL = ingest.Address
	out.ReusedIngest = found

	err = c.retry(ctx, "bind", func() error {
		return c.api.Bind(ctx, broadcast.ID, ingest.ID)
	})
	if err != nil {
		c.cleanup(ctx, broadcast.ID)
		return Provisioned{}, provisionError("bind", err)
	}
	logger.Info("destination provisioned",
		logging.String(logging.FieldBroadcastID, broadcast.ID),
		logging.String("ingest_id", ingest.ID),
		logging.Bool("reused_ingest", found),
		logging.String(logging.FieldEventType, "destination_provisioned"),
	)
	return out, nil
}

// cleanup removes a half-provisioned broadcast. Failures are logged only.
func (c *Controller) cleanup(ctx context.Context, broadcastID string) {
	if err := c.Abandon(context.WithoutCancel(ctx), broadcastID); err != nil {
		c.logger.Debug("cleanup of partial broadcast failed",
			logging.String(logging.FieldBroadcastID, broadcastID),
			logging.Error(err),
		)
	}
}

func provisionError(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrProvisionFailed, step, err)
}

// VerifyReady performs exactly one readiness check: the ingest is receiving
// data, the broadcast is bound to it and the broadcast is ready, testing or
// live.
func (c *Controller) VerifyReady(ctx context.Context, broadcastID, ingestID string) (bool, error) {
	ingest, err := c.api.GetIngest(ctx, ingestID)
	if err != nil {
		return false, err
	}
	broadcast, err := c.api.GetBroadcast(ctx, broadcastID)
	if err != nil {
		return false, err
	}
	c.record(broadcastID, broadcast.Status)

	ready := ingest.Active() &&
		broadcast.BoundStreamID == ingestID &&
		(broadcast.Status == StatusReady || broadcast.Status == StatusTesting || broadcast.Status == StatusLive)
	logging.WithContext(ctx, c.logger).Debug("readiness check",
		logging.String(logging.FieldBroadcastID, broadcastID),
		logging.String("ingest_status", ingest.Status),
		logging.String("ingest_health", ingest.Health),
		logging.String("lifecycle", broadcast.RawStatus),
		logging.Bool("bound", broadcast.BoundStreamID == ingestID),
		logging.Bool("ready", ready),
	)
	return ready, nil
}

// Transition moves broadcastID to target. Requests that the lifecycle table
// already answers (same status, from complete, illegal moves) never reach the
// platform. created/ready -> live passes through testing first. When the
// broadcast status is not yet cached the first call costs one read-only GET.
func (c *Controller) Transition(ctx context.Context, broadcastID string, target Status) (Outcome, error) {
	logger := logging.WithContext(ctx, c.logger).With(
		logging.String(logging.FieldBroadcastID, broadcastID),
		logging.String("target", string(target)),
	)
	current := c.Observed(broadcastID)
	if current == StatusUnknown {
		var broadcast Broadcast
		err := c.retry(ctx, "get broadcast", func() error {
			var err error
			broadcast, err = c.api.GetBroadcast(ctx, broadcastID)
			return err
		})
		if err != nil {
			return OutcomeFailed, err
		}
		current = broadcast.Status
		c.record(broadcastID, current)
		if current == StatusUnknown {
			logging.WarnWithContext(logger, "broadcast is in a transitional state", "destination_transition_unknown",
				logging.String("lifecycle", broadcast.RawStatus),
				logging.String(logging.FieldErrorHint, "retry once the platform settles"),
				logging.String(logging.FieldImpact, "transition not attempted"),
			)
			return OutcomeFailed, services.Wrap(services.ErrTransient, "destination", "transition",
				"lifecycle status "+broadcast.RawStatus+" is transitional", nil)
		}
	}

	switch {
	case current == target:
		return OutcomeSuccess, nil
	case current == StatusComplete:
		logger.Info("broadcast already complete; transition rejected",
			logging.String(logging.FieldEventType, "destination_transition_rejected"))
		return OutcomeRejected, nil
	case !Allowed(current, target):
		logging.ErrorWithContext(logger, "transition out of order", "destination_ordering_error",
			logging.String("current", string(current)),
			logging.String(logging.FieldErrorHint, "session stages issued lifecycle changes out of order"),
			logging.String(logging.FieldImpact, "transition rejected without contacting the platform"),
		)
		return OutcomeRejected, nil
	}

	if target == StatusLive && (current == StatusCreated || current == StatusReady) {
		outcome, err := c.step(ctx, logger, broadcastID, StatusTesting)
		if outcome != OutcomeSuccess {
			return outcome, err
		}
		if err := c.sleeper.Sleep(ctx, c.testingSettle); err != nil {
			return OutcomeFailed, err
		}
	}
	return c.step(ctx, logger, broadcastID, target)
}

func (c *Controller) step(ctx context.Context, logger *slog.Logger, broadcastID string, target Status) (Outcome, error) {
	var reported Status
	err := c.retry(ctx, "transition "+string(target), func() error {
		var err error
		reported, err = c.api.Transition(ctx, broadcastID, target)
		return err
	})
	switch {
	case err == nil, errors.Is(err, ErrRedundantTransition):
		// Transitional answers (testStarting, liveStarting) count as the target.
		if reported == StatusUnknown || err != nil {
			reported = target
		}
		c.record(broadcastID, reported)
		logger.Info("broadcast transitioned",
			logging.String("status", string(reported)),
			logging.String(logging.FieldEventType, "destination_transitioned"),
		)
		return OutcomeSuccess, nil
	case errors.Is(err, ErrInvalidTransition):
		c.forget(broadcastID)
		logging.WarnWithContext(logger, "platform rejected transition", "destination_transition_rejected",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "broadcast or ingest not in a state that allows this change"),
			logging.String(logging.FieldImpact, "lifecycle unchanged"),
		)
		return OutcomeRejected, err
	default:
		c.forget(broadcastID)
		return OutcomeFailed, err
	}
}

// Abandon deletes a broadcast that never went live.
func (c *Controller) Abandon(ctx context.Context, broadcastID string) error {
	if strings.TrimSpace(broadcastID) == "" {
		return nil
	}
	err := c.retry(ctx, "delete broadcast", func() error {
		return c.api.DeleteBroadcast(ctx, broadcastID)
	})
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		return err
	}
	c.forget(broadcastID)
	logging.WithContext(ctx, c.logger).Info("broadcast abandoned",
		logging.String(logging.FieldBroadcastID, broadcastID),
		logging.String(logging.FieldEventType, "destination_abandoned"),
	)
	return nil
}

// retry runs fn until it succeeds, fails permanently or the attempt budget is
// spent. Only retryable errors are retried.
func (c *Controller) retry(ctx context.Context, operation string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		err = fn()
		if err == nil || !services.Retryable(err) || ctx.Err() != nil {
			return err
		}
		if attempt == c.attempts {
			break
		}
		c.logger.Debug("destination call failed; retrying",
			logging.String("operation", operation),
			logging.Int("attempt", attempt),
			logging.Error(err),
		)
		if serr := c.sleeper.Sleep(ctx, c.retryInterval); serr != nil {
			return err
		}
	}
	return err
}
