package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mirrorcast/internal/logging"
	"mirrorcast/internal/services"
)

// ErrResolutionFailed is returned when every strategy failed to produce a
// playable URL.
var ErrResolutionFailed = errors.New("feed resolution failed")

// Strategy produces a candidate playable URL for a channel.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, channel string) (string, error)
}

// SelfValidating marks strategies that probe their own result. The resolver
// skips its validator for them.
type SelfValidating interface {
	Validated() bool
}

// Validator checks that a resolved URL is playable.
type Validator interface {
	Validate(ctx context.Context, url string) error
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, url string) error

// Validate calls f.
func (f ValidatorFunc) Validate(ctx context.Context, url string) error {
	return f(ctx, url)
}

// Attempt records the outcome of one strategy during a resolution.
type Attempt struct {
	Strategy string
	Duration time.Duration
	Err      error
}

// Resolver tries strategies in order until one yields a validated URL.
type Resolver struct {
	strategies []Strategy
	validator  Validator
	timeout    time.Duration
	logger     *slog.Logger
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithValidator overrides the playlist validator. A nil validator disables
// validation.
func WithValidator(v Validator) ResolverOption {
	return func(r *Resolver) { r.validator = v }
}

// WithStrategyTimeout bounds each strategy attempt.
func WithStrategyTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the resolver logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logging.NewComponentLogger(logger, "feed") }
}

// NewResolver constructs a resolver over strategies in priority order.
func NewResolver(strategies []Strategy, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		strategies: strategies,
		timeout:    10 * time.Second,
		logger:     logging.NewComponentLogger(nil, "feed"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Strategies returns the strategy names in priority order.
func (r *Resolver) Strategies() []string {
	names := make([]string, 0, len(r.strategies))
	for _, s := range r.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Resolve returns the first URL produced by a strategy and accepted by the
// validator. Failures and timeouts move on to the next strategy; nothing is
// retried.
func (r *Resolver) Resolve(ctx context.Context, channel string) (string, error) {
	url, _, err := r.ResolveWithAttempts(ctx, channel)
	return url, err
}

// ResolveWithAttempts behaves like Resolve and also reports every attempt made.
func (r *Resolver) ResolveWithAttempts(ctx context.Context, channel string) (string, []Attempt, error) {
	channel = strings.ToLower(strings.TrimSpace(channel))
	if channel == "" {
		return "", nil, services.Wrap(services.ErrValidation, "feed", "resolve", "channel is required", nil)
	}
	attempts := make([]Attempt, 0, len(r.strategies))
	for _, strategy := range r.strategies {
		if err := ctx.Err(); err != nil {
			return "", attempts, err
		}
		started := time.Now()
		url, err := r.attempt(ctx, strategy, channel)
		attempts = append(attempts, Attempt{Strategy: strategy.Name(), Duration: time.Since(started), Err: err})
		if err != nil {
			r.logger.Debug("feed strategy failed",
				logging.String("strategy", strategy.Name()),
				logging.String(logging.FieldChannel, channel),
				logging.Error(err),
			)
			continue
		}
		r.logger.Info("feed resolved",
			logging.String("strategy", strategy.Name()),
			logging.String(logging.FieldChannel, channel),
			logging.Int("attempts", len(attempts)),
			logging.String(logging.FieldEventType, "feed_resolved"),
		)
		return url, attempts, nil
	}
	if err := ctx.Err(); err != nil {
		return "", attempts, err
	}
	return "", attempts, fmt.Errorf("%w: %s", ErrResolutionFailed, summarize(channel, attempts))
}

func (r *Resolver) attempt(ctx context.Context, strategy Strategy, channel string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	url, err := strategy.Resolve(attemptCtx, channel)
	if err != nil {
		return "", err
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return "", services.Wrap(services.ErrNotFound, "feed", strategy.Name(), "empty url", nil)
	}
	if sv, ok := strategy.(SelfValidating); ok && sv.Validated() {
		return url, nil
	}
	if r.validator == nil {
		return url, nil
	}
	if err := r.validator.Validate(attemptCtx, url); err != nil {
		return "", err
	}
	return url, nil
}

func summarize(channel string, attempts []Attempt) string {
	if len(attempts) == 0 {
		return fmt.Sprintf("no strategies configured for %s", channel)
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Strategy, a.Err))
	}
	return fmt.Sprintf("%s: %s", channel, strings.Join(parts, "; "))
}
