// Package clock provides cancellable timed waits used by the session pipeline.
//
// Every settle delay, backoff window, and restart delay goes through a Sleeper
// so shutdown can abort pending waits and tests can run without real time.
package clock

import (
	"context"
	"time"
)

// Sleeper blocks for d or until ctx is done, whichever happens first.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to the Sleeper interface.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f(ctx, d).
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// Real waits on the wall clock.
var Real Sleeper = SleeperFunc(Sleep)

// Sleep waits for d using a timer. It returns ctx.Err() when the context ends
// first. Non-positive durations only check the context.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// OrReal returns s, or Real when s is nil.
func OrReal(s Sleeper) Sleeper {
	if s == nil {
		return Real
	}
	return s
}
