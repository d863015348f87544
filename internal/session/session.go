package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrBackward is returned when a transition would revisit an earlier state.
var ErrBackward = errors.New("session state cannot move backward")

// State is the lifecycle position of a mirror session.
type State string

const (
	StateIdle          State = "idle"
	StateResolving     State = "resolving"
	StateRelaying      State = "relaying"
	StateProvisioning  State = "provisioning"
	StateAwaitingReady State = "awaiting_ready"
	StatePublishing    State = "publishing"
	StateLive          State = "live"
	StateEnding        State = "ending"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

var stateOrder = map[State]int{
	StateIdle:          0,
	StateResolving:     1,
	StateRelaying:      2,
	StateProvisioning:  3,
	StateAwaitingReady: 4,
	StatePublishing:    5,
	StateLive:          6,
	StateEnding:        7,
	StateCompleted:     8,
	StateFailed:        8,
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := stateOrder[s]
	return ok
}

// ParseState converts a stored string back into a State.
func ParseState(value string) (State, bool) {
	s := State(value)
	return s, s.Valid()
}

// SourceSnapshot is an immutable copy of the source broadcast metadata taken
// when the start edge was observed.
type SourceSnapshot struct {
	Channel     string    `json:"channel"`
	DisplayName string    `json:"display_name"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	ViewerCount int       `json:"viewer_count"`
	StartedAt   time.Time `json:"started_at"`
}

// Streamer returns the display name, falling back to the channel login.
func (s SourceSnapshot) Streamer() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Channel
}

// Session is one end-to-end mirrored-broadcast attempt. It is owned by the
// coordinator; other packages only ever see copies via Status.
type Session struct {
	ID           string
	State        State
	Source       SourceSnapshot
	FeedURL      string
	IngestTarget string
	BroadcastID  string
	IngestID     string

	RelayRestarts   int
	ReadinessChecks int

	StartedAt    time.Time
	EndedAt      time.Time
	FailureCause string
	FailureError string
}

// New creates an Idle session for the detected source broadcast.
func New(source SourceSnapshot, now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		State:     StateIdle,
		Source:    source,
		StartedAt: now,
	}
}

// Advance moves the session to next. Only forward moves are allowed, except
// Relaying which may be re-entered from itself. Terminal states are final.
func (s *Session) Advance(next State) error {
	if !next.Valid() {
		return fmt.Errorf("unknown session state %q", next)
	}
	if s.State.Terminal() {
		return fmt.Errorf("%w: %s is terminal", ErrBackward, s.State)
	}
	if next == s.State {
		if next == StateRelaying {
			return nil
		}
		return fmt.Errorf("%w: already %s", ErrBackward, next)
	}
	if stateOrder[next] < stateOrder[s.State] {
		return fmt.Errorf("%w: %s -> %s", ErrBackward, s.State, next)
	}
	s.State = next
	return nil
}

// Finish moves the session to a terminal state and stamps EndedAt.
func (s *Session) Finish(state State, now time.Time) error {
	if !state.Terminal() {
		return fmt.Errorf("session finish requires a terminal state, got %s", state)
	}
	if err := s.Advance(state); err != nil {
		return err
	}
	s.EndedAt = now
	return nil
}

// Fail records the classified cause and moves to Failed.
func (s *Session) Fail(cause string, err error, now time.Time) error {
	s.FailureCause = cause
	if err != nil {
		s.FailureError = err.Error()
	}
	return s.Finish(StateFailed, now)
}

// ReplaceFeed swaps in a freshly resolved feed URL.
func (s *Session) ReplaceFeed(url string) {
	s.FeedURL = url
}

// Elapsed returns how long the session has been (or was) running.
func (s *Session) Elapsed(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	end := now
	if !s.EndedAt.IsZero() {
		end = s.EndedAt
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}
