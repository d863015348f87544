package destination

import (
	"context"
	"errors"
)

// Status is a broadcast lifecycle status as reported by the platform.
type Status string

const (
	StatusUnknown  Status = ""
	StatusCreated  Status = "created"
	StatusReady    Status = "ready"
	StatusTesting  Status = "testing"
	StatusLive     Status = "live"
	StatusComplete Status = "complete"
)

// ParseStatus maps a platform lifecycle value onto Status. Transitional values
// (testStarting, liveStarting, revoked, ...) are unknown.
func ParseStatus(value string) Status {
	switch Status(value) {
	case StatusCreated, StatusReady, StatusTesting, StatusLive, StatusComplete:
		return Status(value)
	default:
		return StatusUnknown
	}
}

var (
	// ErrInvalidTransition is reported by an API when the platform refuses a
	// lifecycle change.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	// ErrRedundantTransition is reported when the broadcast is already in the
	// requested status.
	ErrRedundantTransition = errors.New("redundant lifecycle transition")
)

// Broadcast is the platform's view of a live event.
type Broadcast struct {
	ID            string
	Status        Status
	RawStatus     string
	BoundStreamID string
}

// Ingest is a reusable ingest resource the relay publishes to.
type Ingest struct {
	ID      string
	Key     string
	Address string
	Status  string
	Health  string
}

// Active reports whether the platform is receiving data.
func (i Ingest) Active() bool {
	return i.Status == "active"
}

// BroadcastSpec describes a broadcast to create.
type BroadcastSpec struct {
	Title       string
	Description string
	Privacy     string
}

// API is the destination platform surface used by the controller.
// Implementations tag retry-worthy failures with services.ErrTransient.
type API interface {
	CreateBroadcast(ctx context.Context, spec BroadcastSpec) (Broadcast, error)
	FindIngest(ctx context.Context, key string) (Ingest, bool, error)
	CreateIngest(ctx context.Context, title string) (Ingest, error)
	Bind(ctx context.Context, broadcastID, ingestID string) error
	GetBroadcast(ctx context.Context, broadcastID string) (Broadcast, error)
	GetIngest(ctx context.Context, ingestID string) (Ingest, error)
	Transition(ctx context.Context, broadcastID string, target Status) (Status, error)
	DeleteBroadcast(ctx context.Context, broadcastID string) error
}
