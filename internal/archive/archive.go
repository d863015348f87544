package archive

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"mirrorcast/internal/logging"
	"mirrorcast/internal/services"
	"mirrorcast/internal/session"
	"mirrorcast/internal/titles"
)

// Request describes a finished broadcast whose recording should be tidied up.
type Request struct {
	BroadcastID string
	Source      session.SourceSnapshot
	StartedAt   time.Time
	EndedAt     time.Time
}

// Finalizer applies post-session metadata to the recording.
type Finalizer interface {
	Finalize(ctx context.Context, req Request) error
}

// VideoUpdater edits a recorded video's metadata.
type VideoUpdater interface {
	UpdateVideo(ctx context.Context, videoID, title, description, privacy string) error
}

// Noop is a Finalizer that does nothing.
type Noop struct{}

// Finalize returns nil.
func (Noop) Finalize(context.Context, Request) error { return nil }

// VideoFinalizer rewrites title, description and privacy of the recording.
// YouTube keeps the broadcast id as the recording's video id.
type VideoFinalizer struct {
	updater  VideoUpdater
	renderer *titles.Renderer
	privacy  string
	logger   *slog.Logger
}

// NewVideoFinalizer builds a finalizer backed by updater.
func NewVideoFinalizer(updater VideoUpdater, renderer *titles.Renderer, privacy string, logger *slog.Logger) *VideoFinalizer {
	return &VideoFinalizer{
		updater:  updater,
		renderer: renderer,
		privacy:  strings.TrimSpace(privacy),
		logger:   logging.NewComponentLogger(logger, "archive"),
	}
}

// Finalize updates the recording. Callers treat failures as informational.
func (f *VideoFinalizer) Finalize(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.BroadcastID) == "" {
		return services.Wrap(services.ErrValidation, "archive", "finalize", "broadcast id is required", nil)
	}
	title := f.renderer.ArchiveTitle(req.Source, req.StartedAt, req.EndedAt)
	description := f.renderer.ArchiveDescription(req.Source, req.StartedAt, req.EndedAt)
	if err := f.updater.UpdateVideo(ctx, req.BroadcastID, title, description, f.privacy); err != nil {
		return err
	}
	logging.WithContext(ctx, f.logger).Info("archive finalized",
		logging.String(logging.FieldBroadcastID, req.BroadcastID),
		logging.String("title", title),
		logging.String("privacy", f.privacy),
		logging.String(logging.FieldEventType, "archive_finalized"),
	)
	return nil
}
