package history

import (
	"database/sql"
	"errors"
	"time"

	"mirrorcast/internal/session"
)

// Record is one persisted session.
type Record struct {
	ID              string        `json:"id"`
	Channel         string        `json:"channel"`
	Streamer        string        `json:"streamer,omitempty"`
	SourceTitle     string        `json:"source_title,omitempty"`
	Category        string        `json:"category,omitempty"`
	State           session.State `json:"state"`
	BroadcastID     string        `json:"broadcast_id,omitempty"`
	RelayRestarts   int           `json:"relay_restarts"`
	ReadinessChecks int           `json:"readiness_checks"`
	FailureCause    string        `json:"failure_cause,omitempty"`
	FailureError    string        `json:"failure_error,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	UpdatedAt       time.Time     `json:"updated_at"`
	Transitions     []Transition  `json:"transitions,omitempty"`
}

// Duration returns how long the session ran, or zero while it is still open.
func (r Record) Duration() time.Duration {
	if r.EndedAt == nil || r.EndedAt.Before(r.StartedAt) {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Transition is one recorded state change.
type Transition struct {
	From session.State `json:"from"`
	To   session.State `json:"to"`
	At   time.Time     `json:"at"`
}

const sessionColumns = `id, channel, streamer, source_title, category, state, broadcast_id,
	relay_restarts, readiness_checks, failure_cause, failure_error, started_at, ended_at, updated_at`

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		rec                                    Record
		state                                  string
		streamer, title, category, broadcastID sql.NullString
		cause, failure, endedAt                sql.NullString
		startedAt, updatedAt                   string
	)
	if err := scanner.Scan(
		&rec.ID, &rec.Channel, &streamer, &title, &category, &state, &broadcastID,
		&rec.RelayRestarts, &rec.ReadinessChecks, &cause, &failure, &startedAt, &endedAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	rec.State = session.State(state)
	rec.Streamer = streamer.String
	rec.SourceTitle = title.String
	rec.Category = category.String
	rec.BroadcastID = broadcastID.String
	rec.FailureCause = cause.String
	rec.FailureError = failure.String
	if t, err := parseTimeString(startedAt); err == nil {
		rec.StartedAt = t
	}
	if t, err := parseTimeString(updatedAt); err == nil {
		rec.UpdatedAt = t
	}
	if endedAt.Valid {
		if t, err := parseTimeString(endedAt.String); err == nil {
			rec.EndedAt = &t
		}
	}
	return &rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return formatTime(value)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
