package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mirrorcast/internal/session"
)

// InterruptedCause marks sessions that were still open when the daemon last
// stopped without tearing them down.
const InterruptedCause = "interrupted"

// RecordChange upserts the session row and appends the transition from -> the
// session's current state. A change that does not move the state only
// refreshes the row, except a Relaying re-entry which is kept as a
// transition.
func (s *Store) RecordChange(ctx context.Context, sess session.Session, from session.State, at time.Time) error {
	ctx = ensureContext(ctx)
	if sess.ID == "" {
		return errors.New("session id is required")
	}
	if at.IsZero() {
		at = time.Now()
	}
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin history tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx, `INSERT INTO sessions (`+sessionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				state = excluded.state,
				broadcast_id = excluded.broadcast_id,
				relay_restarts = excluded.relay_restarts,
				readiness_checks = excluded.readiness_checks,
				failure_cause = excluded.failure_cause,
				failure_error = excluded.failure_error,
				ended_at = excluded.ended_at,
				updated_at = excluded.updated_at`,
			sess.ID,
			sess.Source.Channel,
			nullableString(sess.Source.Streamer()),
			nullableString(sess.Source.Title),
			nullableString(sess.Source.Category),
			string(sess.State),
			nullableString(sess.BroadcastID),
			sess.RelayRestarts,
			sess.ReadinessChecks,
			nullableString(sess.FailureCause),
			nullableString(sess.FailureError),
			formatTime(sess.StartedAt),
			nullableTime(sess.EndedAt),
			formatTime(at),
		)
		if err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}
		if from != sess.State || sess.State == session.StateRelaying {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO session_transitions (session_id, from_state, to_state, at) VALUES (?, ?, ?, ?)`,
				sess.ID, string(from), string(sess.State), formatTime(at),
			); err != nil {
				return fmt.Errorf("insert transition: %w", err)
			}
		}
		return tx.Commit()
	})
}

// List returns the most recent sessions first. A non-positive limit returns
// every session.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Get returns one session with its transitions, or nil when unknown.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	transitions, err := s.Transitions(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Transitions = transitions
	return rec, nil
}

// Transitions returns the recorded state changes of a session in order.
func (s *Store) Transitions(ctx context.Context, id string) ([]Transition, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_state, to_state, at FROM session_transitions WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var from, to, at string
		if err := rows.Scan(&from, &to, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr := Transition{From: session.State(from), To: session.State(to)}
		if t, err := parseTimeString(at); err == nil {
			tr.At = t
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// Stats returns a count of sessions grouped by state.
func (s *Store) Stats(ctx context.Context) (map[session.State]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM sessions GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[session.State]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[session.State(state)] = count
	}
	return stats, rows.Err()
}

// MarkInterrupted fails every session that is not terminal. It runs at daemon
// start, when no session can be active yet.
func (s *Store) MarkInterrupted(ctx context.Context, now time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	stamp := formatTime(now)
	res, err := s.execWithRetry(ctx,
		`UPDATE sessions SET state = ?, failure_cause = ?, ended_at = ?, updated_at = ?
		WHERE state NOT IN (?, ?)`,
		string(session.StateFailed), InterruptedCause, stamp, stamp,
		string(session.StateCompleted), string(session.StateFailed),
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted sessions: %w", err)
	}
	return res.RowsAffected()
}

// Prune deletes terminal sessions that started before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx,
		`DELETE FROM sessions WHERE started_at < ? AND state IN (?, ?)`,
		formatTime(cutoff), string(session.StateCompleted), string(session.StateFailed),
	)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return res.RowsAffected()
}
