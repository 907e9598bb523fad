// Package ledger records the history of reconcile runs.
// It backs trigger deduplication and the history command.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventRunStarted   EventType = "run_started"
	EventRunSucceeded EventType = "run_succeeded"
	EventRunFailed    EventType = "run_failed"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID             int64
	RunID          string
	EventType      EventType
	Timestamp      time.Time
	Target         string
	Kind           string
	Action         string
	Outcome        string // Empty for run_started
	Payload        map[string]any
	IdempotencyKey string
}

// Ledger provides append-only run logging with deduplication
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Append adds a new event to the ledger.
// run_succeeded rows with an idempotency key use INSERT OR IGNORE so a
// concurrent duplicate does not fail the run.
func (l *Ledger) Append(ctx context.Context, e Entry) error {
	var payloadJSON []byte
	if e.Payload != nil {
		var err error
		payloadJSON, err = json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}

	insertSQL := `INSERT INTO run_ledger (run_id, event_type, timestamp, target, kind, action, outcome, payload, idempotency_key) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if e.EventType == EventRunSucceeded && e.IdempotencyKey != "" {
		insertSQL = `INSERT OR IGNORE INTO run_ledger (run_id, event_type, timestamp, target, kind, action, outcome, payload, idempotency_key) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	}

	_, err := l.db.ExecContext(ctx, insertSQL,
		e.RunID, string(e.EventType), ts.UTC().Unix(), e.Target, e.Kind, e.Action, e.Outcome,
		string(payloadJSON), e.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("failed to append %s for %s: %w", e.EventType, e.Target, err)
	}
	return nil
}

// HasSucceeded checks if a run with the given idempotency key has succeeded
func (l *Ledger) HasSucceeded(ctx context.Context, idempotencyKey string) bool {
	if idempotencyKey == "" {
		return false // Empty key = no dedupe
	}

	var exists int
	err := l.db.QueryRowContext(ctx, `
		SELECT 1 FROM run_ledger
		WHERE idempotency_key = ? AND event_type = ?
		LIMIT 1
	`, idempotencyKey, string(EventRunSucceeded)).Scan(&exists)

	return err == nil && exists == 1
}

// Recent returns the latest entries across all targets, newest first
func (l *Ledger) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, run_id, event_type, timestamp, target, kind, action, outcome, payload, idempotency_key
		FROM run_ledger
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ByTarget returns the latest entries for one target, newest first
func (l *Ledger) ByTarget(ctx context.Context, target string, limit int) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, run_id, event_type, timestamp, target, kind, action, outcome, payload, idempotency_key
		FROM run_ledger
		WHERE target = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, target, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).UTC().Unix()
	result, err := l.db.ExecContext(ctx, `DELETE FROM run_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var kind, action, outcome, payloadStr, idempotencyKey sql.NullString
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.RunID, &entry.EventType, &timestamp, &entry.Target,
			&kind, &action, &outcome, &payloadStr, &idempotencyKey,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(timestamp, 0).UTC()
		entry.Kind = kind.String
		entry.Action = action.String
		entry.Outcome = outcome.String
		entry.IdempotencyKey = idempotencyKey.String

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
