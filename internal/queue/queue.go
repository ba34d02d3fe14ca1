// Package queue provides the durable local queue of pending dose events.
//
// The queue is an append-only, insertion-ordered store backed by SQLite,
// so captured events survive process restarts. Appends interleave safely
// with a drain cycle: an event appended mid-drain either lands in the
// current snapshot or is picked up by the next cycle, never lost.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BharathGovindula/medisync/internal/errors"
	"github.com/BharathGovindula/medisync/internal/logging"
	"github.com/BharathGovindula/medisync/internal/models"
)

// Store provides append, snapshot-read, and delete-by-identity access
// to the pending_events table.
type Store struct {
	db *sql.DB

	// Prepared statement cache for the hot append/delete path.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewStore creates a Store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// prepareStmt gets or creates a prepared statement from the cache.
func (s *Store) prepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}
	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	actual, loaded := s.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// Close closes all cached prepared statements.
func (s *Store) Close() error {
	var firstErr error
	s.stmtCache.Range(func(key, value interface{}) bool {
		if err := value.(*sql.Stmt).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// Append adds an event to the end of the queue. The event's Seq is
// assigned by storage; ID and CreatedAt are filled in when empty.
// A failure to persist is a storage error surfaced to the caller,
// never swallowed: at that point the action has no durable record.
func (s *Store) Append(ctx context.Context, event *models.QueuedEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	stmt, err := s.prepareStmt(`
	INSERT INTO pending_events (id, medication_id, status, scheduled_time, taken_time, notes, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(errors.ErrStorage, "failed to append event", err)
	}

	var takenTime interface{}
	if event.TakenTime != nil {
		takenTime = event.TakenTime.UnixMilli()
	}
	res, err := stmt.ExecContext(ctx,
		event.ID, event.MedicationID, string(event.Status),
		event.ScheduledTime.UnixMilli(), takenTime, event.Notes,
		event.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return errors.Wrap(errors.ErrStorage, "failed to append event", err)
	}
	if seq, err := res.LastInsertId(); err == nil {
		event.Seq = seq
	}

	logging.Debug("Appended event to offline queue",
		map[string]interface{}{"event_id": event.ID, "medication_id": event.MedicationID, "status": string(event.Status)})
	return nil
}

// ReadAll returns the full ordered snapshot of pending events without
// removing them. The replay engine reads this once per drain cycle.
func (s *Store) ReadAll(ctx context.Context) ([]models.QueuedEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT seq, id, medication_id, status, scheduled_time, taken_time, notes, created_at
	FROM pending_events ORDER BY seq`)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStorage, "failed to read queue", err)
	}
	defer rows.Close()

	var events []models.QueuedEvent
	for rows.Next() {
		var (
			ev            models.QueuedEvent
			status        string
			scheduledTime int64
			takenTime     sql.NullInt64
			createdAt     int64
		)
		if err := rows.Scan(&ev.Seq, &ev.ID, &ev.MedicationID, &status,
			&scheduledTime, &takenTime, &ev.Notes, &createdAt); err != nil {
			return nil, errors.Wrap(errors.ErrStorage, "failed to scan event", err)
		}
		ev.Status = models.ActionStatus(status)
		ev.ScheduledTime = time.UnixMilli(scheduledTime).UTC()
		if takenTime.Valid {
			t := time.UnixMilli(takenTime.Int64).UTC()
			ev.TakenTime = &t
		}
		ev.CreatedAt = time.UnixMilli(createdAt).UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrStorage, "failed to read queue", err)
	}
	return events, nil
}

// Delete removes one event by identity. Identity-based deletes are what
// keep a drain cycle safe against appends landing concurrently: positions
// shift, IDs don't.
func (s *Store) Delete(ctx context.Context, id string) error {
	stmt, err := s.prepareStmt("DELETE FROM pending_events WHERE id = ?")
	if err != nil {
		return errors.Wrap(errors.ErrStorage, "failed to delete event", err)
	}
	res, err := stmt.ExecContext(ctx, id)
	if err != nil {
		return errors.Wrap(errors.ErrStorage, "failed to delete event", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.New(errors.ErrNotFound, fmt.Sprintf("event %s not found", id))
	}
	return nil
}

// Clear atomically empties the queue. The replay engine prefers per-item
// deletes; Clear exists for operator tooling.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM pending_events"); err != nil {
		return errors.Wrap(errors.ErrStorage, "failed to clear queue", err)
	}
	logging.Info("Offline queue cleared")
	return nil
}

// Len returns the number of pending events.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_events").Scan(&n); err != nil {
		return 0, errors.Wrap(errors.ErrStorage, "failed to count queue", err)
	}
	return n, nil
}
