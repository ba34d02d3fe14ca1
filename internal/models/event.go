// Package models provides data model definitions for the medisync client.
package models

import "time"

// ActionStatus is the outcome a user records for a scheduled dose.
type ActionStatus string

const (
	StatusTaken   ActionStatus = "taken"
	StatusMissed  ActionStatus = "missed"
	StatusSkipped ActionStatus = "skipped"
)

// Valid reports whether s is one of the known action statuses.
func (s ActionStatus) Valid() bool {
	switch s {
	case StatusTaken, StatusMissed, StatusSkipped:
		return true
	}
	return false
}

// QueuedEvent represents one user-recorded dose action not yet
// acknowledged by the server. Events are immutable once appended;
// replay removes them on confirmed delivery, never rewrites them.
type QueuedEvent struct {
	// Seq is the insertion-order key, assigned by storage on append.
	Seq          int64        `db:"seq" json:"-"`
	ID           string       `db:"id" json:"id"`
	MedicationID string       `db:"medication_id" json:"medicationId"`
	Status       ActionStatus `db:"status" json:"status"`
	ScheduledTime time.Time   `db:"scheduled_time" json:"scheduledTime"`
	// TakenTime is set only when Status is "taken".
	TakenTime *time.Time `db:"taken_time" json:"takenTime"`
	Notes     string     `db:"notes" json:"notes"`
	// CreatedAt is the client-side capture time. Display and debugging
	// only; the server never uses it for ordering.
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// TableName returns the table name for QueuedEvent.
func (QueuedEvent) TableName() string {
	return "pending_events"
}

// LogPayload is the wire body for POST /api/medications/{id}/log.
type LogPayload struct {
	MedicationID  string       `json:"medicationId"`
	Status        ActionStatus `json:"status"`
	ScheduledTime time.Time    `json:"scheduledTime"`
	TakenTime     *time.Time   `json:"takenTime"`
	Notes         string       `json:"notes"`
}

// Payload returns the wire body for the event.
func (e *QueuedEvent) Payload() LogPayload {
	return LogPayload{
		MedicationID:  e.MedicationID,
		Status:        e.Status,
		ScheduledTime: e.ScheduledTime,
		TakenTime:     e.TakenTime,
		Notes:         e.Notes,
	}
}
