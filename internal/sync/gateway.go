package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BharathGovindula/medisync/internal/connectivity"
	"github.com/BharathGovindula/medisync/internal/errors"
	"github.com/BharathGovindula/medisync/internal/logging"
	"github.com/BharathGovindula/medisync/internal/models"
)

// StateReader exposes the current connectivity state.
type StateReader interface {
	State() connectivity.State
}

// Action is a logical dose-action request from the user.
type Action struct {
	MedicationID string
	Status       models.ActionStatus
	Notes        string
}

// Outcome says where a submitted action ended up.
type Outcome string

const (
	// OutcomeDelivered means the server acknowledged the action.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeQueuedOffline means the action is durably queued locally and
	// will sync when connectivity returns.
	OutcomeQueuedOffline Outcome = "queued-offline"
)

// SubmitResult reports a successful submission.
type SubmitResult struct {
	Outcome Outcome
	Event   *models.QueuedEvent
	// Message is a user-presentable notice for the outcome.
	Message string
}

// Gateway is the single entry point through which a user action becomes
// either a direct remote call or a durable queue append: never both,
// never neither.
type Gateway struct {
	queue  Queue
	remote Appender
	states StateReader

	now func() time.Time
}

// NewGateway creates a Gateway.
func NewGateway(queue Queue, remote Appender, states StateReader) *Gateway {
	return &Gateway{
		queue:  queue,
		remote: remote,
		states: states,
		now:    time.Now,
	}
}

// Submit records one dose action.
//
// Online, the action goes straight to the server. A transport failure on
// that path is not an error to the caller: the action falls back to the
// durable queue and the result says queued-offline. Offline, the action
// is queued without touching the network.
//
// Only validation failures and storage failures propagate as errors; in
// the storage case the action has no durable record anywhere and the
// caller must treat it as lost.
func (g *Gateway) Submit(ctx context.Context, action Action) (*SubmitResult, error) {
	if action.MedicationID == "" {
		return nil, errors.New(errors.ErrInvalid, "medication id is required")
	}
	if !action.Status.Valid() {
		return nil, errors.New(errors.ErrInvalid, fmt.Sprintf("unknown action status %q", action.Status))
	}

	now := g.now().UTC()
	event := &models.QueuedEvent{
		ID:            uuid.New().String(),
		MedicationID:  action.MedicationID,
		Status:        action.Status,
		ScheduledTime: now,
		Notes:         action.Notes,
		CreatedAt:     now,
	}
	if action.Status == models.StatusTaken {
		t := now
		event.TakenTime = &t
	}

	if g.states.State() == connectivity.Online {
		err := g.remote.AppendLog(ctx, event.MedicationID, event.Payload())
		if err == nil {
			return &SubmitResult{
				Outcome: OutcomeDelivered,
				Event:   event,
				Message: fmt.Sprintf("Action '%s' logged!", action.Status),
			}, nil
		}
		if errors.Is(err, errors.ErrValidation) || errors.Is(err, errors.ErrInvalid) {
			return nil, err
		}
		// Transient failure on the direct path: queue instead. Auth
		// failures ride along; the credential provider may recover by
		// the time the queue drains.
		logging.Warn("Direct submit failed, queueing for later sync",
			map[string]interface{}{"medication_id": event.MedicationID, "error": err.Error()})
		return g.queueEvent(ctx, event, action.Status)
	}

	return g.queueEvent(ctx, event, action.Status)
}

// queueEvent appends the event durably and returns the queued-offline
// outcome. A storage failure here is a hard error.
func (g *Gateway) queueEvent(ctx context.Context, event *models.QueuedEvent, status models.ActionStatus) (*SubmitResult, error) {
	if err := g.queue.Append(ctx, event); err != nil {
		return nil, err
	}
	return &SubmitResult{
		Outcome: OutcomeQueuedOffline,
		Event:   event,
		Message: fmt.Sprintf("Action '%s' saved offline! Will sync when online.", status),
	}, nil
}
