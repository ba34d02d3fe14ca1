// Package sync provides the replay engine and the event capture gateway
// sitting between user actions and the remote medication log API.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/BharathGovindula/medisync/internal/errors"
	"github.com/BharathGovindula/medisync/internal/logging"
	"github.com/BharathGovindula/medisync/internal/models"
)

// Queue is the durable local queue of pending events.
type Queue interface {
	Append(ctx context.Context, event *models.QueuedEvent) error
	ReadAll(ctx context.Context) ([]models.QueuedEvent, error)
	Delete(ctx context.Context, id string) error
	Len(ctx context.Context) (int, error)
}

// Appender is the remote log-append API.
type Appender interface {
	AppendLog(ctx context.Context, medicationID string, payload models.LogPayload) error
}

// Engine drains the durable queue against the remote API.
//
// Delivery is at-least-once: a crash between server acknowledgment and
// local removal re-sends the event on the next cycle. Server-side
// idempotency is the collaborator's responsibility.
type Engine struct {
	queue  Queue
	remote Appender

	mu       sync.Mutex
	draining bool
}

// NewEngine creates an Engine over the queue and remote client.
func NewEngine(queue Queue, remote Appender) *Engine {
	return &Engine{queue: queue, remote: remote}
}

// DrainResult reports one drain cycle. Counts are relative to the
// snapshot taken at the start of the cycle; events appended mid-cycle
// belong to the next one.
type DrainResult struct {
	Sent      int
	Dropped   int
	Remaining int
	Halted    bool
	Error     string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// Drain delivers the current queue snapshot in insertion order.
//
// Per-item outcome:
//   - success: the event is deleted from durable storage individually,
//     so a later failure never causes an earlier success to be re-sent
//   - VALIDATION_ERROR: the server permanently rejected the event; it is
//     logged, dropped, and the cycle continues, so one bad entry cannot
//     block the queue forever
//   - any other failure: the cycle halts; the failed event and the
//     unprocessed tail stay queued in original order for the next trigger
//
// Drains are single-flight: a call while another drain is in flight is
// a coalesced no-op returning (nil, nil). The in-flight cycle does not
// pick up mid-cycle appends; the next trigger does.
func (e *Engine) Drain(ctx context.Context) (*DrainResult, error) {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		logging.Debug("Drain already in progress, coalescing trigger")
		return nil, nil
	}
	e.draining = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.draining = false
		e.mu.Unlock()
	}()

	// A cancelled trigger is a halted cycle, not a storage failure: the
	// snapshot query would otherwise surface the cancellation wrapped in
	// a storage error.
	if err := ctx.Err(); err != nil {
		now := time.Now()
		return &DrainResult{Halted: true, Error: err.Error(), StartTime: now, EndTime: now}, nil
	}

	snapshot, err := e.queue.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	result := &DrainResult{StartTime: time.Now()}
	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		result.Remaining = len(snapshot) - result.Sent - result.Dropped
	}()

	for i := range snapshot {
		ev := &snapshot[i]

		if ctx.Err() != nil {
			result.Halted = true
			result.Error = ctx.Err().Error()
			break
		}

		sendErr := e.remote.AppendLog(ctx, ev.MedicationID, ev.Payload())
		if sendErr == nil {
			if delErr := e.queue.Delete(ctx, ev.ID); delErr != nil {
				// Delivered but still queued: it will be re-sent next cycle.
				// Storage trouble means the rest of the cycle can't make
				// durable progress either, so stop here.
				logging.ErrorWithCode("Failed to remove delivered event",
					string(errors.CodeOf(delErr)), delErr,
					map[string]interface{}{"event_id": ev.ID})
				result.Halted = true
				result.Error = delErr.Error()
				break
			}
			result.Sent++
			continue
		}

		if errors.Is(sendErr, errors.ErrValidation) {
			logging.ErrorWithCode("Dropping permanently rejected event",
				string(errors.ErrValidation), sendErr,
				map[string]interface{}{"event_id": ev.ID, "medication_id": ev.MedicationID})
			if delErr := e.queue.Delete(ctx, ev.ID); delErr != nil {
				result.Halted = true
				result.Error = delErr.Error()
				break
			}
			result.Dropped++
			continue
		}

		// Transient failure: leave this event and the tail for the next
		// triggered drain. No backoff; event volume is user-paced.
		logging.Warn("Drain halted on transient failure",
			map[string]interface{}{"event_id": ev.ID, "error": sendErr.Error()})
		result.Halted = true
		result.Error = sendErr.Error()
		break
	}

	if result.Sent > 0 && !result.Halted {
		logging.Info("Offline logs synced",
			map[string]interface{}{"sent": result.Sent, "dropped": result.Dropped})
	}
	return result, nil
}
