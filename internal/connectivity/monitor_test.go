// Package connectivity provides unit tests for the connectivity monitor.
package connectivity

import (
	"context"
	"testing"
	"time"
)

// recvState waits briefly for one notification.
func recvState(t *testing.T, ch <-chan State) State {
	t.Helper()
	select {
	case state := <-ch:
		return state
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for state notification")
		return ""
	}
}

// expectSilent asserts that no notification is pending.
func expectSilent(t *testing.T, ch <-chan State) {
	t.Helper()
	select {
	case state := <-ch:
		t.Fatalf("Unexpected notification: %s", state)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestSubscribeDeliversCurrentState tests the initial evaluation on
// subscription.
func TestSubscribeDeliversCurrentState(t *testing.T) {
	monitor := NewMonitor(Offline)
	ch, cancel := monitor.Subscribe()
	defer cancel()

	if got := recvState(t, ch); got != Offline {
		t.Errorf("Expected initial offline notification, got %s", got)
	}
	expectSilent(t, ch)
}

// TestTransitionNotifiesSubscribers tests edge-triggered delivery.
func TestTransitionNotifiesSubscribers(t *testing.T) {
	monitor := NewMonitor(Offline)
	ch, cancel := monitor.Subscribe()
	defer cancel()
	recvState(t, ch) // initial

	monitor.Set(Online)
	if got := recvState(t, ch); got != Online {
		t.Errorf("Expected online notification, got %s", got)
	}
	if monitor.State() != Online {
		t.Errorf("Expected current state online, got %s", monitor.State())
	}

	monitor.Set(Offline)
	if got := recvState(t, ch); got != Offline {
		t.Errorf("Expected offline notification, got %s", got)
	}
}

// TestDuplicateSignalsSwallowed tests that repeated observations of the
// same state produce no extra notifications.
func TestDuplicateSignalsSwallowed(t *testing.T) {
	monitor := NewMonitor(Offline)
	ch, cancel := monitor.Subscribe()
	defer cancel()
	recvState(t, ch) // initial

	monitor.Set(Online)
	monitor.Set(Online)
	monitor.Set(Online)

	if got := recvState(t, ch); got != Online {
		t.Errorf("Expected one online notification, got %s", got)
	}
	expectSilent(t, ch)
}

// TestSlowSubscriberSeesLatestState tests that a subscriber whose
// buffer overflows still ends up with the current state: intermediate
// edges may be lost, the latest never is.
func TestSlowSubscriberSeesLatestState(t *testing.T) {
	monitor := NewMonitor(Offline)
	ch, cancel := monitor.Subscribe()
	defer cancel()

	// Transition far past the buffer capacity without reading.
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			monitor.Set(Online)
		} else {
			monitor.Set(Offline)
		}
	}

	var last State
	for {
		select {
		case state := <-ch:
			last = state
		default:
			if last != monitor.State() {
				t.Errorf("Expected last notification %s to match current state %s", last, monitor.State())
			}
			return
		}
	}
}

// TestCancelStopsNotifications tests subscriber unregistration.
func TestCancelStopsNotifications(t *testing.T) {
	monitor := NewMonitor(Offline)
	ch, cancel := monitor.Subscribe()
	recvState(t, ch) // initial
	cancel()

	monitor.Set(Online)
	expectSilent(t, ch)
}

// fakeSource replays a fixed sequence of observations.
type fakeSource struct {
	sequence []State
}

func (f *fakeSource) States(ctx context.Context) <-chan State {
	ch := make(chan State)
	go func() {
		defer close(ch)
		for _, state := range f.sequence {
			select {
			case ch <- state:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// TestRunFeedsSource tests that source observations flow through the
// monitor with deduplication applied.
func TestRunFeedsSource(t *testing.T) {
	monitor := NewMonitor(Offline)
	ch, cancel := monitor.Subscribe()
	defer cancel()
	recvState(t, ch) // initial

	done := make(chan struct{})
	go func() {
		defer close(done)
		monitor.Run(context.Background(), &fakeSource{
			sequence: []State{Offline, Online, Online, Offline},
		})
	}()

	if got := recvState(t, ch); got != Online {
		t.Errorf("Expected online, got %s", got)
	}
	if got := recvState(t, ch); got != Offline {
		t.Errorf("Expected offline, got %s", got)
	}
	expectSilent(t, ch)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for Run to return on source close")
	}
}
