// Package connectivity tracks the client's online/offline state.
//
// State changes come from a platform-level Source, never from failed
// request heuristics: the replay path has no feedback edge into the
// monitor. Subscribers get edge-triggered notifications; duplicate
// signals for the same state are swallowed.
package connectivity

import (
	"context"
	"sync"

	"github.com/BharathGovindula/medisync/internal/logging"
)

// State is the two-valued connectivity state.
type State string

const (
	Online  State = "online"
	Offline State = "offline"
)

// Source produces connectivity observations from a platform signal.
type Source interface {
	// States emits observed states, starting with the current one, until
	// ctx is done. Implementations may emit duplicates; the Monitor
	// deduplicates.
	States(ctx context.Context) <-chan State
}

// Monitor owns the current ConnectivityState and notifies subscribers
// on transitions.
type Monitor struct {
	mu     sync.Mutex
	state  State
	subs   map[int]chan State
	nextID int
}

// NewMonitor creates a Monitor with the given initial state.
func NewMonitor(initial State) *Monitor {
	return &Monitor{
		state: initial,
		subs:  make(map[int]chan State),
	}
}

// State returns the current connectivity state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Set records an observed state. Consecutive identical observations are
// deduplicated: only an actual transition reaches subscribers, so two
// "online" signals in a row cannot trigger two drains.
func (m *Monitor) Set(state State) {
	m.mu.Lock()
	if m.state == state {
		m.mu.Unlock()
		return
	}
	m.state = state
	subs := make([]chan State, 0, len(m.subs))
	for _, ch := range m.subs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	logging.Info("Connectivity state changed", map[string]interface{}{"state": string(state)})
	for _, ch := range subs {
		select {
		case ch <- state:
		default:
			// Subscriber is not keeping up: drop its oldest pending
			// notification and coalesce to the latest state, so the current
			// state is never lost even when intermediate edges are.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- state:
			default:
			}
			logging.Warn("Coalesced connectivity notifications for slow subscriber")
		}
	}
}

// Subscribe registers a subscriber. The current state is delivered
// immediately, then one notification per transition. A subscriber that
// stops reading loses intermediate edges but always finds the latest
// state in its channel. The returned cancel function unregisters the
// subscriber.
func (m *Monitor) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 8)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	current := m.state
	m.mu.Unlock()

	// Initial evaluation: the subscriber sees the state as of subscription.
	ch <- current

	cancel := func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
	return ch, cancel
}

// Run feeds observations from the source into the monitor until ctx is
// done.
func (m *Monitor) Run(ctx context.Context, source Source) {
	states := source.States(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			m.Set(state)
		}
	}
}
