// Package scheduler turns connectivity transitions, startup state, and
// manual requests into drain cycles.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/BharathGovindula/medisync/internal/connectivity"
	"github.com/BharathGovindula/medisync/internal/errors"
	"github.com/BharathGovindula/medisync/internal/logging"
	syncpkg "github.com/BharathGovindula/medisync/internal/sync"
)

// DrainEngine runs one drain cycle.
type DrainEngine interface {
	Drain(ctx context.Context) (*syncpkg.DrainResult, error)
}

// Counter reports the number of pending events.
type Counter interface {
	Len(ctx context.Context) (int, error)
}

// Config holds scheduler configuration.
type Config struct {
	// RetryInterval re-triggers a drain periodically while events remain
	// queued. This is the whole retry policy: no backoff, just the next
	// trigger. Zero disables periodic retries, leaving only transition,
	// startup, and manual triggers.
	RetryInterval time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{RetryInterval: time.Minute}
}

// Scheduler owns the drain triggers. Concurrency control lives in the
// engine's single-flight guard; the scheduler fires triggers freely.
type Scheduler struct {
	engine  DrainEngine
	queue   Counter
	monitor *connectivity.Monitor

	retryInterval time.Duration

	mu        sync.Mutex
	isRunning bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New creates a Scheduler.
func New(engine DrainEngine, queue Counter, monitor *connectivity.Monitor, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{
		engine:        engine,
		queue:         queue,
		monitor:       monitor,
		retryInterval: config.RetryInterval,
		stopCh:        make(chan struct{}),
	}
}

// Start subscribes to connectivity transitions and begins triggering
// drains. The subscription's initial state delivery doubles as the
// startup trigger: online with a non-empty queue drains immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	states, cancel := s.monitor.Subscribe()

	s.wg.Add(1)
	go s.transitionLoop(ctx, states, cancel)

	if s.retryInterval > 0 {
		s.wg.Add(1)
		go s.retryLoop(ctx)
	}

	logging.Info("Sync scheduler started",
		map[string]interface{}{"retry_interval": s.retryInterval.String()})
}

// Stop stops the scheduler and waits for trigger goroutines to finish.
// An in-flight drain is not cancelled; on restart the durable queue is
// the sole source of truth for what remains.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	logging.Info("Sync scheduler stopped")
}

// SyncNow is the explicit manual trigger. Offline it is a no-op.
func (s *Scheduler) SyncNow(ctx context.Context) (*syncpkg.DrainResult, error) {
	if s.monitor.State() != connectivity.Online {
		logging.Debug("Manual sync skipped while offline")
		return nil, nil
	}
	return s.engine.Drain(ctx)
}

// transitionLoop drains on every delivered online state. The monitor has
// already deduplicated transitions.
func (s *Scheduler) transitionLoop(ctx context.Context, states <-chan connectivity.State, cancel func()) {
	defer s.wg.Done()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case state := <-states:
			if state != connectivity.Online {
				continue
			}
			s.drainIfPending(ctx, "online")
		}
	}
}

// retryLoop periodically re-triggers a drain while events remain queued.
func (s *Scheduler) retryLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.monitor.State() != connectivity.Online {
				continue
			}
			s.drainIfPending(ctx, "retry")
		}
	}
}

// drainIfPending runs a drain when the queue is non-empty. Coalescing of
// concurrent triggers happens inside the engine.
func (s *Scheduler) drainIfPending(ctx context.Context, trigger string) {
	n, err := s.queue.Len(ctx)
	if err != nil {
		logging.ErrorWithCode("Failed to read queue size",
			string(errors.CodeOf(err)), err, map[string]interface{}{"trigger": trigger})
		return
	}
	if n == 0 {
		return
	}

	result, err := s.engine.Drain(ctx)
	if err != nil {
		logging.ErrorWithCode("Drain cycle failed",
			string(errors.CodeOf(err)), err, map[string]interface{}{"trigger": trigger})
		return
	}
	if result == nil {
		// Coalesced into an in-flight cycle.
		return
	}
	logging.Info("Drain cycle finished", map[string]interface{}{
		"trigger":   trigger,
		"sent":      result.Sent,
		"dropped":   result.Dropped,
		"remaining": result.Remaining,
		"halted":    result.Halted,
	})
}
