package syncer

import (
	"context"
	"time"

	"sitesync/internal/logging"
)

// State is the engine's view of the last drain.
type State string

const (
	// StateIdle is the initial state; no drain has run yet.
	StateIdle State = "idle"
	// StateSyncing means a drain is in progress.
	StateSyncing State = "syncing"
	// StateSynced means the last drain left the store empty.
	StateSynced State = "synced"
	// StateError means the last drain left work behind.
	StateError State = "error"
)

// Status is the read-only view rendered by the CLI and API.
type Status struct {
	Online           bool
	State            State
	Pending          int
	Dead             int
	OldestEnqueuedAt time.Time
	LastSyncAt       time.Time
	LastError        string
	LastDrain        DrainResult
}

// Status reports reachability, the state machine, and counts recomputed from
// the store. Pending counts every undelivered record, dead letters included.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	stats, err := e.store.Stats(ctx)
	if err != nil {
		return Status{}, err
	}

	e.mu.Lock()
	status := Status{
		State:      e.state,
		LastSyncAt: e.lastSyncAt,
		LastError:  e.lastErr,
		LastDrain:  e.lastDrain,
	}
	e.mu.Unlock()

	status.Online = e.monitor != nil && e.monitor.IsOnline()
	status.Pending = stats.Total
	status.Dead = stats.Dead
	status.OldestEnqueuedAt = stats.OldestEnqueuedAt
	return status, nil
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) beginSyncing() {
	e.mu.Lock()
	e.state = StateSyncing
	e.mu.Unlock()
}

// settle records the outcome of a drain and raises alerts on transitions
// into and out of the error state.
func (e *Engine) settle(state State, remaining int, lastErr string, result DrainResult) {
	e.mu.Lock()
	previous := e.settled
	e.state = state
	e.settled = state
	e.lastSyncAt = e.now()
	e.lastErr = lastErr
	e.lastDrain = result
	e.mu.Unlock()

	e.logger.Info("drain finished",
		logging.String(logging.FieldEventType, "drain_finished"),
		logging.String("state", string(state)),
		logging.Int("attempted", result.Attempted),
		logging.Int("delivered", result.Delivered),
		logging.Int("failed", result.Failed),
		logging.Int("dead_lettered", result.DeadLettered),
		logging.Int("remaining", remaining),
	)

	switch {
	case state == StateError && previous != StateError:
		e.background(func() {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			if err := e.notifier.NotifySyncFailed(ctx, remaining, lastErr); err != nil {
				e.logger.Debug("sync failed notification not sent", logging.Error(err))
			}
		})
	case state == StateSynced && previous == StateError:
		e.background(func() {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			if err := e.notifier.NotifySyncRecovered(ctx); err != nil {
				e.logger.Debug("sync recovered notification not sent", logging.Error(err))
			}
		})
	}
}
