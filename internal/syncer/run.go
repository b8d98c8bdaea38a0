package syncer

import (
	"context"
	"errors"
	"time"

	"sitesync/internal/logging"
)

// Trigger asks Run for a full drain. Requests made while one is pending
// collapse into it. Trigger never blocks.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Run drives drains until ctx is cancelled: once at startup if the store has
// work and the network looks reachable, on every online edge, on Trigger,
// and on a periodic timer for items whose backoff has elapsed. It returns
// after in-progress drains and background alerts finish.
func (e *Engine) Run(ctx context.Context) error {
	if e.monitor != nil {
		unsubscribe := e.monitor.Subscribe(func(online bool) {
			if online {
				e.logger.Info("network reachable; scheduling drain",
					logging.String(logging.FieldEventType, "online_drain_scheduled"),
				)
				e.Trigger()
			}
		})
		defer unsubscribe()
	}
	defer e.bg.Wait()

	if e.online() {
		count, err := e.store.Count(ctx)
		if err != nil {
			logging.WarnWithContext(e.logger, "startup queue count failed", "startup_count_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the queue database"),
				logging.String(logging.FieldImpact, "startup drain deferred to the retry timer"),
			)
		} else if count > 0 {
			e.logger.Info("pending items found at startup",
				logging.String(logging.FieldEventType, "startup_drain"),
				logging.Int("pending", count),
			)
			e.runDrain(ctx, drainAll)
		}
	}

	ticker := time.NewTicker(e.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.trigger:
			e.runDrain(ctx, drainAll)
		case <-ticker.C:
			if e.online() {
				e.runDrain(ctx, drainDue)
			}
		}
	}
}

func (e *Engine) online() bool {
	return e.monitor != nil && e.monitor.IsOnline()
}

func (e *Engine) runDrain(ctx context.Context, mode drainMode) {
	if _, err := e.drain(ctx, mode); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Warn("drain failed", logging.Error(err))
	}
}

// Draining reports whether a drain pass is running.
func (e *Engine) Draining() bool {
	return e.draining.Load()
}
