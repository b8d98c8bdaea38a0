package syncer

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"sitesync/internal/events"
	"sitesync/internal/logging"
	"sitesync/internal/queue"
)

// DrainResult summarizes one drain pass.
type DrainResult struct {
	// Skipped is true when another drain was already running.
	Skipped bool
	// NothingDue is true when a timer drain found no item past its backoff.
	NothingDue bool

	Attempted    int
	Delivered    int
	Failed       int
	DeadLettered int
	// InFlight counts snapshot items excluded because an attempt held them.
	InFlight  int
	Remaining int
}

type drainMode int

const (
	// drainAll attempts every live item regardless of backoff.
	drainAll drainMode = iota
	// drainDue attempts only items whose backoff has elapsed.
	drainDue
)

// Drain attempts delivery of every pending item. A call that overlaps a
// running drain returns immediately with Skipped set. Delivery failures are
// recorded on the items and reflected in the state, never returned; the
// returned error is a store failure or the context's error.
func (e *Engine) Drain(ctx context.Context) (DrainResult, error) {
	return e.drain(ctx, drainAll)
}

// RetrySync is the manual retry: a full drain that ignores both backoff and
// the monitor's opinion of reachability.
func (e *Engine) RetrySync(ctx context.Context) (DrainResult, error) {
	return e.drain(ctx, drainAll)
}

func (e *Engine) drain(ctx context.Context, mode drainMode) (DrainResult, error) {
	if !e.draining.CompareAndSwap(false, true) {
		e.logger.Debug("drain already running; skipping")
		return DrainResult{Skipped: true}, nil
	}
	defer e.draining.Store(false)

	if mode == drainAll {
		e.beginSyncing()
	}

	items, err := e.store.GetAll(ctx)
	if err != nil {
		return e.failDrain(DrainResult{}, err)
	}

	var result DrainResult
	now := e.now()
	eligible := make([]queue.Item, 0, len(items))
	for _, item := range items {
		if item.IsDead() {
			continue
		}
		if mode == drainDue && !item.Due(now) {
			continue
		}
		eligible = append(eligible, item)
	}

	if mode == drainDue {
		if len(eligible) == 0 {
			result.NothingDue = true
			return result, nil
		}
		e.beginSyncing()
	}

	var (
		mu       sync.Mutex
		storeErr error
	)
	record := func(o outcome, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch o {
		case outcomeDelivered:
			result.Delivered++
		case outcomeFailed:
			result.Failed++
		case outcomeDead:
			result.Failed++
			result.DeadLettered++
		}
		if err != nil && storeErr == nil {
			storeErr = err
		}
	}

	var g errgroup.Group
	g.SetLimit(e.parallelism)
	for _, item := range eligible {
		if ctx.Err() != nil {
			break
		}
		if !e.inFlight.acquire(item.ID) {
			result.InFlight++
			continue
		}
		result.Attempted++
		g.Go(func() error {
			defer e.inFlight.release(item.ID)
			record(e.deliver(ctx, item))
			return nil
		})
	}
	_ = g.Wait()

	countCtx, cancel := detached(ctx)
	defer cancel()
	remaining, err := e.store.Count(countCtx)
	if err != nil {
		return e.failDrain(result, err)
	}
	result.Remaining = remaining

	if storeErr != nil {
		return e.failDrain(result, storeErr)
	}

	if remaining == 0 {
		e.settle(StateSynced, 0, "", result)
	} else {
		e.settle(StateError, remaining, e.drainErrorText(result, remaining), result)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (e *Engine) drainErrorText(result DrainResult, remaining int) string {
	switch {
	case result.Failed > 0:
		return fmt.Sprintf("%d of %d attempted uploads failed", result.Failed, result.Attempted)
	case result.Attempted == 0:
		return fmt.Sprintf("%d item(s) waiting; none attempted", remaining)
	default:
		return fmt.Sprintf("%d item(s) still queued", remaining)
	}
}

func (e *Engine) failDrain(result DrainResult, err error) (DrainResult, error) {
	logging.ErrorWithContext(e.logger, "drain aborted by store failure", "drain_store_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the queue database and free space"),
		logging.String(logging.FieldImpact, "queued items stay pending until the next drain"),
	)
	remaining := result.Remaining
	e.settle(StateError, remaining, err.Error(), result)
	return result, err
}

type outcome int

const (
	outcomeCanceled outcome = iota
	outcomeDelivered
	outcomeFailed
	outcomeDead
)

// deliver makes one attempt for item. The item is deleted only after the
// uploader reports success; a cancelled attempt leaves the record untouched.
func (e *Engine) deliver(ctx context.Context, item queue.Item) (outcome, error) {
	logger := e.logger.With(
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldDestination, item.Destination),
	)

	delivered, uploadErr := e.upload(ctx, item)
	if delivered {
		delCtx, cancel := detached(ctx)
		defer cancel()
		if err := e.store.Delete(delCtx, item.ID); err != nil {
			logging.ErrorWithContext(logger, "delivered item could not be removed", "delete_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the queue database"),
				logging.String(logging.FieldImpact, "item may be uploaded again"),
			)
			return outcomeDelivered, err
		}
		logger.Info("item delivered",
			logging.String(logging.FieldEventType, "item_delivered"),
			logging.Int("attempt", item.Attempts+1),
		)
		return outcomeDelivered, nil
	}

	if ctx.Err() != nil {
		logger.Debug("attempt cancelled", logging.Error(uploadErr))
		return outcomeCanceled, nil
	}

	failure := e.failureFor(item.Attempts+1, uploadErr)
	recCtx, cancel := detached(ctx)
	defer cancel()
	if err := e.store.RecordFailure(recCtx, item.ID, failure); err != nil {
		return outcomeFailed, err
	}

	if failure.Dead {
		e.announceDeadLetter(item, failure)
		return outcomeDead, nil
	}
	logging.WarnWithContext(logger, "upload failed; will retry", "upload_failed",
		logging.Error(uploadErr),
		logging.Int("attempt", failure.Attempts),
		logging.Time("next_attempt_at", failure.NextAttemptAt),
		logging.String(logging.FieldErrorHint, retryHint(uploadErr)),
		logging.String(logging.FieldImpact, "item stays queued"),
	)
	return outcomeFailed, nil
}

// upload runs one bounded uploader call and publishes a delivery event on
// success.
func (e *Engine) upload(ctx context.Context, item queue.Item) (bool, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	defer cancel()

	locator, err := e.uploader.Upload(attemptCtx, item.Payload, item.Destination)
	if err != nil {
		return false, err
	}

	delivery := events.Delivery{
		ID:          item.ID,
		Destination: item.Destination,
		Locator:     locator,
		Size:        int64(len(item.Payload)),
		EnqueuedAt:  item.EnqueuedAt,
		DeliveredAt: e.now(),
	}
	e.background(func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := e.events.PublishDelivered(pubCtx, delivery); err != nil {
			logging.WarnWithContext(e.logger, "delivery event not published", "event_publish_failed",
				logging.String(logging.FieldItemID, delivery.ID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check events.brokers"),
				logging.String(logging.FieldImpact, "downstream consumers miss this delivery"),
			)
		}
	})
	return true, nil
}
