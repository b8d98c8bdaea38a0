package syncer

import (
	"context"
	"errors"
	"time"

	"sitesync/internal/logging"
	"sitesync/internal/queue"
	"sitesync/internal/uploader"
)

// backoff returns the delay before attempt number attempts+1, doubling from
// the base and capped at the maximum.
func (e *Engine) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := e.backoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= e.backoffMax || delay <= 0 {
			return e.backoffMax
		}
	}
	if delay > e.backoffMax {
		return e.backoffMax
	}
	return delay
}

// failureFor builds the bookkeeping for an item's attempts-th failed attempt.
func (e *Engine) failureFor(attempts int, err error) queue.Failure {
	failure := queue.Failure{
		Attempts: attempts,
		Err:      errorText(err),
	}
	switch {
	case uploader.IsPermanent(err):
		failure.Dead = true
	case e.maxAttempts > 0 && attempts >= e.maxAttempts:
		failure.Dead = true
	default:
		failure.NextAttemptAt = e.now().Add(e.backoff(attempts))
	}
	return failure
}

// retryHint tells the operator what to look at after a retryable failure.
func retryHint(err error) string {
	if uploader.IsAuthFailure(err) {
		return "the remote store rejected the credentials; update the uploader token in the config and restart"
	}
	return "check connectivity to the remote store"
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "upload timed out: " + err.Error()
	}
	return err.Error()
}

func (e *Engine) announceDeadLetter(item queue.Item, failure queue.Failure) {
	logging.WarnWithContext(e.logger, "item dead-lettered", "item_dead_lettered",
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldDestination, item.Destination),
		logging.Int("attempts", failure.Attempts),
		logging.String("reason", failure.Err),
		logging.String(logging.FieldErrorHint, "fix the destination or remote permissions, then run sitesync queue requeue"),
		logging.String(logging.FieldImpact, "item will not be retried until requeued"),
	)
	e.background(func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := e.notifier.NotifyDeadLettered(ctx, item.ID, item.Destination, failure.Err); err != nil {
			e.logger.Debug("dead letter notification not sent", logging.Error(err))
		}
	})
}
