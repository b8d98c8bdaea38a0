package syncer

import (
	"context"
	"strings"

	"sitesync/internal/logging"
	"sitesync/internal/queue"
)

// Submit hands a capture to the queue and returns its id. When the monitor
// reports online it makes one upload attempt without touching the store;
// otherwise, or if that attempt fails, the capture is persisted before
// Submit returns. A returned error means the capture was neither delivered
// nor stored.
func (e *Engine) Submit(ctx context.Context, payload []byte, destination string) (string, error) {
	if strings.TrimSpace(destination) == "" {
		return "", ErrEmptyDestination
	}

	item := queue.Item{
		ID:          e.newID(),
		Payload:     payload,
		Destination: destination,
		EnqueuedAt:  e.nextEnqueuedAt(),
		Size:        int64(len(payload)),
		State:       queue.StatePending,
	}
	logger := e.logger.With(
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldDestination, destination),
	)

	var failure *queue.Failure
	if e.monitor != nil && e.monitor.IsOnline() && e.inFlight.acquire(item.ID) {
		delivered, err := e.upload(ctx, item)
		e.inFlight.release(item.ID)
		if delivered {
			logger.Info("capture delivered immediately",
				logging.String(logging.FieldEventType, "submit_delivered"),
				logging.Int64("bytes", item.Size),
			)
			return item.ID, nil
		}
		// A caller cancelling mid-upload says nothing about the remote store.
		if ctx.Err() == nil {
			f := e.failureFor(1, err)
			failure = &f
			item.Attempts = f.Attempts
			item.LastError = f.Err
			item.NextAttemptAt = f.NextAttemptAt
			if f.Dead {
				item.State = queue.StateDead
			}
		}
		logger.Info("immediate upload failed; queueing",
			logging.String(logging.FieldEventType, "submit_upload_failed"),
			logging.Error(err),
		)
	}

	putCtx, cancel := detached(ctx)
	defer cancel()
	if err := e.store.Put(putCtx, item); err != nil {
		logging.ErrorWithContext(logger, "failed to persist capture", "submit_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions on the data directory"),
			logging.String(logging.FieldImpact, "capture was not saved"),
		)
		return "", err
	}

	logger.Info("capture queued",
		logging.String(logging.FieldEventType, "submit_queued"),
		logging.Int64("bytes", item.Size),
	)
	if failure != nil && failure.Dead {
		e.announceDeadLetter(item, *failure)
	}
	return item.ID, nil
}
