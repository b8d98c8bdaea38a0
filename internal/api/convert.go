package api

import (
	"time"

	"sitesync/internal/queue"
	"sitesync/internal/syncer"
)

// FromQueueItem converts a queue record to its API representation.
func FromQueueItem(item queue.Item) QueueItem {
	size := item.Size
	if size == 0 && len(item.Payload) > 0 {
		size = int64(len(item.Payload))
	}
	state := item.State
	if state == "" {
		state = queue.StatePending
	}
	return QueueItem{
		ID:            item.ID,
		Destination:   item.Destination,
		Size:          size,
		State:         string(state),
		Attempts:      item.Attempts,
		LastError:     item.LastError,
		EnqueuedAt:    formatTime(item.EnqueuedAt),
		NextAttemptAt: formatTime(item.NextAttemptAt),
	}
}

// FromQueueItems converts a slice of queue records into API DTOs.
func FromQueueItems(items []queue.Item) []QueueItem {
	out := make([]QueueItem, 0, len(items))
	for _, item := range items {
		out = append(out, FromQueueItem(item))
	}
	return out
}

// FromDrainResult converts a drain summary.
func FromDrainResult(r syncer.DrainResult) DrainResult {
	return DrainResult{
		Skipped:      r.Skipped,
		NothingDue:   r.NothingDue,
		Attempted:    r.Attempted,
		Delivered:    r.Delivered,
		Failed:       r.Failed,
		DeadLettered: r.DeadLettered,
		InFlight:     r.InFlight,
		Remaining:    r.Remaining,
	}
}

// FromSyncStatus converts the engine status view.
func FromSyncStatus(s syncer.Status) SyncStatus {
	return SyncStatus{
		Online:           s.Online,
		State:            string(s.State),
		Pending:          s.Pending,
		Dead:             s.Dead,
		OldestEnqueuedAt: formatTime(s.OldestEnqueuedAt),
		LastSyncAt:       formatTime(s.LastSyncAt),
		LastError:        s.LastError,
		LastDrain:        FromDrainResult(s.LastDrain),
	}
}

// FromHealth converts database diagnostics.
func FromHealth(h queue.Health) QueueHealth {
	return QueueHealth{
		DBPath:           h.DBPath,
		DatabaseExists:   h.DatabaseExists,
		DatabaseReadable: h.DatabaseReadable,
		SchemaVersion:    h.SchemaVersion,
		IntegrityCheck:   h.IntegrityCheck,
		TotalItems:       h.TotalItems,
		FreeBytes:        h.FreeBytes,
		FreeBytesKnown:   h.FreeBytesKnown,
		Error:            h.Error,
	}
}

// ParseTime parses a timestamp produced by this package. Empty input yields
// the zero time.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
