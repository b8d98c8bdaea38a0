package queue

import "time"

// State distinguishes records still eligible for delivery from dead letters.
type State string

const (
	// StatePending marks a record the sync engine will keep trying to deliver.
	StatePending State = "pending"
	// StateDead marks a record the remote store rejected permanently or that
	// exhausted its attempts. Dead records stay until requeued.
	StateDead State = "dead"
)

// Item is one undelivered capture.
type Item struct {
	ID          string
	Payload     []byte
	Destination string
	EnqueuedAt  time.Time

	// Size is len(Payload); List fills it without loading the payload.
	Size int64

	State         State
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
}

// IsDead reports whether the item has been dead-lettered.
func (i Item) IsDead() bool {
	return i.State == StateDead
}

// Due reports whether the item's backoff has elapsed at now.
func (i Item) Due(now time.Time) bool {
	return i.NextAttemptAt.IsZero() || !now.Before(i.NextAttemptAt)
}

// Failure is the bookkeeping recorded after an unsuccessful delivery attempt.
type Failure struct {
	Attempts      int
	Err           string
	NextAttemptAt time.Time
	Dead          bool
}

// Stats summarizes queue contents.
type Stats struct {
	Pending int
	Dead    int
	Total   int
	// OldestEnqueuedAt is zero when the queue is empty.
	OldestEnqueuedAt time.Time
}

// Health reports diagnostics about the queue database and its volume.
type Health struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	IntegrityCheck   bool
	TotalItems       int
	FreeBytes        uint64
	FreeBytesKnown   bool
	Error            string
}
