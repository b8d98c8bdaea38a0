package queue

import (
	"database/sql"
	"errors"
	"time"
)

const itemColumns = "id, destination, payload, size, enqueued_at, state, attempts, last_error, next_attempt_at"

const metadataColumns = "id, destination, size, enqueued_at, state, attempts, last_error, next_attempt_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(scanner rowScanner, withPayload bool) (Item, error) {
	var (
		item       Item
		payload    []byte
		enqueued   int64
		state      string
		lastError  sql.NullString
		nextAttemp sql.NullInt64
	)

	dest := []any{&item.ID, &item.Destination}
	if withPayload {
		dest = append(dest, &payload)
	}
	dest = append(dest, &item.Size, &enqueued, &state, &item.Attempts, &lastError, &nextAttemp)
	if err := scanner.Scan(dest...); err != nil {
		return Item{}, err
	}

	if withPayload {
		if payload == nil {
			payload = []byte{}
		}
		item.Payload = payload
	}
	item.EnqueuedAt = fromUnixNano(enqueued)
	item.State = State(state)
	item.LastError = lastError.String
	if nextAttemp.Valid {
		item.NextAttemptAt = fromUnixNano(nextAttemp.Int64)
	}
	return item, nil
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromUnixNano(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v).UTC()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().UnixNano()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func normalizeState(state State) State {
	if state == StateDead {
		return StateDead
	}
	return StatePending
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
