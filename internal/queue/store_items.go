package queue

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Put inserts item or overwrites the record with the same id. The write is
// committed (and fsynced, given synchronous=FULL) before Put returns.
func (s *Store) Put(ctx context.Context, item Item) error {
	if strings.TrimSpace(item.ID) == "" {
		return storeErr("put", fmt.Errorf("%w: empty id", ErrInvalidItem))
	}
	if item.Destination == "" {
		return storeErr("put", fmt.Errorf("%w: empty destination", ErrInvalidItem))
	}
	payload := item.Payload
	if payload == nil {
		payload = []byte{}
	}
	enqueued := item.EnqueuedAt
	if enqueued.IsZero() {
		enqueued = time.Now()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.execWithRetry(ctx,
		`INSERT INTO queue_items (`+itemColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             destination = excluded.destination,
             payload = excluded.payload,
             size = excluded.size,
             enqueued_at = excluded.enqueued_at,
             state = excluded.state,
             attempts = excluded.attempts,
             last_error = excluded.last_error,
             next_attempt_at = excluded.next_attempt_at`,
		item.ID,
		item.Destination,
		payload,
		int64(len(payload)),
		toUnixNano(enqueued),
		string(normalizeState(item.State)),
		item.Attempts,
		nullableString(item.LastError),
		nullableTime(item.NextAttemptAt),
	)
	return storeErr("put", err)
}

// Delete removes the record with id. Deleting an absent id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.execWithRetry(ctx, `DELETE FROM queue_items WHERE id = ?`, id)
	return storeErr("delete", err)
}

// GetAll returns every record, payload included, ordered by enqueue time.
// All rows come from one read transaction.
func (s *Store) GetAll(ctx context.Context) ([]Item, error) {
	ctx = ensureContext(ctx)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("get_all", fmt.Errorf("begin read tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT `+itemColumns+` FROM queue_items ORDER BY enqueued_at, rowid`)
	if err != nil {
		return nil, storeErr("get_all", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows, true)
		if err != nil {
			return nil, storeErr("get_all", fmt.Errorf("scan item: %w", err))
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("get_all", err)
	}
	return items, nil
}

// Count returns the number of records, dead letters included.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1) FROM queue_items`).Scan(&count); err != nil {
		return 0, storeErr("count", err)
	}
	return count, nil
}

// Get returns the record with id without its payload. The bool is false when
// no such record exists.
func (s *Store) Get(ctx context.Context, id string) (Item, bool, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+metadataColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row, false)
	if err != nil {
		if isNoRows(err) {
			return Item{}, false, nil
		}
		return Item{}, false, storeErr("get", err)
	}
	return item, true, nil
}

// List returns record metadata without payloads, ordered by enqueue time.
func (s *Store) List(ctx context.Context) ([]Item, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+metadataColumns+` FROM queue_items ORDER BY enqueued_at, rowid`)
	if err != nil {
		return nil, storeErr("list", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows, false)
		if err != nil {
			return nil, storeErr("list", fmt.Errorf("scan item: %w", err))
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list", err)
	}
	return items, nil
}

// RecordFailure updates retry bookkeeping for id. Payload and destination are
// never touched. A missing id is ignored: the item was delivered or removed
// concurrently.
func (s *Store) RecordFailure(ctx context.Context, id string, failure Failure) error {
	state := StatePending
	if failure.Dead {
		state = StateDead
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.execWithRetry(ctx,
		`UPDATE queue_items
         SET state = ?, attempts = ?, last_error = ?, next_attempt_at = ?
         WHERE id = ?`,
		string(state),
		failure.Attempts,
		nullableString(failure.Err),
		nullableTime(failure.NextAttemptAt),
		id,
	)
	return storeErr("record_failure", err)
}

// Requeue returns id to the pending state with its attempts and backoff
// cleared. It reports false when no record has that id.
func (s *Store) Requeue(ctx context.Context, id string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.execWithRetry(ctx,
		`UPDATE queue_items
         SET state = ?, attempts = 0, last_error = NULL, next_attempt_at = NULL
         WHERE id = ?`,
		string(StatePending),
		id,
	)
	if err != nil {
		return false, storeErr("requeue", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("requeue", fmt.Errorf("rows affected: %w", err))
	}
	return affected > 0, nil
}

// RequeueDead returns every dead-lettered record to pending.
func (s *Store) RequeueDead(ctx context.Context) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.execWithRetry(ctx,
		`UPDATE queue_items
         SET state = ?, attempts = 0, last_error = NULL, next_attempt_at = NULL
         WHERE state = ?`,
		string(StatePending),
		string(StateDead),
	)
	if err != nil {
		return 0, storeErr("requeue_dead", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("requeue_dead", fmt.Errorf("rows affected: %w", err))
	}
	return affected, nil
}

// Stats returns pending, dead, and total counts plus the oldest enqueue time.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT
             COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0),
             COUNT(1),
             COALESCE(MIN(enqueued_at), 0)
         FROM queue_items`,
		string(StateDead),
	)
	var (
		dead, total int
		oldest      int64
	)
	if err := row.Scan(&dead, &total, &oldest); err != nil {
		return Stats{}, storeErr("stats", err)
	}
	return Stats{
		Pending:          total - dead,
		Dead:             dead,
		Total:            total,
		OldestEnqueuedAt: fromUnixNano(oldest),
	}, nil
}
