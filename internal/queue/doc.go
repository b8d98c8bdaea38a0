// Package queue persists captures awaiting upload in SQLite.
//
// Every record is keyed by a caller-assigned UUID that doubles as the
// idempotency token for the remote store. Put commits durably before
// returning, Delete is idempotent, and GetAll reads from a single transaction
// so callers see a consistent snapshot even while writers are active.
// Besides payload and destination, each row carries retry bookkeeping
// (attempts, last error, next attempt time, dead-letter state) that only the
// sync engine mutates through RecordFailure.
//
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
package queue
