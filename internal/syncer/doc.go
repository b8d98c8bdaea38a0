// Package syncer owns the delivery state machine.
//
// The Engine moves captures from producers to the remote store. Submit tries
// one immediate upload when the network looks reachable and otherwise (or on
// failure) persists the capture before returning. Drain walks a snapshot of
// the store with bounded parallelism, deleting each item only after the
// uploader confirms it. Drains are coalesced, so at most one pass runs at a
// time, and an in-flight set keeps any id from being uploaded twice
// concurrently.
//
// Run wires the triggers: a startup drain when work is pending, online edges
// from the connectivity monitor, explicit Trigger calls, and a periodic timer
// that retries items whose backoff has elapsed.
package syncer
