// Package daemon coordinates the long-running sitesync process.
//
// It wires configuration, the queue store, the connectivity monitor, the sync
// engine, the inbox watcher and the HTTP API into a single lifecycle with
// flock-based locking so only one engine ever drains a given store. The
// daemon also exposes the queue maintenance helpers used by the IPC layer.
//
// Keep orchestration logic here: delivery rules belong to the syncer package
// and photo handling to the capture package.
package daemon
