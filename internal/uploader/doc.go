// Package uploader delivers queued payloads to the remote store.
//
// Every backend implements Uploader and must tolerate being called again
// with the same arguments, because delivery is at-least-once: a crash between
// a successful upload and the queue delete replays the item. Errors wrapped
// with Permanent are never retried by the sync engine.
package uploader
