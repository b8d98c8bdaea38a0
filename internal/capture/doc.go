// Package capture turns photos on disk into queue submissions.
//
// Prepare decodes a photo and optionally downsizes it before it is handed to
// the sync engine, Destination builds the remote path for a capture, and
// Watcher feeds an inbox directory into the engine as files appear.
package capture
