// Package logging assembles structured slog loggers and formatting helpers used
// across sitesync services.
//
// It owns the console and JSON handlers, routes output to stdout/stderr or
// size-rotated files, and exposes context helpers so the sync engine can tag
// every line about a queued capture with its item ID. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
