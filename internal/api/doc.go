// Package api defines wire-format types and converters shared by the HTTP API
// and the IPC layer. It translates queue records and sync engine state into
// transport-friendly DTOs so clients never depend on internal types.
//
// DTOs use camelCase JSON tags. Timestamps are RFC3339 with milliseconds in
// UTC and are omitted when zero. Queue items never carry payload bytes.
package api
