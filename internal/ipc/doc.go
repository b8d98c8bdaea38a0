// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response types. Wire
// payloads reuse the DTOs from the api package so the CLI and the HTTP API
// render the same shapes.
package ipc
