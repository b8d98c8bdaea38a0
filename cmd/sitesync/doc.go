// Command sitesync is the operator CLI for the sitesync upload queue.
//
// "sitesync run" hosts the daemon in the foreground and "sitesync start"
// detaches it. Status, submit, sync and the queue subcommands talk to a
// running daemon over its Unix socket. The config and logs commands only
// read local files.
package main
