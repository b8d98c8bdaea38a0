// Package logs reads the daemon log file for the CLI.
//
// Last returns the trailing lines of the file. Follow streams lines appended
// after an offset and survives lumberjack rotation, where the active file is
// renamed away and recreated empty.
package logs
