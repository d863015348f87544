// Package logs tails daemon log files for the CLI and the IPC LogTail call.
//
// A negative offset returns the last N lines; a non-negative offset resumes
// from a byte position and, in follow mode, waits for new lines until the
// deadline passes or the context ends.
package logs
