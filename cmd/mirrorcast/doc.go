// Package main hosts the mirrorcast CLI entrypoint and command graph.
//
// The Cobra command tree translates terminal invocations into IPC calls
// against the daemon: watching control, session status and history, feed
// resolution checks, log tailing and configuration scaffolding. When the
// daemon is offline, status and history fall back to the local sqlite
// database so the CLI stays useful without a running process.
package main
