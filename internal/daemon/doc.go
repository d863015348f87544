// Package daemon coordinates the long-running mirror process.
//
// It wires configuration, session history, the upstream watcher, the relay
// supervisor, the destination controller and the session coordinator into a
// single lifecycle with flock-based locking to prevent multiple instances.
// Each Start builds a fresh watcher and coordinator; Stop shuts the active
// session down in order before releasing the lock.
//
// Session changes fan out to listeners: history persistence, Prometheus
// metrics, ntfy notifications (delivered off the coordinator goroutine) and
// the websocket event hub served by the HTTP API.
//
// Keep orchestration logic here: the session lifecycle itself lives in the
// coordinator package while the daemon focuses on startup, shutdown and
// operator-facing status.
package daemon
