// Package watcher turns periodic source availability polls into edge events.
//
// Detect is the pure edge function; Watcher wraps it with a ticker, a per-poll
// timeout, and an event channel. The watcher owns no session state and is the
// only source of start/end triggers for the coordinator.
package watcher
