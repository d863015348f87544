// Package coordinator owns the mirror session lifecycle.
//
// The Coordinator consumes watcher edges and drives one session at a time
// through resolve, relay, provision, readiness, publish and teardown. Stage
// work runs on a per-session goroutine whose context is cancelled when the
// session ends, so settle delays and backoff windows never outlive it.
// Teardown order is fixed: the destination is completed (or abandoned when it
// never went live) before the relay is stopped, except on shutdown where the
// relay is stopped first.
package coordinator
