// Package notifications delivers mirror session events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when notifications are disabled.
// Per-event toggles in the [notifications] section silence individual
// messages without touching callers.
package notifications
