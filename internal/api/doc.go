// Package api defines the wire-format types and the HTTP surface of the
// mirror daemon. It translates session status and history records into
// transport-friendly DTOs so consumers never couple to internal types.
//
// # Endpoints
//
//	GET /api/status         daemon and current session status
//	GET /api/sessions       recent sessions, newest first (?limit=N)
//	GET /api/sessions/{id}  one session with its state transitions
//	GET /api/events         websocket stream of session and relay events
//	GET /metrics            Prometheus metrics
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Session states are exposed as lowercase
// strings and timestamps as RFC3339 with milliseconds in UTC.
//
// The websocket Hub sends a snapshot to every new subscriber and then
// forwards events without blocking; a subscriber whose buffer is full is
// disconnected rather than slowing the session coordinator down.
package api
