// Package destination manages the YouTube side of a mirror session: creating
// and binding the broadcast, checking readiness and walking the broadcast
// lifecycle (created, ready, testing, live, complete) without ever issuing a
// move the lifecycle table forbids.
package destination
