// Package history persists mirror sessions and their state transitions in
// SQLite.
//
// The coordinator reports every state change; the Store upserts the session
// row and appends a transition row in one transaction. Operators read the
// result through `mirrorcast history` and the HTTP API. Sessions left
// non-terminal by a crash are marked failed when the daemon starts.
//
// Schema changes bump schemaVersion in schema.go; users delete the database
// to adopt the new schema.
package history
