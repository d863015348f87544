// Package session defines the mirror session model: its forward-only state
// machine, the immutable source snapshot captured at detection time, and the
// Status view handed to operators.
package session
