// Package preflight provides readiness checks for the directories and
// external services mirrorcast depends on.
//
// The daemon runs the offline checks at startup and logs each failure.
// `mirrorcast config validate --online` adds the Twitch credential check,
// which performs a real Helix request.
package preflight
