// Package services defines shared utilities consumed by the session pipeline
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures from the
//     source, relay, and destination layers can be classified uniformly
//     (retryable vs terminal, operator-facing cause labels).
//
// Use these helpers when wiring new integrations so retries and failure
// reporting stay uniform across the orchestrator.
package services
