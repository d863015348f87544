// Package config loads, normalizes, and validates mirrorcast configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads an optional .env file, and honours
// environment fallbacks such as TWITCH_CLIENT_ID and YOUTUBE_STREAM_KEY. The
// Config type is read once per session, so tuning values (restart limits,
// settle delays, readiness backoff) apply from the next session onward.
package config
