// Package source answers "is this channel live right now?" against the Twitch
// Helix API and captures the broadcast metadata used for titles and archives.
package source
