// Package archive tidies the destination recording once a mirrored broadcast
// has completed: archive title, description and privacy.
package archive
