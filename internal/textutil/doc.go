// Package textutil provides text cleanup shared by title rendering and CLI
// output.
//
// Titles and descriptions sent to the destination are NFC-normalised, stripped
// of characters the platform rejects, and truncated on rune boundaries.
package textutil
