package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// metadataReplacer drops characters YouTube rejects in titles and descriptions.
var metadataReplacer = strings.NewReplacer(
	"<", "",
	">", "",
)

// SanitizeTitle prepares a single-line title: NFC normalisation, rejected
// characters removed, control characters and runs of whitespace collapsed to
// one space.
func SanitizeTitle(value string) string {
	value = norm.NFC.String(metadataReplacer.Replace(value))
	var b strings.Builder
	space := false
	for _, r := range value {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			space = b.Len() > 0
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeText prepares multi-line text. Line breaks survive; other control
// characters are removed.
func SanitizeText(value string) string {
	value = norm.NFC.String(metadataReplacer.Replace(value))
	value = strings.ReplaceAll(value, "\r\n", "\n")
	var b strings.Builder
	for _, r := range value {
		if r != '\n' && r != '\t' && unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// Truncate shortens value to at most maxRunes runes, ending with an ellipsis
// when something was cut. A non-positive limit disables truncation.
func Truncate(value string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(value) <= maxRunes {
		return value
	}
	if maxRunes == 1 {
		return "…"
	}
	runes := []rune(value)
	return strings.TrimRightFunc(string(runes[:maxRunes-1]), unicode.IsSpace) + "…"
}

// SanitizeToken converts a string to a lowercase filesystem-safe token.
// Letters are lowercased, digits and hyphens/underscores are kept, everything
// else becomes an underscore. Returns "unknown" for empty input.
func SanitizeToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_-")
	if out == "" {
		return "unknown"
	}
	return out
}
