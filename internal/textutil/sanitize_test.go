package textutil

import (
	"testing"
	"unicode/utf8"
)

func TestSanitizeTitle(t *testing.T) {
	tests := map[string]string{
		"  Ranked  <grind>\n day 3 ": "Ranked grind day 3",
		"Cafe\u0301 stream":          "Caf\u00e9 stream",
		"tab\tseparated\x00":         "tab separated",
		"":                           "",
	}
	for in, want := range tests {
		if got := SanitizeTitle(in); got != want {
			t.Errorf("SanitizeTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeTextKeepsLines(t *testing.T) {
	got := SanitizeText("line one\r\nline <two>\x07\n")
	if got != "line one\nline two" {
		t.Fatalf("got %q", got)
	}
}

func TestTruncateOnRuneBoundary(t *testing.T) {
	long := ""
	for i := 0; i < 120; i++ {
		long += "配"
	}
	got := Truncate(long, 100)
	if n := utf8.RuneCountInString(got); n != 100 {
		t.Fatalf("expected 100 runes, got %d", n)
	}
	if !utf8.ValidString(got) {
		t.Fatal("truncation split a rune")
	}
	if Truncate("short", 100) != "short" {
		t.Fatal("short values are untouched")
	}
	if Truncate("anything", 0) != "anything" {
		t.Fatal("zero limit disables truncation")
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("Some Channel!"); got != "some_channel" {
		t.Fatalf("got %q", got)
	}
	if got := SanitizeToken("  "); got != "unknown" {
		t.Fatalf("got %q", got)
	}
}

func TestTernary(t *testing.T) {
	if Ternary(true, "a", "b") != "a" || Ternary(false, 1, 2) != 2 {
		t.Fatal("unexpected ternary result")
	}
}
