package correlate

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFD and removes combining marks, so "José" and
// "Jose" normalize to the same alias.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeSender canonicalizes a raw per-platform sender string for alias
// matching: case-fold, strip diacritics, drop punctuation, collapse
// whitespace. An empty result becomes "unknown" so every message resolves
// to some identity.
func NormalizeSender(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))

	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}

	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			// Punctuation separates tokens rather than vanishing, so
			// "john_b" and "john.b" normalize identically.
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}

	result := strings.TrimSpace(b.String())
	if result == "" {
		return "unknown"
	}
	return result
}
