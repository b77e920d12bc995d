// Package titles canonicalizes free-text titles into comparable keys.
package titles

import (
	"strings"
	"unicode"
)

// Normalize lower-cases text, drops every rune that is not a letter, digit or
// whitespace, collapses whitespace runs to a single space and trims the result.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Same reports whether two titles refer to the same recording (exact match on normalized keys).
func Same(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
