package parser

import (
	"strings"
	"unicode"
)

const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^`{|}~"

// NormalizeTitle turns an article title into a file name stem: punctuation is
// dropped, each whitespace rune becomes an underscore, everything else is
// kept. Underscores survive, so NormalizeTitle(NormalizeTitle(s)) equals
// NormalizeTitle(s). Runs of underscores are not collapsed and leading or
// trailing ones are not trimmed.
func NormalizeTitle(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case isPunct(r):
			continue
		case unicode.IsSpace(r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isPunct(r rune) bool {
	if r == '_' {
		return false
	}
	if r < unicode.MaxASCII {
		return strings.ContainsRune(asciiPunctuation, r)
	}
	return unicode.IsPunct(r)
}
