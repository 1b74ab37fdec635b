package rag

import (
	"strings"
	"unicode"
)

const DefaultExcerptLength = 280

// BuildExcerpt collapses whitespace and bounds text to maxRunes, cutting at
// a word boundary when one falls in the second half of the window.
func BuildExcerpt(text string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = DefaultExcerptLength
	}

	collapsed := strings.Join(strings.FieldsFunc(text, unicode.IsSpace), " ")
	runes := []rune(collapsed)
	if len(runes) <= maxRunes {
		return collapsed
	}

	// leave room for the ellipsis
	cut := runes[:maxRunes-1]
	for i := len(cut) - 1; i > len(cut)/2; i-- {
		if cut[i] == ' ' {
			cut = cut[:i]
			break
		}
	}
	return strings.TrimRight(string(cut), " ") + "…"
}
