package rag

import "strings"

// NormalizeText canonicalizes extracted text before chunking: unix line
// endings, no trailing whitespace on lines, at most one blank line between
// paragraphs, no NUL bytes, no leading or trailing whitespace.
// It is idempotent.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\x00", "")

	lines := strings.Split(s, "\n")
	var b strings.Builder
	b.Grow(len(s))

	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\f\v")
		if line == "" {
			blank++
			continue
		}
		if b.Len() > 0 {
			if blank > 0 {
				b.WriteString("\n\n")
			} else {
				b.WriteByte('\n')
			}
		}
		b.WriteString(line)
		blank = 0
	}

	return strings.TrimSpace(b.String())
}
