package extract

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"assist_server/pkg/apperr"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var skipTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
}

var blockTags = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.Header: true, atom.Footer: true, atom.Main: true, atom.Nav: true, atom.Aside: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Ul: true, atom.Ol: true, atom.Li: true, atom.Table: true, atom.Tr: true,
	atom.Blockquote: true, atom.Pre: true, atom.Hr: true, atom.Dl: true, atom.Dt: true, atom.Dd: true,
	atom.Figure: true, atom.Form: true,
}

// extractHTML walks the token stream, dropping non-content elements and
// turning block elements into paragraph breaks.
func extractHTML(_ context.Context, data []byte) (string, map[string]string, error) {
	z := html.NewTokenizer(bytes.NewReader(data))
	meta := map[string]string{"format": "html"}

	var b strings.Builder
	var title strings.Builder
	skip := 0
	inTitle := false
	pre := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return "", nil, apperr.InvalidInput("document", "malformed html").WithError(err)
			}
			if t := strings.Join(strings.Fields(title.String()), " "); t != "" {
				meta["title"] = t
			}
			return trimLines(b.String()), meta, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			switch {
			case skipTags[a]:
				if tt == html.StartTagToken {
					skip++
				}
			case a == atom.Title:
				inTitle = tt == html.StartTagToken
			case a == atom.Br:
				b.WriteByte('\n')
			case blockTags[a]:
				b.WriteString("\n\n")
				if a == atom.Pre && tt == html.StartTagToken {
					pre++
				}
			case a == atom.Td || a == atom.Th:
				b.WriteByte(' ')
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			switch {
			case skipTags[a]:
				if skip > 0 {
					skip--
				}
			case a == atom.Title:
				inTitle = false
			case blockTags[a]:
				b.WriteString("\n\n")
				if a == atom.Pre && pre > 0 {
					pre--
				}
			}

		case html.TextToken:
			if skip > 0 {
				continue
			}
			text := string(z.Text())
			if inTitle {
				title.WriteString(text)
				continue
			}
			if pre > 0 {
				b.WriteString(text)
			} else {
				b.WriteString(collapseSpace(text))
			}
		}
	}
}

// collapseSpace folds whitespace runs to one space, keeping a single space
// at either edge when the original had one.
func collapseSpace(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s != "" {
			return " "
		}
		return ""
	}
	out := strings.Join(fields, " ")
	if isSpace(s[0]) {
		out = " " + out
	}
	if isSpace(s[len(s)-1]) {
		out += " "
	}
	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func trimLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimLeft(line, " \t")
	}
	return strings.Join(lines, "\n")
}
