package extract

import (
	"bufio"
	"context"
	"strings"
	"unicode/utf8"
)

func decodeText(data []byte) string {
	s := strings.TrimPrefix(string(data), "\uFEFF")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	return s
}

func extractPlain(_ context.Context, data []byte) (string, map[string]string, error) {
	return decodeText(data), map[string]string{"format": "plain"}, nil
}

// extractMarkdown keeps the markdown body as-is apart from a leading YAML
// front matter block, whose title (if any) is lifted into metadata.
func extractMarkdown(_ context.Context, data []byte) (string, map[string]string, error) {
	text := decodeText(data)
	meta := map[string]string{"format": "markdown"}

	body, front := splitFrontMatter(text)
	for _, line := range strings.Split(front, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if ok && strings.TrimSpace(key) == "title" {
			meta["title"] = strings.Trim(strings.TrimSpace(value), `"'`)
		}
	}
	if _, ok := meta["title"]; !ok {
		if title := firstHeading(body); title != "" {
			meta["title"] = title
		}
	}
	return body, meta, nil
}

func splitFrontMatter(text string) (body, front string) {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	if !strings.HasPrefix(normalized, "---\n") {
		return text, ""
	}
	rest := normalized[len("---\n"):]
	for _, closer := range []string{"\n---\n", "\n...\n"} {
		if i := strings.Index(rest, closer); i >= 0 {
			return rest[i+len(closer):], rest[:i]
		}
	}
	if strings.HasSuffix(rest, "\n---") {
		return "", strings.TrimSuffix(rest, "\n---")
	}
	return text, ""
}

func firstHeading(body string) string {
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}
